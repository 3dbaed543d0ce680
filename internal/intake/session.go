package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Session is a conversation bound to the user who opened it.
type Session struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	ReporterName string    `json:"reporterName"`
	State        State     `json:"state"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SessionStore keeps sessions in process memory. An entry expires once it
// has not been written for the configured lifetime. Photo bytes live in a
// separate entry written once per attachment so conversation turns only
// rewrite the small session document.
type SessionStore struct {
	cache *bigcache.BigCache
}

// StoreOptions sizes the session cache.
type StoreOptions struct {
	TTL time.Duration
	// MaxCacheMB caps the cache; the oldest entries are evicted beyond it.
	MaxCacheMB int
	// MaxSessions is the expected number of live sessions within one TTL.
	MaxSessions int
}

const (
	sessionShards    = 16
	sessionEntrySize = 4 * 1024
	photoKeySuffix   = "/photo"
)

// NewSessionStore builds a bounded store whose entries live for opts.TTL
// after their last write.
func NewSessionStore(ctx context.Context, opts StoreOptions) (*SessionStore, error) {
	if opts.MaxCacheMB <= 0 {
		opts.MaxCacheMB = 512
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10000
	}
	// A shard must fit a full-size photo.
	if shard := opts.MaxCacheMB * 1024 * 1024 / sessionShards; shard < 2*domain.MaxPhotoBytes {
		return nil, fmt.Errorf("session cache of %d MB cannot hold a photo", opts.MaxCacheMB)
	}
	cfg := bigcache.DefaultConfig(opts.TTL)
	cfg.Shards = sessionShards
	cfg.MaxEntriesInWindow = opts.MaxSessions
	cfg.MaxEntrySize = sessionEntrySize
	cfg.HardMaxCacheSize = opts.MaxCacheMB
	cfg.CleanWindow = time.Minute
	cfg.Verbose = false
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init session cache: %w", err)
	}
	return &SessionStore{cache: cache}, nil
}

// Get loads a session; unknown or expired ids are NotFound.
func (s *SessionStore) Get(id string) (*Session, error) {
	data, err := s.cache.Get(id)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, apperrors.NewNotFound("session", map[string]any{"id": id})
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// Save writes the session, refreshing its lifetime.
func (s *SessionStore) Save(session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.cache.Set(session.ID, data); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// SavePhoto stores the raw photo bytes of a session.
func (s *SessionStore) SavePhoto(id string, data []byte) error {
	if err := s.cache.Set(id+photoKeySuffix, data); err != nil {
		return fmt.Errorf("write session photo: %w", err)
	}
	return nil
}

// Photo loads the photo bytes of a session; a missing entry is NotFound.
func (s *SessionStore) Photo(id string) ([]byte, error) {
	data, err := s.cache.Get(id + photoKeySuffix)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, apperrors.NewNotFound("session photo", map[string]any{"id": id})
		}
		return nil, fmt.Errorf("read session photo: %w", err)
	}
	return data, nil
}

// DropPhoto releases the photo bytes of a session.
func (s *SessionStore) DropPhoto(id string) {
	_ = s.cache.Delete(id + photoKeySuffix)
}

// Capacity reports the bytes allocated by the cache.
func (s *SessionStore) Capacity() int {
	return s.cache.Capacity()
}

// Len reports how many sessions are held.
func (s *SessionStore) Len() int {
	return s.cache.Len()
}

// Close releases the cache.
func (s *SessionStore) Close() error {
	return s.cache.Close()
}
