package intake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/ticketstore"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketCreator is the slice of the ticket store the intake flow needs.
type TicketCreator interface {
	Create(ctx context.Context, in ticketstore.CreateTicket) (*ticketstore.Created, error)
}

// Owner identifies who drives a session.
type Owner struct {
	ID   string
	Name string
}

// Service runs intake conversations on top of the session store.
type Service struct {
	sessions *SessionStore
	catalog  Catalog
	store    TicketCreator
	logger   *zap.Logger
	now      func() time.Time
	locks    sessionLocks
}

// Dependencies bundles what the intake service needs.
type Dependencies struct {
	Sessions *SessionStore
	Catalog  Catalog
	Store    TicketCreator
	Logger   *zap.Logger
}

// NewService constructs the intake service.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions: deps.Sessions,
		catalog:  deps.Catalog,
		store:    deps.Store,
		logger:   logger.Named("intake"),
		now:      time.Now,
	}
}

// Catalog exposes the vocabularies in use.
func (s *Service) Catalog() Catalog {
	return s.catalog
}

// Open starts a new session at the initial stage.
func (s *Service) Open(owner Owner) (*Session, error) {
	session := &Session{
		ID:           uuid.NewString(),
		OwnerID:      owner.ID,
		ReporterName: strings.TrimSpace(owner.Name),
		State:        NewState(),
		UpdatedAt:    s.now(),
	}
	if err := s.sessions.Save(session); err != nil {
		return nil, err
	}
	s.logger.Info("session opened", zap.String("session_id", session.ID), zap.String("owner", owner.ID))
	return session, nil
}

// Get returns a session owned by owner.
func (s *Service) Get(owner Owner, id string) (*Session, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != owner.ID {
		return nil, apperrors.NewNotFound("session", map[string]any{"id": id})
	}
	return session, nil
}

// Begin opens the conversation.
func (s *Service) Begin(owner Owner, id string) (*Session, error) {
	return s.apply(owner, id, Begin{})
}

// Say sends a free-text message.
func (s *Service) Say(owner Owner, id, text string) (*Session, error) {
	return s.apply(owner, id, Text{Value: text})
}

// ChooseDivision selects a division.
func (s *Service) ChooseDivision(owner Owner, id, division string) (*Session, error) {
	return s.apply(owner, id, ChooseDivision{Division: division})
}

// AttachPhoto selects or replaces the photo.
func (s *Service) AttachPhoto(owner Owner, id string, file domain.File) (*Session, error) {
	return s.apply(owner, id, AttachPhoto{File: file})
}

// Submit creates the ticket in the store. On failure the session stays in
// needPhoto with its draft intact and the error recorded; both the session
// and the error are returned.
func (s *Service) Submit(ctx context.Context, owner Owner, id string) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.Get(owner, id)
	if err != nil {
		return nil, err
	}
	if !CanSubmit(session.State) {
		return session, invalidEvent(session.State.Stage, Submitted{})
	}

	state := session.State
	data, err := s.sessions.Photo(id)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return s.photoLost(session)
		}
		return nil, err
	}
	photo := *state.Photo
	photo.Data = data
	created, submitErr := s.store.Create(ctx, ticketstore.CreateTicket{
		ReporterName: session.ReporterName,
		Division:     state.Division,
		Priority:     domain.DerivePriority(state.Division),
		Description:  state.Complaint,
		Photo:        photo.File(),
	})

	var ev Event
	if submitErr != nil {
		s.logger.Warn("ticket submission failed", zap.String("session_id", id), zap.Error(submitErr))
		ev = SubmitFailed{Message: apperrors.DisplayMessage(submitErr)}
	} else {
		s.logger.Info("ticket submitted", zap.String("session_id", id), zap.Int64("ticket_number", created.Number))
		ev = Submitted{Number: created.Number}
	}

	next, err := Reduce(state, ev, s.catalog)
	if err != nil {
		return nil, err
	}
	if err := s.commit(session, next); err != nil {
		return nil, err
	}
	return session, submitErr
}

func (s *Service) apply(owner Owner, id string, ev Event) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.Get(owner, id)
	if err != nil {
		return nil, err
	}
	next, err := Reduce(session.State, ev, s.catalog)
	if err != nil {
		return nil, err
	}
	if err := s.commit(session, next); err != nil {
		return nil, err
	}
	return session, nil
}

// photoLost handles a session whose photo entry expired or was evicted: the
// draft goes back to waiting for a photo.
func (s *Service) photoLost(session *Session) (*Session, error) {
	s.logger.Warn("session photo missing", zap.String("session_id", session.ID))
	next := session.State
	next.Photo = nil
	next.LastError = "Foto tidak lagi tersedia, silakan unggah ulang."
	if err := s.commit(session, next); err != nil {
		return nil, err
	}
	return session, apperrors.NewValidationError("foto perlu diunggah ulang", map[string]any{"session": session.ID})
}

func (s *Service) commit(session *Session, next State) error {
	if next.Photo != nil && next.Photo != session.State.Photo && next.Photo.Data != nil {
		if err := s.sessions.SavePhoto(session.ID, next.Photo.Data); err != nil {
			return err
		}
	}
	if next.Stage == StageDone {
		s.sessions.DropPhoto(session.ID)
	}
	session.State = next
	session.UpdatedAt = s.now()
	return s.sessions.Save(session)
}

// lock serialises read-modify-write cycles on one session.
func (s *Service) lock(id string) func() {
	return s.locks.acquire(id)
}

// sessionLocks hands out per-session mutexes. An entry lives only while
// some caller holds or waits for it.
type sessionLocks struct {
	mu   sync.Mutex
	held map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func (l *sessionLocks) acquire(id string) func() {
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]*sessionLock)
	}
	entry, ok := l.held[id]
	if !ok {
		entry = &sessionLock{}
		l.held[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.held, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
