package resolution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Locker grants exclusive use of a ticket to one workflow at a time.
type Locker interface {
	Acquire(ctx context.Context, ticketID string) (release func(), err error)
}

const lockKeyPrefix = "helpdesk:resolution:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker locks tickets across processes with SET NX and a TTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisLocker{client: client, ttl: ttl, logger: logger.Named("lock")}
}

func (l *redisLocker) Acquire(ctx context.Context, ticketID string) (func(), error) {
	key := lockKeyPrefix + ticketID
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, apperrors.NewNetworkError("acquire resolution lock", err)
	}
	if !ok {
		return nil, busy(ticketID)
	}
	return func() {
		// The request context may already be cancelled here.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("release resolution lock", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}, nil
}

type localLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker locks tickets within this process only.
func NewLocalLocker() Locker {
	return &localLocker{held: make(map[string]struct{})}
}

func (l *localLocker) Acquire(_ context.Context, ticketID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[ticketID]; ok {
		return nil, busy(ticketID)
	}
	l.held[ticketID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, ticketID)
			l.mu.Unlock()
		})
	}, nil
}

func busy(ticketID string) error {
	return apperrors.NewConflict(
		fmt.Sprintf("tiket %s sedang diproses oleh operator lain", ticketID),
		map[string]any{"ticketId": ticketID},
	)
}
