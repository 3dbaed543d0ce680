package graph

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy decides how often a strategy is attempted. Every attempt,
// the first one included, is preceded by a delay; the delay grows by
// Multiplier after each retryable failure and the policy gives up once the
// next delay would exceed MaxDelay.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Retryable    func(error) bool
	Sleep        SleepFunc
}

// NewRetryPolicy builds the conflict-only policy used for the fallback transport.
func NewRetryPolicy(cfg config.UploadConfig) RetryPolicy {
	return RetryPolicy{
		InitialDelay: cfg.InitialDelay(),
		MaxDelay:     cfg.MaxDelay(),
		Multiplier:   cfg.Multiplier,
		Retryable:    IsWriteConflict,
	}
}

// IsWriteConflict reports whether err is a remote write-write collision.
func IsWriteConflict(err error) bool {
	return apperrors.HasCode(err, apperrors.CodeUploadConflict)
}

// Wrap decorates s with the policy.
func (p RetryPolicy) Wrap(s Strategy) Strategy {
	return &retrying{inner: s, policy: p}
}

// Delays lists the waits the policy would perform if every attempt failed
// with a retryable error.
func (p RetryPolicy) Delays() []time.Duration {
	var delays []time.Duration
	delay := p.InitialDelay
	for {
		delays = append(delays, delay)
		next, ok := p.next(delay)
		if !ok {
			return delays
		}
		delay = next
	}
}

func (p RetryPolicy) next(delay time.Duration) (time.Duration, bool) {
	multiplier := p.Multiplier
	if multiplier <= 1 {
		multiplier = 2
	}
	next := time.Duration(float64(delay) * multiplier)
	if next <= delay {
		next = delay + time.Millisecond
	}
	if next > p.MaxDelay {
		return 0, false
	}
	return next, true
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type retrying struct {
	inner  Strategy
	policy RetryPolicy
}

func (r *retrying) Name() string { return r.inner.Name() }

func (r *retrying) Upload(ctx context.Context, itemID string, file domain.File) (*domain.Descriptor, error) {
	retryable := r.policy.Retryable
	if retryable == nil {
		retryable = IsWriteConflict
	}
	delay := r.policy.InitialDelay
	for {
		if err := r.policy.sleep(ctx, delay); err != nil {
			return nil, apperrors.NewNetworkError("wait before upload", err)
		}
		desc, err := r.inner.Upload(ctx, itemID, file)
		if err == nil {
			return desc, nil
		}
		if !retryable(err) {
			return nil, err
		}
		next, ok := r.policy.next(delay)
		if !ok {
			return nil, err
		}
		delay = next
	}
}
