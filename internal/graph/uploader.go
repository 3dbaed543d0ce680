package graph

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Uploader tries its strategies in order until one stores the file.
type Uploader struct {
	strategies []Strategy
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewUploader builds an uploader over an ordered strategy list.
func NewUploader(logger *zap.Logger, metrics *observability.Metrics, strategies ...Strategy) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{strategies: strategies, logger: logger.Named("uploader"), metrics: metrics}
}

// NewDefaultUploader wires Graph first and, when addressable, the
// SharePoint REST endpoint second under the retry policy.
func NewDefaultUploader(client *Client, policy RetryPolicy, logger *zap.Logger, metrics *observability.Metrics) *Uploader {
	strategies := []Strategy{NewGraphAttachments(client)}
	if client.HasLegacyEndpoint() {
		strategies = append(strategies, policy.Wrap(NewRESTAttachments(client)))
	}
	return NewUploader(logger, metrics, strategies...)
}

// Upload stores file against the list item itemID. The returned error is
// the last strategy's failure.
func (u *Uploader) Upload(ctx context.Context, itemID string, file domain.File) (*domain.Descriptor, error) {
	if len(u.strategies) == 0 {
		return nil, errors.New("no attachment strategy configured")
	}
	var lastErr error
	for _, strategy := range u.strategies {
		desc, err := strategy.Upload(ctx, itemID, file)
		if err == nil {
			u.metrics.RecordUpload(strategy.Name(), "ok")
			u.logger.Info("attachment stored",
				zap.String("strategy", strategy.Name()),
				zap.String("item_id", itemID),
				zap.String("file", desc.FileName))
			return desc, nil
		}
		u.metrics.RecordUpload(strategy.Name(), apperrors.ToDomainError(err).Code)
		u.logger.Warn("attachment strategy failed",
			zap.String("strategy", strategy.Name()),
			zap.String("item_id", itemID),
			zap.Error(err))
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
