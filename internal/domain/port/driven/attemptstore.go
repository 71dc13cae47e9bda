package driven

import (
	"context"

	"github.com/impfwatch/impfwatch/internal/domain/model"
)

// AttemptStore persists the outcome of each find/book cycle for later review.
type AttemptStore interface {
	Record(ctx context.Context, attempt model.Attempt) error
	// ListRecent returns up to limit attempts, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.Attempt, error)
}
