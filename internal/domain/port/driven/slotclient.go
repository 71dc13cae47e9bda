package driven

import (
	"context"

	"github.com/impfwatch/impfwatch/internal/domain/model"
)

// SlotClient defines the driven port for the appointments API.
//
// FindNext returns (nil, nil) when no acceptable slot exists right now: a 404
// from the endpoint, an offer past the query's latest day, and an expired
// session (401, after resetting the token source) all look the same to the
// caller. Only transport-level failures surface as errors, and the polling
// loop degrades those to "no result this cycle" as well.
type SlotClient interface {
	FindNext(ctx context.Context, q model.Query) (*model.Offer, error)
	// Book submits the offer's verbatim payload with reminder preferences
	// attached. True only on an exact success status.
	Book(ctx context.Context, offer model.Offer) (bool, error)
	ListUpcoming(ctx context.Context) ([]model.Appointment, error)
}
