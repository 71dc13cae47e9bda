// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/impfwatch/impfwatch/internal/domain/model"
	"github.com/impfwatch/impfwatch/internal/domain/port/driven"
)

// Result is the terminal outcome of a polling run.
type Result struct {
	Outcome model.Outcome
	Offer   *model.Offer
}

// PollService drives repeated find/book attempts against the appointments
// API. A run terminates on a found offer (booking disabled), a successful
// booking, or cancellation; everything else is one more cycle. Only a login
// failure escapes as an error and ends the process.
type PollService struct {
	slots     driven.SlotClient
	notifier  driven.Notifier
	attempts  driven.AttemptStore
	citizenID string
	interval  time.Duration
	book      bool
}

// NewPollService creates a PollService. A zero interval means a single
// attempt per Run instead of a loop.
func NewPollService(
	slots driven.SlotClient,
	notifier driven.Notifier,
	attempts driven.AttemptStore,
	citizenID string,
	interval time.Duration,
	book bool,
) *PollService {
	return &PollService{
		slots:     slots,
		notifier:  notifier,
		attempts:  attempts,
		citizenID: citizenID,
		interval:  interval,
		book:      book,
	}
}

// Run polls until an attempt terminates the run or the context is canceled.
// Cancellation is cooperative: it is observed at each wait boundary, not
// mid-request.
func (s *PollService) Run(ctx context.Context, q model.Query) (Result, error) {
	res, err := s.attempt(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if s.interval <= 0 || terminal(res.Outcome) {
		return res, nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for attempt := 2; ; attempt++ {
		select {
		case <-ctx.Done():
			slog.Info("polling cancelled")
			return Result{Outcome: model.OutcomeCancelled}, nil
		case <-ticker.C:
		}

		slog.Debug("trying to find appointment", "attempt", attempt)

		res, err := s.attempt(ctx, q)
		if err != nil {
			return Result{}, err
		}
		if terminal(res.Outcome) {
			return res, nil
		}
	}
}

// terminal reports whether an attempt outcome ends the run. A failed booking
// does not: the slot may have been taken, so polling continues.
func terminal(o model.Outcome) bool {
	return o == model.OutcomeFound || o == model.OutcomeBooked
}

// attempt performs one search and, when booking is enabled, one booking try.
func (s *PollService) attempt(ctx context.Context, q model.Query) (Result, error) {
	offer, err := s.slots.FindNext(ctx, q)
	if err != nil {
		if errors.Is(err, driven.ErrLoginFailed) || errors.Is(err, driven.ErrLoginFormNotFound) {
			return Result{}, err
		}
		// Transient failures degrade to "no result this cycle" so the
		// polling session stays alive.
		slog.Error("search attempt failed", "error", err)
		s.record(ctx, model.OutcomeNotFound, nil)
		return Result{Outcome: model.OutcomeNotFound}, nil
	}

	if offer == nil {
		slog.Info("no appointment available")
		s.record(ctx, model.OutcomeNotFound, nil)
		return Result{Outcome: model.OutcomeNotFound}, nil
	}

	slog.Info("found appointment",
		"date", offer.Date.Format("2006-01-02"),
		"time", offer.Time,
		"site", offer.SiteName,
	)

	if !s.book {
		s.notifier.Notify(ctx, fmt.Sprintf(
			"An appointment is available on %s at %s.",
			offer.Date.Format("2006-01-02"), offer.Time,
		))
		s.record(ctx, model.OutcomeFound, offer)
		return Result{Outcome: model.OutcomeFound, Offer: offer}, nil
	}

	booked, err := s.slots.Book(ctx, *offer)
	if err != nil {
		slog.Error("booking attempt failed", "error", err)
	}
	if !booked {
		s.record(ctx, model.OutcomeBookingFailed, offer)
		return Result{Outcome: model.OutcomeBookingFailed, Offer: offer}, nil
	}

	s.notifier.Notify(ctx, fmt.Sprintf(
		"Appointment booked for %s at %s. Please check your e-mails.",
		offer.Date.Format("2006-01-02"), offer.Time,
	))
	s.record(ctx, model.OutcomeBooked, offer)
	return Result{Outcome: model.OutcomeBooked, Offer: offer}, nil
}

// record persists the cycle outcome. Store failures are logged, never fatal.
func (s *PollService) record(ctx context.Context, outcome model.Outcome, offer *model.Offer) {
	attempt := model.Attempt{
		At:        time.Now().UTC(),
		Outcome:   outcome,
		CitizenID: s.citizenID,
	}
	if offer != nil {
		attempt.SlotDate = offer.Date.Format("2006-01-02")
		attempt.SlotTime = offer.Time
		attempt.SiteName = offer.SiteName
	}

	if err := s.attempts.Record(ctx, attempt); err != nil {
		slog.Error("record attempt failed", "outcome", string(outcome), "error", err)
	}
}
