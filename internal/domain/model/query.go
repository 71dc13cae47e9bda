package model

import (
	"errors"
	"time"
)

// ErrMissingFirstVaccine is returned when a second-dose query is constructed
// without naming the vaccine given for the first dose. The search endpoint
// requires it to match compatible products.
var ErrMissingFirstVaccine = errors.New("second-dose query requires the first-dose vaccine")

// Query describes the appointment being searched for. Construct via NewQuery;
// a Query is read-only once built.
type Query struct {
	EarliestDay  time.Time
	LatestDay    *time.Time
	Type         VaccinationType
	Variant      *Variant
	FirstVaccine *Vaccine
}

// NewQuery validates and builds a Query. EarliestDay defaults to today when
// zero. LatestDay, variant, and firstVaccine may be nil.
func NewQuery(earliestDay time.Time, latestDay *time.Time, vt VaccinationType, variant *Variant, firstVaccine *Vaccine) (Query, error) {
	if vt == VaccinationSecond && firstVaccine == nil {
		return Query{}, ErrMissingFirstVaccine
	}

	if earliestDay.IsZero() {
		earliestDay = time.Now()
	}

	return Query{
		EarliestDay:  earliestDay,
		LatestDay:    latestDay,
		Type:         vt,
		Variant:      variant,
		FirstVaccine: firstVaccine,
	}, nil
}

// InRange reports whether the given slot date is on or before LatestDay.
// A query without LatestDay accepts any date.
func (q Query) InRange(day time.Time) bool {
	if q.LatestDay == nil {
		return true
	}
	return !day.After(*q.LatestDay)
}
