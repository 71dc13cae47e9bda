package model

import (
	"encoding/json"
	"time"
)

// Offer is a single available slot returned by the search endpoint.
// Payload carries the endpoint's response body verbatim; the booking call must
// re-submit it unmodified because the server deep-links reminder preferences
// into that blob.
type Offer struct {
	SiteName    string
	SiteAddress string
	Date        time.Time
	Time        string
	Payload     json.RawMessage
}

// Appointment is an already-booked future appointment, as returned by the
// appointment listing endpoint.
type Appointment struct {
	SiteName    string
	SiteAddress string
	Date        string
	Time        string
}

// Attempt is one recorded find/book cycle.
type Attempt struct {
	ID        int64
	At        time.Time
	Outcome   Outcome
	SlotDate  string
	SlotTime  string
	SiteName  string
	CitizenID string
}
