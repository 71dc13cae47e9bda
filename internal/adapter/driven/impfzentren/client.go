// Package impfzentren implements the SlotClient port against the Bavarian
// vaccination portal's appointments API.
package impfzentren

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/impfwatch/impfwatch/internal/domain/model"
	"github.com/impfwatch/impfwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SlotClient = (*Client)(nil)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:95.0) Gecko/20100101 Firefox/95.0"

const dateLayout = "2006-01-02"

// Client calls the appointments API for a single citizen, authenticated
// through a TokenSource. A 401 on any call resets the token source so the
// next attempt re-authenticates; the client itself never retries.
type Client struct {
	baseURL   string
	citizenID string
	tokens    driven.TokenSource
	http      *http.Client
}

// NewClient creates a Client for the given API base URL (".../api/v1") and
// citizen id. No request timeout is set beyond the transport's defaults.
func NewClient(baseURL, citizenID string, tokens driven.TokenSource) *Client {
	return NewClientWithHTTPClient(&http.Client{}, baseURL, citizenID, tokens)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client. This
// constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, citizenID string, tokens driven.TokenSource) *Client {
	return &Client{
		baseURL:   baseURL,
		citizenID: citizenID,
		tokens:    tokens,
		http:      httpClient,
	}
}

// offerJSON mirrors the fields of the search response we read. The full body
// is kept verbatim as the booking payload.
type offerJSON struct {
	VaccinationDate string   `json:"vaccinationDate"`
	VaccinationTime string   `json:"vaccinationTime"`
	Site            siteJSON `json:"site"`
}

type siteJSON struct {
	Name    string      `json:"name"`
	Address addressJSON `json:"address"`
}

type addressJSON struct {
	Street       string `json:"street"`
	StreetNumber string `json:"streetNumber"`
	Zip          string `json:"zip"`
	City         string `json:"city"`
}

func (a addressJSON) String() string {
	return fmt.Sprintf("%s %s, %s %s", a.Street, a.StreetNumber, a.Zip, a.City)
}

// FindNext asks the portal for the next free slot matching the query.
// Returns (nil, nil) when nothing acceptable is available: a 404, an expired
// session (after resetting the token source), an unexpected status, or an
// offer past the query's latest day. The portal has no server-side upper
// bound filter, so the latest-day cut is applied here.
func (c *Client) FindNext(ctx context.Context, q model.Query) (*model.Offer, error) {
	params := url.Values{
		"timeOfDay":       {"ALL_DAY"},
		"lastDate":        {q.EarliestDay.Format(dateLayout)},
		"lastTime":        {"00:00"},
		"vaccinationType": {string(q.Type)},
	}
	if q.Variant != nil {
		params.Set("variant", string(*q.Variant))
	}
	if q.FirstVaccine != nil {
		params.Set("firstVaccinationVaccine", string(*q.FirstVaccine))
	}

	resp, err := c.get(ctx, c.appointmentsURL("/next")+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized:
		slog.Debug("search returned 401, resetting session")
		c.tokens.Reset()
		return nil, nil
	case resp.StatusCode/100 != 2:
		slog.Warn("unexpected status from search endpoint", "status", resp.StatusCode)
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	var offer offerJSON
	if err := json.Unmarshal(body, &offer); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	day, err := time.Parse(dateLayout, offer.VaccinationDate)
	if err != nil {
		return nil, fmt.Errorf("parse offer date %q: %w", offer.VaccinationDate, err)
	}

	if !q.InRange(day) {
		slog.Info("offer is past the latest acceptable day, discarding",
			"offer_date", offer.VaccinationDate,
			"latest_day", q.LatestDay.Format(dateLayout),
		)
		return nil, nil
	}

	return &model.Offer{
		SiteName:    offer.Site.Name,
		SiteAddress: offer.Site.Address.String(),
		Date:        day,
		Time:        offer.VaccinationTime,
		Payload:     body,
	}, nil
}

// Book submits the offer for booking. The offer's payload is re-submitted
// verbatim with the reminder preferences merged in; the server deep-links
// reminder fields into the blob it returned from search. True only on an
// exact 200. Failures are logged and reported as false, never as a crash of
// the polling session.
func (c *Client) Book(ctx context.Context, offer model.Offer) (bool, error) {
	var payload map[string]any
	if err := json.Unmarshal(offer.Payload, &payload); err != nil {
		return false, fmt.Errorf("decode offer payload: %w", err)
	}
	payload["reminderChannel"] = map[string]bool{
		"reminderByEmail": true,
		"reminderBySms":   true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode booking payload: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.appointmentsURL(""), bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build booking request: %w", err)
	}
	c.setHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("submit booking: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Reset()
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("error booking appointment", "status", resp.StatusCode)
		return false, nil
	}

	slog.Info("appointment booked", "date", offer.Date.Format(dateLayout), "time", offer.Time)
	return true, nil
}

// ListUpcoming fetches the citizen's booked future appointments. An empty
// portal response and a fetch failure both come back as an empty list; the
// failure is logged, not raised.
func (c *Client) ListUpcoming(ctx context.Context) ([]model.Appointment, error) {
	resp, err := c.get(ctx, c.appointmentsURL(""))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Reset()
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("error retrieving appointments", "status", resp.StatusCode)
		return nil, nil
	}

	var parsed struct {
		FutureAppointments []struct {
			Site   siteJSON `json:"site"`
			SlotID struct {
				Date string `json:"date"`
				Time string `json:"time"`
			} `json:"slotId"`
		} `json:"futureAppointments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode appointments response: %w", err)
	}

	appointments := make([]model.Appointment, 0, len(parsed.FutureAppointments))
	for _, a := range parsed.FutureAppointments {
		appointments = append(appointments, model.Appointment{
			SiteName:    a.Site.Name,
			SiteAddress: a.Site.Address.String(),
			Date:        a.SlotID.Date,
			Time:        a.SlotID.Time,
		})
	}

	return appointments, nil
}

// get issues an authenticated GET. A token source error propagates; only the
// login path produces one, and login failure is the single fatal error class.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", rawURL, err)
	}

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Authorization", "Bearer "+token)
}

func (c *Client) appointmentsURL(resource string) string {
	return fmt.Sprintf("%s/citizens/%s/appointments%s", c.baseURL, c.citizenID, resource)
}
