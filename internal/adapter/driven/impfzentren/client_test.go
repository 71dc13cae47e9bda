package impfzentren_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/impfwatch/impfwatch/internal/adapter/driven/impfzentren"
	"github.com/impfwatch/impfwatch/internal/domain/model"
)

// stubTokens is a TokenSource that hands out a fixed token and counts resets.
type stubTokens struct {
	token  string
	err    error
	calls  int
	resets int
}

func (s *stubTokens) Token(_ context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func (s *stubTokens) Reset() {
	s.resets++
}

func newTestClient(t *testing.T, handler http.Handler) (*impfzentren.Client, *stubTokens) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tokens := &stubTokens{token: "tok-1"}
	client := impfzentren.NewClientWithHTTPClient(server.Client(), server.URL+"/api/v1", "citizen-42", tokens)

	return client, tokens
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func boostQuery(t *testing.T, latest string) model.Query {
	t.Helper()

	var latestDay *time.Time
	if latest != "" {
		d := day(latest)
		latestDay = &d
	}

	q, err := model.NewQuery(day("2024-01-01"), latestDay, model.VaccinationBoost, nil, nil)
	require.NoError(t, err)
	return q
}

const offerBody = `{
	"vaccinationDate": "2024-01-15",
	"vaccinationTime": "10:30",
	"site": {
		"name": "Impfzentrum Riem",
		"address": {"street": "Am Messesee", "streetNumber": "2", "zip": "81829", "city": "München"}
	},
	"slotId": {"date": "2024-01-15", "time": "10:30"}
}`

func TestFindNext_ReturnsOffer(t *testing.T) {
	var gotQuery map[string][]string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/citizens/citizen-42/appointments/next", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		gotQuery = r.URL.Query()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, offerBody)
	})

	client, _ := newTestClient(t, handler)
	offer, err := client.FindNext(context.Background(), boostQuery(t, "2024-01-31"))

	require.NoError(t, err)
	require.NotNil(t, offer)

	assert.Equal(t, "Impfzentrum Riem", offer.SiteName)
	assert.Equal(t, "Am Messesee 2, 81829 München", offer.SiteAddress)
	assert.Equal(t, day("2024-01-15"), offer.Date)
	assert.Equal(t, "10:30", offer.Time)
	assert.JSONEq(t, offerBody, string(offer.Payload))

	assert.Equal(t, []string{"ALL_DAY"}, gotQuery["timeOfDay"])
	assert.Equal(t, []string{"2024-01-01"}, gotQuery["lastDate"])
	assert.Equal(t, []string{"00:00"}, gotQuery["lastTime"])
	assert.Equal(t, []string{"BOOST"}, gotQuery["vaccinationType"])
	assert.NotContains(t, gotQuery, "variant")
	assert.NotContains(t, gotQuery, "firstVaccinationVaccine")
}

func TestFindNext_OptionalFilters(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OMC_BA4-5", r.URL.Query().Get("variant"))
		assert.Equal(t, "002", r.URL.Query().Get("firstVaccinationVaccine"))
		w.WriteHeader(http.StatusNotFound)
	})

	client, _ := newTestClient(t, handler)

	variant := model.VariantOmicronBA45
	vaccine := model.VaccineBiontechPfizer
	q, err := model.NewQuery(day("2024-01-01"), nil, model.VaccinationSecond, &variant, &vaccine)
	require.NoError(t, err)

	offer, err := client.FindNext(context.Background(), q)
	require.NoError(t, err)
	assert.Nil(t, offer)
}

func TestFindNext_NotFoundIsNotAnError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client, tokens := newTestClient(t, handler)
	offer, err := client.FindNext(context.Background(), boostQuery(t, ""))

	require.NoError(t, err)
	assert.Nil(t, offer)
	assert.Zero(t, tokens.resets)
}

func TestFindNext_UnauthorizedResetsSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client, tokens := newTestClient(t, handler)
	offer, err := client.FindNext(context.Background(), boostQuery(t, ""))

	require.NoError(t, err)
	assert.Nil(t, offer)
	assert.Equal(t, 1, tokens.resets)
}

func TestFindNext_UnexpectedStatusYieldsNoOffer(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client, tokens := newTestClient(t, handler)
	offer, err := client.FindNext(context.Background(), boostQuery(t, ""))

	require.NoError(t, err)
	assert.Nil(t, offer)
	assert.Zero(t, tokens.resets)
}

func TestFindNext_OfferPastLatestDayIsDiscarded(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"vaccinationDate": "2024-02-05", "vaccinationTime": "09:00"}`)
	})

	client, _ := newTestClient(t, handler)
	offer, err := client.FindNext(context.Background(), boostQuery(t, "2024-01-31"))

	require.NoError(t, err)
	assert.Nil(t, offer)
}

func TestBook_SubmitsPayloadWithReminderChannel(t *testing.T) {
	var booked map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/citizens/citizen-42/appointments", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&booked))
		w.WriteHeader(http.StatusOK)
	})

	client, _ := newTestClient(t, handler)

	offer := model.Offer{
		Date:    day("2024-01-15"),
		Time:    "10:30",
		Payload: json.RawMessage(offerBody),
	}

	ok, err := client.Book(context.Background(), offer)
	require.NoError(t, err)
	assert.True(t, ok)

	// The search payload rides along verbatim, reminder preferences added.
	assert.Equal(t, "2024-01-15", booked["vaccinationDate"])
	assert.Equal(t, map[string]any{"date": "2024-01-15", "time": "10:30"}, booked["slotId"])
	assert.Equal(t, map[string]any{"reminderByEmail": true, "reminderBySms": true}, booked["reminderChannel"])
}

func TestBook_NonOKStatusIsALoggedFailure(t *testing.T) {
	for _, status := range []int{http.StatusCreated, http.StatusConflict, http.StatusInternalServerError} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			})

			client, _ := newTestClient(t, handler)
			ok, err := client.Book(context.Background(), model.Offer{Payload: json.RawMessage(`{}`)})

			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBook_UnauthorizedResetsSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client, tokens := newTestClient(t, handler)
	ok, err := client.Book(context.Background(), model.Offer{Payload: json.RawMessage(`{}`)})

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, tokens.resets)
}

func TestListUpcoming(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/citizens/citizen-42/appointments", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"futureAppointments": [
			{"site": {"name": "Impfzentrum Riem", "address": {"street": "Am Messesee", "streetNumber": "2", "zip": "81829", "city": "München"}},
			 "slotId": {"date": "2024-01-20", "time": "11:00"}}
		]}`)
	})

	client, _ := newTestClient(t, handler)
	appointments, err := client.ListUpcoming(context.Background())

	require.NoError(t, err)
	require.Len(t, appointments, 1)
	assert.Equal(t, "Impfzentrum Riem", appointments[0].SiteName)
	assert.Equal(t, "Am Messesee 2, 81829 München", appointments[0].SiteAddress)
	assert.Equal(t, "2024-01-20", appointments[0].Date)
	assert.Equal(t, "11:00", appointments[0].Time)
}

func TestListUpcoming_FetchFailureIsReportedNotRaised(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client, _ := newTestClient(t, handler)
	appointments, err := client.ListUpcoming(context.Background())

	require.NoError(t, err)
	assert.Empty(t, appointments)
}
