package intake

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcoscare/companion/internal/model/intake"
	"github.com/pcoscare/companion/internal/upstream"
)

func newTestService(t *testing.T, status int, received *map[string]any) *Service {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if received != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(received))
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	catalog, err := intake.LoadCatalog()
	require.NoError(t, err)

	hooks := Webhooks{Consultation: srv.URL, Booking: srv.URL, SampleCollection: srv.URL}
	svc := NewService(hooks, catalog, srv.Client())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return svc
}

func TestSubmitBookingStampsSubmittedAt(t *testing.T) {
	var got map[string]any
	svc := newTestService(t, http.StatusCreated, &got)

	err := svc.SubmitBooking(context.Background(), intake.BookingRequest{
		Name:          "Ayesha Khan",
		Email:         "ayesha@example.com",
		Phone:         "+92 300 0000000",
		PreferredDate: "2026-03-04",
		PreferredTime: "morning",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ayesha Khan", got["name"])
	assert.Equal(t, "2026-03-01T09:30:00Z", got["submittedAt"])
}

func TestSubmitSampleCollectionUsesCatalog(t *testing.T) {
	svc := newTestService(t, http.StatusOK, nil)
	test := svc.Catalog().Tests[0]

	req := intake.SampleCollectionRequest{
		TestType:      test.ID,
		FullName:      "Sara",
		Email:         "sara@example.com",
		Address:       "12 Canal Road",
		PreferredDate: "2026-03-05",
		PreferredTime: svc.Catalog().TimeSlots[0],
		AgreedToTerms: true,
	}
	require.NoError(t, svc.SubmitSampleCollection(context.Background(), req))

	req.TestType = "unknown-test"
	var verr *intake.ValidationError
	require.ErrorAs(t, svc.SubmitSampleCollection(context.Background(), req), &verr)
	assert.Equal(t, "testType", verr.Field)
}

func TestWebhookFailures(t *testing.T) {
	svc := newTestService(t, http.StatusServiceUnavailable, nil)

	err := svc.SubmitConsultation(context.Background(), intake.ConsultationRequest{
		FullName:            "Maryam",
		Email:               "maryam@example.com",
		Phone:               "0300",
		AppointmentDateTime: "2026-03-10T10:00",
		ConsultationType:    "virtual",
	})
	var uerr *upstream.Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusServiceUnavailable, uerr.Status)

	err = svc.SendChatbaseMessage(context.Background(), intake.ChatbaseMessage{Message: "Do you test AMH?"})
	assert.ErrorIs(t, err, ErrWebhookNotConfigured)
}
