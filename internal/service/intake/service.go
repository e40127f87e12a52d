// Package intake forwards clinic forms to their webhooks.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pcoscare/companion/internal/model/intake"
	"github.com/pcoscare/companion/internal/upstream"
)

var ErrWebhookNotConfigured = errors.New("webhook not configured")

// Webhooks are the destination URLs per form. An empty URL disables that form.
type Webhooks struct {
	Consultation     string
	Booking          string
	SampleCollection string
	Chatbase         string
}

// Service validates forms and posts them as JSON.
type Service struct {
	hooks      Webhooks
	catalog    *intake.Catalog
	httpClient *http.Client
	now        func() time.Time
}

// NewService creates the form collector.
func NewService(hooks Webhooks, catalog *intake.Catalog, client *http.Client) *Service {
	if client == nil {
		client = upstream.NewClient(0)
	}
	return &Service{hooks: hooks, catalog: catalog, httpClient: client, now: time.Now}
}

// Catalog returns the sample tests and collection slots on offer.
func (s *Service) Catalog() *intake.Catalog {
	return s.catalog
}

func (s *Service) SubmitConsultation(ctx context.Context, req intake.ConsultationRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	req.SubmittedAt = s.now().UTC()
	return s.post(ctx, "consultation", s.hooks.Consultation, req)
}

func (s *Service) SubmitBooking(ctx context.Context, req intake.BookingRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	req.SubmittedAt = s.now().UTC()
	return s.post(ctx, "booking", s.hooks.Booking, req)
}

func (s *Service) SubmitSampleCollection(ctx context.Context, req intake.SampleCollectionRequest) error {
	if err := req.Validate(s.catalog); err != nil {
		return err
	}
	req.SubmittedAt = s.now().UTC()
	return s.post(ctx, "sample collection", s.hooks.SampleCollection, req)
}

func (s *Service) SendChatbaseMessage(ctx context.Context, msg intake.ChatbaseMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	msg.SubmittedAt = s.now().UTC()
	return s.post(ctx, "chatbase", s.hooks.Chatbase, msg)
}

func (s *Service) post(ctx context.Context, form, url string, payload any) error {
	if url == "" {
		return fmt.Errorf("%s: %w", form, ErrWebhookNotConfigured)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", form, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", form, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s webhook failed: %w", form, err)
	}
	if err := upstream.CheckResponse(form+" webhook", resp); err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	log.Printf("[intake] %s submitted", form)
	return nil
}
