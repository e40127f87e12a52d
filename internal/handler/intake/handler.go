// Package intake exposes the clinic forms and the sample-test catalog.
package intake

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pcoscare/companion/internal/model/intake"
	intakesvc "github.com/pcoscare/companion/internal/service/intake"
	"github.com/pcoscare/companion/internal/upstream"
	"github.com/pcoscare/companion/pkg/utils"
)

// Submitter 表单提交接口
type Submitter interface {
	Catalog() *intake.Catalog
	SubmitConsultation(ctx context.Context, req intake.ConsultationRequest) error
	SubmitBooking(ctx context.Context, req intake.BookingRequest) error
	SubmitSampleCollection(ctx context.Context, req intake.SampleCollectionRequest) error
	SendChatbaseMessage(ctx context.Context, msg intake.ChatbaseMessage) error
}

// Handler 表单处理器
type Handler struct {
	svc Submitter
}

// New 创建表单处理器
func New(svc Submitter) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册表单路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/intake", func(ir chi.Router) {
		ir.Get("/sample-tests", h.handleCatalog)
		ir.Post("/consultations", submit(h.svc.SubmitConsultation))
		ir.Post("/bookings", submit(h.svc.SubmitBooking))
		ir.Post("/sample-collections", submit(h.svc.SubmitSampleCollection))
		ir.Post("/chatbase", submit(h.svc.SendChatbaseMessage))
	})
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Catalog())
}

// submit decodes a form of type T and hands it to fn.
func submit[T any](fn func(context.Context, T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form T
		if err := utils.DecodeJSON(r, &form); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := fn(r.Context(), form); err != nil {
			status, message := statusForError(err)
			if status >= http.StatusInternalServerError {
				log.Printf("[intake] submission failed: %v", err)
			}
			utils.RespondError(w, status, message)
			return
		}

		utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "submitted"})
	}
}

func statusForError(err error) (int, string) {
	var (
		verr *intake.ValidationError
		uerr *upstream.Error
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, intakesvc.ErrWebhookNotConfigured):
		return http.StatusServiceUnavailable, "form submissions are not configured"
	case errors.As(err, &uerr):
		return http.StatusBadGateway, "form service unavailable"
	default:
		return http.StatusInternalServerError, "submission failed"
	}
}
