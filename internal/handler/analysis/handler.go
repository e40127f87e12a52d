// Package analysis exposes ultrasound image analysis over HTTP.
package analysis

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pcoscare/companion/internal/model/analysis"
	analysissvc "github.com/pcoscare/companion/internal/service/analysis"
	"github.com/pcoscare/companion/internal/upstream"
	"github.com/pcoscare/companion/pkg/utils"
)

const maxUploadMemory = 32 << 20

// Analyzer 超声图像分类接口
type Analyzer interface {
	Analyze(ctx context.Context, filename, contentType string, r io.Reader) (*analysis.Prediction, error)
}

// Handler 超声图像分析处理器
type Handler struct {
	analyzer Analyzer
}

// New 创建分析处理器
func New(analyzer Analyzer) *Handler {
	return &Handler{analyzer: analyzer}
}

// RegisterRoutes 注册分析路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ultrasound/analyze", h.handleAnalyze)
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	prediction, err := h.analyzer.Analyze(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		var uerr *upstream.Error
		switch {
		case errors.Is(err, analysissvc.ErrUnsupportedImage):
			utils.RespondError(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.As(err, &uerr):
			log.Printf("[analysis] classifier error: %v", err)
			utils.RespondError(w, http.StatusBadGateway, "analysis service unavailable")
		default:
			log.Printf("[analysis] analyze failed: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "analysis failed")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, prediction)
}
