package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pcoscare/companion/internal/handler/analysis"
	"github.com/pcoscare/companion/internal/handler/assessment"
	"github.com/pcoscare/companion/internal/handler/assistant"
	"github.com/pcoscare/companion/internal/handler/intake"
	"github.com/pcoscare/companion/internal/handler/speech"
	middlewarePkg "github.com/pcoscare/companion/internal/middleware"
	chatService "github.com/pcoscare/companion/internal/service/chat"
	"github.com/pcoscare/companion/internal/service/conversation"
	"github.com/pcoscare/companion/pkg/utils"
)

// Services 路由依赖的业务服务，Speech/Analyzer/Intake 为空时对应接口不注册
type Services struct {
	Conversations *conversation.Registry
	Speech        speech.SpeechService
	Analyzer      analysis.Analyzer
	Intake        intake.Submitter
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svcs Services, allowedOrigins []string) http.Handler {
	r := newBaseRouter(allowedOrigins)

	r.Route("/api", func(api chi.Router) {
		assessment.New(svcs.Conversations, svcs.Speech).RegisterRoutes(api)

		if svcs.Speech != nil {
			speech.New(svcs.Speech).RegisterRoutes(api)
		}
		if svcs.Analyzer != nil {
			analysis.New(svcs.Analyzer).RegisterRoutes(api)
		}
		if svcs.Intake != nil {
			intake.New(svcs.Intake).RegisterRoutes(api)
		}
	})

	return r
}

// NewAssistantRouter serves the chat endpoint the assessment conversations stream from.
func NewAssistantRouter(ai assistant.Streamer, history *chatService.Service, allowedOrigins []string) http.Handler {
	r := newBaseRouter(allowedOrigins)
	assistant.New(ai, history).RegisterRoutes(r)
	return r
}

func newBaseRouter(allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}
