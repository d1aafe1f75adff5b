package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	sessionhandler "github.com/zhouzirui/voiceturn/backend/internal/handler/session"
	voicehandler "github.com/zhouzirui/voiceturn/backend/internal/handler/voice"
	"github.com/zhouzirui/voiceturn/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/voiceturn/backend/internal/middleware"
	"github.com/zhouzirui/voiceturn/backend/internal/service/provider"
	sessionservice "github.com/zhouzirui/voiceturn/backend/internal/service/session"
	voicesvc "github.com/zhouzirui/voiceturn/backend/internal/service/voice"
	"github.com/zhouzirui/voiceturn/backend/pkg/utils"
)

// Dependencies 路由需要的核心服务
type Dependencies struct {
	Sessions     *sessionservice.Store
	Orchestrator *voicesvc.Orchestrator
	Providers    provider.Names
	Metrics      *metrics.Collector
	Logger       *zap.Logger
}

// NewRouter 把 HTTP 路由接到核心服务
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	sessionHandler := sessionhandler.New(deps.Sessions, deps.Providers, deps.Metrics, logger)
	voiceHandler := voicehandler.New(deps.Sessions, deps.Orchestrator, deps.Metrics, logger)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"service":   "voiceturn",
			"status":    "running",
			"websocket": "/ws/voice/{session_id}",
		})
	})
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/api", sessionHandler.RegisterRoutes)
	voiceHandler.RegisterRoutes(r)

	return r
}
