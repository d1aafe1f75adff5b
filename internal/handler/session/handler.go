package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/voiceturn/backend/internal/metrics"
	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
	"github.com/zhouzirui/voiceturn/backend/internal/service/provider"
	sessionservice "github.com/zhouzirui/voiceturn/backend/internal/service/session"
	"github.com/zhouzirui/voiceturn/backend/pkg/utils"
)

// Store 会话管理接口需要的存储能力
type Store interface {
	Create(ctx context.Context) (string, error)
	Get(ctx context.Context, id string) (model.Session, error)
	Delete(ctx context.Context, id string) bool
	List(ctx context.Context) []model.Summary
	Len() int
}

// Handler 会话管理与健康检查的HTTP处理器
type Handler struct {
	store     Store
	providers provider.Names
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// New 创建会话处理器
func New(store Store, providers provider.Names, m *metrics.Collector, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:     store,
		providers: providers,
		metrics:   m,
		logger:    logger.With(zap.String("component", "session_handler")),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Post("/sessions", h.handleCreate)
	r.Get("/sessions", h.handleList)
	r.Get("/sessions/{sessionID}", h.handleGet)
	r.Delete("/sessions/{sessionID}", h.handleDelete)
}

type healthResponse struct {
	Status         string         `json:"status"`
	Providers      provider.Names `json:"providers"`
	ActiveSessions int            `json:"active_sessions"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Providers:      h.providers,
		ActiveSessions: h.store.Len(),
	})
}

type createResponse struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := h.store.Create(r.Context())
	if err != nil {
		if errors.Is(err, sessionservice.ErrCapacityExceeded) {
			h.metrics.RecordSessionCreated("rejected")
			utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Error("create session failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.metrics.RecordSessionCreated("ok")
	utils.RespondJSON(w, http.StatusCreated, createResponse{SessionID: id})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.List(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, sessionservice.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("get session failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.store.Delete(r.Context(), chi.URLParam(r, "sessionID")) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
