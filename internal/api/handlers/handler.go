// handler.go — основной обработчик API FileGuard.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/fileguard/internal/api/errors"
	"github.com/bigkaa/fileguard/internal/service"
)

// APIHandler — основной обработчик API FileGuard.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health      *HealthHandler
	users       *service.UserService
	folders     *service.FolderService
	files       *service.FileService
	permissions *service.PermissionService
	requests    *service.RequestService
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	users *service.UserService,
	folders *service.FolderService,
	files *service.FileService,
	permissions *service.PermissionService,
	requests *service.RequestService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		users:       users,
		folders:     folders,
		files:       files,
		permissions: permissions,
		requests:    requests,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// parsePagination извлекает limit и offset из query string
// и нормализует их к допустимым значениям.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0

	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			limit = v
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			offset = v
		}
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

// writeServiceError маппит ошибку сервисного слоя в HTTP-ответ.
// Неожиданные ошибки логируются и возвращаются как 500 с fallback-сообщением.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidRole):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrSelfDemotion):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		apierrors.StorageUnavailable(w, err.Error())
	default:
		h.logger.Error(fallback, slog.String("error", err.Error()))
		apierrors.InternalError(w, fallback)
	}
}
