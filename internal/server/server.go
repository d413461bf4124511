// Пакет server — HTTP-сервер FileGuard с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/fileguard/internal/api/handlers"
	"github.com/bigkaa/fileguard/internal/api/middleware"
	"github.com/bigkaa/fileguard/internal/config"
	"github.com/bigkaa/fileguard/internal/domain/policy"
)

// Server — HTTP-сервер FileGuard.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (может быть nil для тестирования без auth).
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, jwtAuth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// JWT middleware с исключениями для публичных endpoints.
	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	if jwtAuth != nil {
		router.Use(jwtAuthWithExclusions(jwtAuth, "/health/", "/metrics"))
	}

	registerRoutes(router, handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// registerRoutes описывает все маршруты API.
// Мутации прав, управление пользователями, bulk и решения по заявкам
// закрыты ролью admin; чтения ограничиваются областью видимости.
func registerRoutes(router chi.Router, h *handlers.APIHandler) {
	adminOnly := middleware.RequireRole(policy.RoleAdmin)

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		// Пользователи
		r.Get("/users/{id}", h.GetUser) // admin или сам пользователь
		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/users", h.ListUsers)
			r.Put("/users/{id}/role", h.SetUserRole)
			r.Put("/users/{id}/ban", h.SetUserBanned)
		})

		// Папки и файлы
		r.Get("/folders", h.ListFolders)
		r.Get("/folders/tree", h.GetFolderTree)
		r.Post("/folders", h.CreateFolder)
		r.Delete("/folders/{id}", h.DeleteFolder)

		r.Get("/files", h.ListFiles)
		r.Post("/files", h.UploadFile)
		r.Get("/files/{id}/download-url", h.GetDownloadURL)
		r.Delete("/files/{id}", h.DeleteFile)

		// Права, шаблоны, журнал
		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/permissions/{userId}", h.GetPermissionMatrix)
			r.Put("/permissions/{userId}/{folderId}", h.SetPermission)
			r.Delete("/permissions/{userId}", h.ResetPermissions)
			r.Post("/permissions/{userId}/save", h.SavePermissions)
			r.Post("/permissions/bulk", h.ApplyBulk)

			r.Get("/templates", h.ListTemplates)
			r.Post("/templates", h.CreateTemplate)
			r.Post("/templates/{id}/apply/{userId}", h.ApplyTemplate)

			r.Get("/history", h.ListHistory)
		})

		// Заявки: подача — любой аутентифицированный, решения — admin
		r.Post("/requests", h.CreateRequest)
		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/requests", h.ListRequests)
			r.Post("/requests/{id}/approve", h.ApproveRequest)
			r.Post("/requests/{id}/reject", h.RejectRequest)
		})
	})
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			jwtMiddleware(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
