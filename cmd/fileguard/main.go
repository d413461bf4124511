// Точка входа FileGuard — сервис управления правами доступа к файловому
// хранилищу. Загружает конфигурацию, применяет миграции, подключается
// к PostgreSQL и объектному хранилищу, собирает сервисный слой и API
// handlers, запускает мониторинг зависимостей (topologymetrics) и
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/fileguard/internal/api/handlers"
	"github.com/bigkaa/fileguard/internal/api/middleware"
	"github.com/bigkaa/fileguard/internal/config"
	"github.com/bigkaa/fileguard/internal/database"
	"github.com/bigkaa/fileguard/internal/domain/policy"
	"github.com/bigkaa/fileguard/internal/repository"
	"github.com/bigkaa/fileguard/internal/server"
	"github.com/bigkaa/fileguard/internal/service"
	"github.com/bigkaa/fileguard/internal/storage"
)

// Интервалы JWT/JWKS. Смена ключей IdP — редкое событие,
// выносить в конфигурацию нет смысла.
const (
	jwksRefreshInterval = 5 * time.Minute
	jwtLeeway           = 30 * time.Second
	idpCheckTimeout     = 5 * time.Second
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("FileGuard запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("FG_DEPHEALTH_GROUP") == "" {
		logger.Warn("FG_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Объектное хранилище (S3)
	store, err := storage.NewS3Store(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к объектному хранилищу", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Repositories
	profileRepo := repository.NewProfileRepository(pool)
	folderRepo := repository.NewFolderRepository(pool)
	fileRepo := repository.NewFileRepository(pool)
	permRepo := repository.NewPermissionRepository(pool)
	templateRepo := repository.NewTemplateRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)
	requestRepo := repository.NewRequestRepository(pool)

	txRunner := repository.NewTxRunner(pool)
	changeWriter := repository.NewChangeWriter(txRunner)

	// 7. Services
	usersSvc := service.NewUserService(profileRepo, logger)
	foldersSvc := service.NewFolderService(folderRepo, store, logger)
	filesSvc := service.NewFileService(fileRepo, folderRepo, store, logger)
	permissionsSvc := service.NewPermissionService(
		profileRepo, folderRepo, permRepo, templateRepo, historyRepo,
		changeWriter,
		cfg.PermCacheSize, cfg.PermCacheTTL,
		logger,
	)
	requestsSvc := service.NewRequestService(
		requestRepo, folderRepo, profileRepo, permissionsSvc,
		logger,
	)

	// 8. Readiness checkers (PostgreSQL + IdP)
	pgChecker := database.NewReadinessChecker(pool)
	idpChecker, err := middleware.NewIDPReadinessChecker(cfg.IDPJWKSURL, "", idpCheckTimeout)
	if err != nil {
		logger.Error("Ошибка создания IdP readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, idpChecker)

	// 9. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		usersSvc,
		foldersSvc,
		filesSvc,
		permissionsSvc,
		requestsSvc,
		logger,
	)

	// 10. JWT middleware
	// Адаптер ProfileRepository → middleware.RoleProvider
	roleProvider := &profileRoleAdapter{profiles: profileRepo}

	jwtAuth, err := middleware.NewJWTAuth(
		cfg.IDPJWKSURL,
		"",
		cfg.IDPIssuer,
		roleProvider,
		jwksRefreshInterval,
		jwtLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.IDPJWKSURL),
		slog.String("issuer", cfg.IDPIssuer),
	)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + IdP + S3)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"fileguard",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.IDPJWKSURL,
		cfg.S3Endpoint,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
		defer dephealthSvc.Stop()
	}

	// 12. HTTP-сервер с graceful shutdown
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("FileGuard остановлен")
}

// profileRoleAdapter — адаптер ProfileRepository к middleware.RoleProvider.
// Субъект без профиля получает роль guest: аккаунт заведён в IdP,
// но в FileGuard ещё не создан.
type profileRoleAdapter struct {
	profiles repository.ProfileRepository
}

func (a *profileRoleAdapter) ResolveRole(ctx context.Context, userID string) (string, bool, error) {
	profile, err := a.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return policy.RoleGuest, false, nil
		}
		return "", false, err
	}
	return profile.Role, profile.Banned, nil
}
