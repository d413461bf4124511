// Пакет config — загрузка и валидация конфигурации FileGuard
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации FileGuard.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- IdP (OIDC) ---

	// Issuer JWT (URL realm внешнего IdP)
	IDPIssuer string
	// URL JWKS endpoint (авто-вычисляется из issuer, если не задан)
	IDPJWKSURL string

	// --- Объектное хранилище (S3) ---

	// Endpoint S3-совместимого хранилища (пустой — AWS по региону)
	S3Endpoint string
	// Регион
	S3Region string
	// Имя bucket с файлами
	S3Bucket string
	// Access key
	S3AccessKey string
	// Secret key
	S3SecretKey string
	// Path-style адресация (нужна для MinIO и подобных)
	S3UsePathStyle bool
	// Время жизни подписанных ссылок на скачивание
	SignedURLTTL time.Duration

	// --- Кэш прав ---

	// Максимум пользователей в кэше overrides
	PermCacheSize int
	// TTL записи кэша overrides
	PermCacheTTL time.Duration

	// --- Мониторинг зависимостей ---

	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// FG_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("FG_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FG_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// FG_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FG_LOG_LEVEL: %w", err)
	}

	// FG_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// FG_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("FG_DB_HOST")
	if err != nil {
		return nil, err
	}

	// FG_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("FG_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("FG_DB_PORT: %w", err)
	}

	// FG_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("FG_DB_NAME")
	if err != nil {
		return nil, err
	}

	// FG_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("FG_DB_USER")
	if err != nil {
		return nil, err
	}

	// FG_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("FG_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// FG_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("FG_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("FG_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- IdP ---

	// FG_IDP_ISSUER — обязательный
	cfg.IDPIssuer, err = getEnvRequired("FG_IDP_ISSUER")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.IDPIssuer = strings.TrimRight(cfg.IDPIssuer, "/")

	// FG_IDP_JWKS_URL — авто-вычисляется из issuer, если не задан
	cfg.IDPJWKSURL = getEnvDefault("FG_IDP_JWKS_URL",
		fmt.Sprintf("%s/protocol/openid-connect/certs", cfg.IDPIssuer))

	// --- Объектное хранилище ---

	// FG_S3_ENDPOINT — endpoint хранилища (опционально)
	cfg.S3Endpoint = getEnvDefault("FG_S3_ENDPOINT", "")

	// FG_S3_REGION — регион (по умолчанию us-east-1)
	cfg.S3Region = getEnvDefault("FG_S3_REGION", "us-east-1")

	// FG_S3_BUCKET — обязательный
	cfg.S3Bucket, err = getEnvRequired("FG_S3_BUCKET")
	if err != nil {
		return nil, err
	}

	// FG_S3_ACCESS_KEY — обязательный
	cfg.S3AccessKey, err = getEnvRequired("FG_S3_ACCESS_KEY")
	if err != nil {
		return nil, err
	}

	// FG_S3_SECRET_KEY — обязательный
	cfg.S3SecretKey, err = getEnvRequired("FG_S3_SECRET_KEY")
	if err != nil {
		return nil, err
	}

	// FG_S3_USE_PATH_STYLE — path-style адресация (по умолчанию true)
	cfg.S3UsePathStyle, err = getEnvBool("FG_S3_USE_PATH_STYLE", true)
	if err != nil {
		return nil, fmt.Errorf("FG_S3_USE_PATH_STYLE: %w", err)
	}

	// FG_SIGNED_URL_TTL — время жизни подписанных ссылок (по умолчанию 1h)
	cfg.SignedURLTTL, err = getEnvDuration("FG_SIGNED_URL_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FG_SIGNED_URL_TTL: %w", err)
	}

	// --- Кэш прав ---

	// FG_PERM_CACHE_SIZE — максимум пользователей в кэше (по умолчанию 256)
	cfg.PermCacheSize, err = getEnvInt("FG_PERM_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("FG_PERM_CACHE_SIZE: %w", err)
	}
	if cfg.PermCacheSize < 1 || cfg.PermCacheSize > 100000 {
		return nil, fmt.Errorf("FG_PERM_CACHE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.PermCacheSize)
	}

	// FG_PERM_CACHE_TTL — TTL записи кэша (по умолчанию 15m)
	cfg.PermCacheTTL, err = getEnvDuration("FG_PERM_CACHE_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FG_PERM_CACHE_TTL: %w", err)
	}

	// --- Мониторинг зависимостей ---

	// FG_DEPHEALTH_GROUP — имя группы (по умолчанию fileguard)
	cfg.DephealthGroup = getEnvDefault("FG_DEPHEALTH_GROUP", "fileguard")

	// FG_DEPHEALTH_CHECK_INTERVAL — интервал проверки (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("FG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// FG_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("FG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FG_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
