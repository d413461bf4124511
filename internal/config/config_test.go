package config

import (
	"log/slog"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"FG_DB_HOST":       "localhost",
		"FG_DB_NAME":       "fileguard",
		"FG_DB_USER":       "fileguard",
		"FG_DB_PASSWORD":   "secret",
		"FG_IDP_ISSUER":    "https://idp.example.com/realms/fileguard",
		"FG_S3_BUCKET":     "fileguard-files",
		"FG_S3_ACCESS_KEY": "access",
		"FG_S3_SECRET_KEY": "secret",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.S3Region != "us-east-1" {
		t.Errorf("S3Region = %q, ожидается us-east-1", cfg.S3Region)
	}
	if !cfg.S3UsePathStyle {
		t.Error("S3UsePathStyle = false, ожидается true")
	}
	if cfg.SignedURLTTL != time.Hour {
		t.Errorf("SignedURLTTL = %v, ожидается 1h", cfg.SignedURLTTL)
	}
	if cfg.PermCacheSize != 256 {
		t.Errorf("PermCacheSize = %d, ожидается 256", cfg.PermCacheSize)
	}
	if cfg.PermCacheTTL != 15*time.Minute {
		t.Errorf("PermCacheTTL = %v, ожидается 15m", cfg.PermCacheTTL)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_JWKSAutoDerive(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	expected := "https://idp.example.com/realms/fileguard/protocol/openid-connect/certs"
	if cfg.IDPJWKSURL != expected {
		t.Errorf("IDPJWKSURL = %q, ожидается %q", cfg.IDPJWKSURL, expected)
	}
}

func TestLoad_TrailingSlashTrimmed(t *testing.T) {
	envs := minimalEnvs()
	envs["FG_IDP_ISSUER"] = "https://idp.example.com/realms/fileguard/"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.IDPIssuer != "https://idp.example.com/realms/fileguard" {
		t.Errorf("IDPIssuer = %q, trailing slash не убран", cfg.IDPIssuer)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["FG_PORT"] = "9090"
	envs["FG_LOG_LEVEL"] = "debug"
	envs["FG_LOG_FORMAT"] = "text"
	envs["FG_S3_ENDPOINT"] = "https://minio.example.com"
	envs["FG_SIGNED_URL_TTL"] = "30m"
	envs["FG_PERM_CACHE_SIZE"] = "1024"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, ожидается 9090", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.S3Endpoint != "https://minio.example.com" {
		t.Errorf("S3Endpoint = %q", cfg.S3Endpoint)
	}
	if cfg.SignedURLTTL != 30*time.Minute {
		t.Errorf("SignedURLTTL = %v, ожидается 30m", cfg.SignedURLTTL)
	}
	if cfg.PermCacheSize != 1024 {
		t.Errorf("PermCacheSize = %d, ожидается 1024", cfg.PermCacheSize)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	required := []string{
		"FG_DB_HOST", "FG_DB_NAME", "FG_DB_USER", "FG_DB_PASSWORD",
		"FG_IDP_ISSUER", "FG_S3_BUCKET", "FG_S3_ACCESS_KEY", "FG_S3_SECRET_KEY",
	}

	for _, missing := range required {
		t.Run(missing, func(t *testing.T) {
			envs := minimalEnvs()
			envs[missing] = ""
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("Load() без %s не вернул ошибку", missing)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "нечисловой порт", key: "FG_PORT", value: "http"},
		{name: "порт вне диапазона", key: "FG_PORT", value: "70000"},
		{name: "неизвестный уровень логирования", key: "FG_LOG_LEVEL", value: "verbose"},
		{name: "неизвестный формат логов", key: "FG_LOG_FORMAT", value: "xml"},
		{name: "неизвестный ssl mode", key: "FG_DB_SSL_MODE", value: "strict"},
		{name: "некорректная длительность", key: "FG_SIGNED_URL_TTL", value: "soon"},
		{name: "некорректное булево", key: "FG_S3_USE_PATH_STYLE", value: "maybe"},
		{name: "нулевой размер кэша", key: "FG_PERM_CACHE_SIZE", value: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("Load() с %s=%q не вернул ошибку", tt.key, tt.value)
			}
		})
	}
}
