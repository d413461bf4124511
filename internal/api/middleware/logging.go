// logging.go — access-лог HTTP-запросов через slog.
// Уровень записи выводится из статуса ответа: при FG_LOG_LEVEL=warn
// в логе остаются только проблемные запросы.
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// responseRecorder фиксирует статус и объём ответа для access-лога.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += int64(n)
	return n, err
}

// Unwrap открывает оригинальный ResponseWriter для http.ResponseController.
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// levelForStatus выбирает уровень записи по статусу ответа.
func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RequestLogger возвращает middleware, пишущий по одной записи на
// запрос: метод, путь, статус, длительность, размер ответа и адрес
// клиента. Query string не логируется — в ней бывают поисковые
// подстроки по пользователям.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	accessLog := logger.With(slog.String("component", "http_access"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			accessLog.LogAttrs(r.Context(), levelForStatus(rec.status), "HTTP запрос",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
