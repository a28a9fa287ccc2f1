package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/devicehub/internal/metrics"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// requestInfo は内側のミドルウェアで判明した情報をアクセスログへ渡す。
// 認証ミドルウェアは内側で動くため、コンテキストの値はここから見えない。
type requestInfo struct {
	userID string
}

var requestInfoContextKey = contextKey("request_info")

func setRequestUserID(ctx context.Context, userID string) {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.userID = userID
	}
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id、user_id（認証済みの場合）を含む。
// collectorが指定されている場合はステータスコードとレイテンシも記録する。
func NewLoggingMiddleware(logger *slog.Logger, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			info := &requestInfo{}
			ctx := context.WithValue(r.Context(), requestInfoContextKey, info)

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			collector.RecordHTTPStatus(rec.statusCode)
			collector.RecordRequestLatency(duration)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				args = append(args, slog.String("request_id", reqID))
			}
			if info.userID != "" {
				args = append(args, slog.String("user_id", info.userID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
