package middleware

import (
	"context"
	"net/http"
	"time"
)

// NewDeadlineMiddleware はリクエストコンテキストに処理期限を設定するミドルウェアを返す。
// ストア呼び出しは期限を引き継ぎ、超過した場合はTIMEOUTとして503になる。
// timeoutが0以下の場合は期限を設定しない。
func NewDeadlineMiddleware(timeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
