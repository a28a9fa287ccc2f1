package middleware

import "net/http"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// JSON APIのみを返すため、Content-Security-Policy はすべて拒否とする。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
