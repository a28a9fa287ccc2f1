// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/devicehub/internal/auth"
	"github.com/hitoshi/devicehub/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// NewAuthMiddleware は Authorization: Bearer ヘッダーのトークンを検証するミドルウェアを返す。
// 検証に成功したユーザーIDをリクエストコンテキストに注入する。
// トークンが無い・不正・期限切れの場合は401を返す。
func NewAuthMiddleware(verifier auth.TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.Verify(bearerToken(r))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="devicehub"`)
				WriteErrorResponse(w, http.StatusUnauthorized, tokenError(err))
				if !errors.Is(err, auth.ErrTokenMissing) {
					slog.Warn("bearer token rejected",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
				}
				return
			}

			setRequestUserID(r.Context(), identity.UserID)
			ctx := context.WithValue(r.Context(), userIDContextKey, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークン部分を取り出す。
// スキーム名は大文字小文字を区別しない。
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func tokenError(err error) *model.APIError {
	switch {
	case errors.Is(err, auth.ErrTokenMissing):
		return model.NewTokenMissingError()
	case errors.Is(err, auth.ErrTokenExpired):
		return model.NewTokenExpiredError()
	default:
		return model.NewTokenInvalidError()
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
