package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/devicehub/internal/middleware"
)

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseAPIErrorResponse はレスポンスボディからエラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
}
