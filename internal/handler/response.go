package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/devicehub/internal/middleware"
	"github.com/hitoshi/devicehub/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限サイズ。
const maxRequestBodyBytes = 64 << 10

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをdstにデコードする。
// 失敗した場合はINVALID_REQUESTを書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	// 2つ目のJSON値が続く場合も不正なリクエストとする
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// requireUserID は認証ミドルウェアが注入したユーザーIDを返す。
// 取得できない場合は401を書き込み、falseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenMissingError())
		return "", false
	}
	return userID, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError {
			slog.Error("request failed",
				slog.String("path", r.URL.Path),
				slog.String("code", apiErr.Code),
				slog.String("error", err.Error()),
			)
		}
		if apiErr.IsTransient() {
			w.Header().Set("Retry-After", "1")
		}
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeTokenMissing, model.ErrCodeTokenInvalid, model.ErrCodeTokenExpired,
		model.ErrCodeInvalidCredential:
		return http.StatusUnauthorized
	case model.ErrCodeQuotaExceeded:
		return http.StatusForbidden
	case model.ErrCodeDeviceNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeDeviceConflict, model.ErrCodeEmailTaken:
		return http.StatusConflict
	case model.ErrCodeInvalidDevice, model.ErrCodeInvalidCommand, model.ErrCodeInvalidPlan,
		model.ErrCodeInvalidRequest, model.ErrCodeInvalidAccount, model.ErrCodeSignatureInvalid:
		return http.StatusBadRequest
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeBillingFailed:
		return http.StatusBadGateway
	case model.ErrCodeTimeout, model.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
