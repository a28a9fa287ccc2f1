package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/devicehub/internal/subscription"
)

// SubscriptionServiceInterface はサブスクリプションハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	CreateCheckout(ctx context.Context, userID, plan string) (string, error)
	Status(ctx context.Context, userID string) (*subscription.StatusInfo, error)
}

// SubscriptionHandler はサブスクリプション購入・状態参照のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

type createCheckoutRequest struct {
	Plan string `json:"plan"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

type subscriptionStatusResponse struct {
	Plan        string `json:"plan"`
	Status      string `json:"status"`
	DeviceLimit int    `json:"deviceLimit"`
}

// CreateCheckout は決済ページのURLを発行する。
// POST /api/subscription/create-checkout
func (h *SubscriptionHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createCheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	url, err := h.service.CreateCheckout(r.Context(), userID, req.Plan)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

// Status は現在のプランとステータスを返す。
// GET /api/subscription/status
func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	info, err := h.service.Status(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionStatusResponse{
		Plan:        string(info.Plan),
		Status:      string(info.Status),
		DeviceLimit: info.DeviceLimit,
	})
}
