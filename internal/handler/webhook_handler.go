package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/devicehub/internal/middleware"
	"github.com/hitoshi/devicehub/internal/model"
)

// maxWebhookBodyBytes はWebhookペイロードの上限サイズ。
const maxWebhookBodyBytes = 256 << 10

// signatureHeader は課金プロバイダーが署名を載せるヘッダー。
const signatureHeader = "Stripe-Signature"

// WebhookReconciler はWebhookハンドラーが必要とする処理インターフェース。
type WebhookReconciler interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) (model.WebhookOutcome, error)
}

// WebhookHandler は課金プロバイダーからのWebhookを受け付ける。
type WebhookHandler struct {
	reconciler WebhookReconciler
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(reconciler WebhookReconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// Receive はWebhookイベントを処理する。
// 署名検証には生のボディが必要なため、JSONとしてはデコードしない。
// POST /webhook
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewInvalidRequestError())
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	outcome, err := h.reconciler.Handle(r.Context(), payload, r.Header.Get(signatureHeader))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Outcome: string(outcome)})
}
