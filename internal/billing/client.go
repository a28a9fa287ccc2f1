// Package billing は課金プロバイダー（Stripe）との連携を提供する。
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/hitoshi/devicehub/internal/model"
)

// ErrSignatureInvalid はWebhook署名の検証に失敗したことを表す。
// 失敗理由（タイムスタンプ超過、署名不一致など）は区別しない。
var ErrSignatureInvalid = errors.New("billing: webhook signature invalid")

// ErrEventMalformed は署名検証済みイベントのオブジェクトを解釈できなかったことを表す。
// この場合もIDと種別を持つイベントが併せて返される。
var ErrEventMalformed = errors.New("billing: webhook event object malformed")

// Webhookで扱うイベント種別
const (
	EventCheckoutSessionCompleted   = "checkout.session.completed"
	EventCustomerSubscriptionDelete = "customer.subscription.deleted"
	CheckoutModeSubscription        = "subscription"
)

// セッションメタデータのキー
const (
	MetadataUserID  = "userId"
	MetadataPriceID = "priceId"
)

// CheckoutRequest はチェックアウトセッション作成の入力。
type CheckoutRequest struct {
	UserID     string
	Email      string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// Client は課金プロバイダーのインターフェース。起動時に1回だけ生成して注入する。
type Client interface {
	// CreateCheckoutSession はサブスクリプション購入用のチェックアウトセッションを作成し、URLを返す。
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	// ParseWebhook はペイロードの署名を検証し、イベントを返す。
	// オブジェクトを解釈できない場合はイベントとErrEventMalformedを同時に返す。
	ParseWebhook(payload []byte, signatureHeader string) (*model.WebhookEvent, error)
}

// sessionCreator はstripe checkout session APIの抽象。
type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeClient はStripeを使用したClient実装。
// APIキーはクライアントごとに保持し、パッケージグローバルの stripe.Key は使わない。
type StripeClient struct {
	sessions      sessionCreator
	webhookSecret string
	tolerance     time.Duration
}

// StripeConfig はStripeClientの設定。
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Tolerance     time.Duration
}

// NewStripeClient はStripeClientを生成する。
func NewStripeClient(cfg StripeConfig) *StripeClient {
	return &StripeClient{
		sessions: &stripesession.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: cfg.SecretKey,
		},
		webhookSecret: cfg.WebhookSecret,
		tolerance:     cfg.Tolerance,
	}
}

// CreateCheckoutSession はサブスクリプションモードのチェックアウトセッションを作成する。
// メタデータにユーザーIDとprice IDを載せ、Webhook側でユーザーとプランを解決する。
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			MetadataUserID:  req.UserID,
			MetadataPriceID: req.PriceID,
		},
	}
	params.Context = ctx

	session, err := c.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session.URL, nil
}

// ParseWebhook は Stripe-Signature ヘッダーを検証し、イベントをドメイン表現に変換する。
// 署名検証はタイムスタンプ + ペイロードの HMAC-SHA256 を許容時間内で定数時間比較する。
func (c *StripeClient) ParseWebhook(payload []byte, signatureHeader string) (*model.WebhookEvent, error) {
	if strings.TrimSpace(signatureHeader) == "" || c.webhookSecret == "" {
		return nil, ErrSignatureInvalid
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	return decodeEvent(event.ID, string(event.Type), event.Data)
}

// checkoutSessionObject は checkout.session イベントの最小表現。
type checkoutSessionObject struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	AmountTotal  int64             `json:"amount_total"`
	Metadata     map[string]string `json:"metadata"`
}

// subscriptionObject は customer.subscription イベントの最小表現。
type subscriptionObject struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

func decodeEvent(id, eventType string, data *stripe.EventData) (*model.WebhookEvent, error) {
	ev := &model.WebhookEvent{ID: id, Type: eventType}
	if data == nil {
		return ev, nil
	}

	switch eventType {
	case EventCheckoutSessionCompleted:
		var obj checkoutSessionObject
		if err := json.Unmarshal(data.Raw, &obj); err != nil {
			return ev, fmt.Errorf("%w: decode checkout.session: %v", ErrEventMalformed, err)
		}
		ev.Mode = obj.Mode
		ev.AmountTotal = obj.AmountTotal
		ev.BillingCustomerRef = obj.Customer
		ev.BillingSubscriptionRef = obj.Subscription
		ev.Metadata = obj.Metadata

	case EventCustomerSubscriptionDelete:
		var obj subscriptionObject
		if err := json.Unmarshal(data.Raw, &obj); err != nil {
			return ev, fmt.Errorf("%w: decode subscription: %v", ErrEventMalformed, err)
		}
		ev.BillingCustomerRef = obj.Customer
		ev.BillingSubscriptionRef = obj.ID
		ev.SubscriptionStatus = obj.Status
		ev.Metadata = obj.Metadata
	}

	return ev, nil
}

var _ Client = (*StripeClient)(nil)
