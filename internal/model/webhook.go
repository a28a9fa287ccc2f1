package model

import "time"

// WebhookEvent は署名検証済みの課金プロバイダーイベントを表す。
// 永続化はせず、1回だけ消費される。
type WebhookEvent struct {
	ID                     string
	Type                   string
	Mode                   string
	AmountTotal            int64
	BillingSubscriptionRef string
	BillingCustomerRef     string
	SubscriptionStatus     string
	Metadata               map[string]string
}

// MetadataValue はメタデータの値を返す。存在しない場合は空文字を返す。
func (e *WebhookEvent) MetadataValue(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// WebhookOutcome はWebhookイベント処理の結果を表す。
type WebhookOutcome string

const (
	WebhookOutcomeApplied        WebhookOutcome = "applied"
	WebhookOutcomeIgnored        WebhookOutcome = "ignored"
	WebhookOutcomeDuplicate      WebhookOutcome = "duplicate"
	WebhookOutcomeUserNotFound   WebhookOutcome = "user_not_found"
	WebhookOutcomeUnresolvedPlan WebhookOutcome = "unresolved_plan"
)

// ProcessedWebhookEvent は処理済みイベントの台帳レコード。
// プロバイダーの再送による二重適用を防ぐ。
type ProcessedWebhookEvent struct {
	EventID     string
	EventType   string
	Outcome     WebhookOutcome
	ProcessedAt time.Time
}
