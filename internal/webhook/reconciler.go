// Package webhook は課金プロバイダーのWebhookイベントを検証し、
// ユーザーのサブスクリプション状態へ反映する。
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/devicehub/internal/billing"
	"github.com/hitoshi/devicehub/internal/metrics"
	"github.com/hitoshi/devicehub/internal/model"
	"github.com/hitoshi/devicehub/internal/repository"
)

// 台帳に記録しない結果のメトリクスラベル
const (
	outcomeSignatureInvalid = "signature_invalid"
	outcomeError            = "error"
)

// PlanMapping は決済情報からプランを解決する対応表。
// price IDを優先し、見つからない場合のみ決済金額で照合する。
type PlanMapping struct {
	PriceIDs map[string]string
	Amounts  map[int64]string
}

// Resolve はイベントのprice IDまたは金額からプランを返す。
// どちらにも一致しない場合はfalseを返す。
func (m PlanMapping) Resolve(priceID string, amount int64) (model.Plan, bool) {
	if priceID != "" {
		if name, ok := m.PriceIDs[priceID]; ok {
			return parsePaidPlan(name)
		}
	}
	if amount > 0 {
		if name, ok := m.Amounts[amount]; ok {
			return parsePaidPlan(name)
		}
	}
	return "", false
}

func parsePaidPlan(name string) (model.Plan, bool) {
	p, ok := model.ParsePlan(name)
	if !ok || p == model.PlanNone {
		return "", false
	}
	return p, true
}

// Reconciler はWebhookイベントを処理する。
// 1イベントにつきユーザー更新は高々1回で、処理済みイベントは台帳で重複を排除する。
type Reconciler struct {
	billing   billing.Client
	userRepo  repository.UserRepository
	eventRepo repository.WebhookEventRepository
	plans     PlanMapping
	collector metrics.MetricsCollector
	now       func() time.Time
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(
	client billing.Client,
	userRepo repository.UserRepository,
	eventRepo repository.WebhookEventRepository,
	plans PlanMapping,
	collector metrics.MetricsCollector,
) *Reconciler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Reconciler{
		billing:   client,
		userRepo:  userRepo,
		eventRepo: eventRepo,
		plans:     plans,
		collector: collector,
		now:       time.Now,
	}
}

// Handle は署名を検証したうえでイベントを適用し、処理結果を返す。
//
// 署名検証に失敗した場合はSIGNATURE_INVALIDを返し、何も変更しない。
// ストアの一時的障害で失敗した場合はイベントを台帳に記録しないため、
// プロバイダーの再送で改めて適用される。
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signatureHeader string) (model.WebhookOutcome, error) {
	ev, err := r.billing.ParseWebhook(payload, signatureHeader)
	malformed := false
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrSignatureInvalid):
		slog.Warn("webhook signature verification failed", slog.String("error", err.Error()))
		r.collector.RecordWebhookOutcome(outcomeSignatureInvalid)
		return "", model.NewSignatureInvalidError()
	case errors.Is(err, billing.ErrEventMalformed):
		// 署名は正しいため再送しても結果は変わらない。ignoredとして受理する
		if ev == nil || ev.ID == "" {
			slog.Warn("webhook event without id could not be decoded", slog.String("error", err.Error()))
			r.collector.RecordWebhookOutcome(string(model.WebhookOutcomeIgnored))
			return model.WebhookOutcomeIgnored, nil
		}
		slog.Warn("webhook event object could not be decoded",
			slog.String("event_id", ev.ID),
			slog.String("event_type", ev.Type),
			slog.String("error", err.Error()),
		)
		malformed = true
	default:
		r.collector.RecordWebhookOutcome(outcomeError)
		return "", fmt.Errorf("Webhookイベントの解析に失敗しました: %w", err)
	}

	logger := slog.With(slog.String("event_id", ev.ID), slog.String("event_type", ev.Type))

	processed, err := r.eventRepo.IsProcessed(ctx, ev.ID)
	if err != nil {
		r.collector.RecordWebhookOutcome(outcomeError)
		return "", fmt.Errorf("処理済みイベントの確認に失敗しました: %w", err)
	}
	if processed {
		logger.Info("webhook event already processed")
		r.collector.RecordWebhookOutcome(string(model.WebhookOutcomeDuplicate))
		return model.WebhookOutcomeDuplicate, nil
	}

	outcome := model.WebhookOutcomeIgnored
	if !malformed {
		outcome, err = r.apply(ctx, logger, ev)
	}
	if err != nil {
		logger.Error("webhook event processing failed", slog.String("error", err.Error()))
		r.collector.RecordWebhookOutcome(outcomeError)
		return "", err
	}

	if err := r.eventRepo.MarkProcessed(ctx, &model.ProcessedWebhookEvent{
		EventID:     ev.ID,
		EventType:   ev.Type,
		Outcome:     outcome,
		ProcessedAt: r.now().UTC(),
	}); err != nil {
		r.collector.RecordWebhookOutcome(outcomeError)
		return "", fmt.Errorf("処理済みイベントの記録に失敗しました: %w", err)
	}

	logger.Info("webhook event processed", slog.String("outcome", string(outcome)))
	r.collector.RecordWebhookOutcome(string(outcome))
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, logger *slog.Logger, ev *model.WebhookEvent) (model.WebhookOutcome, error) {
	switch ev.Type {
	case billing.EventCheckoutSessionCompleted:
		if ev.Mode != billing.CheckoutModeSubscription {
			return model.WebhookOutcomeIgnored, nil
		}
		return r.applyCheckout(ctx, logger, ev)
	case billing.EventCustomerSubscriptionDelete:
		return r.applyCancellation(ctx, logger, ev)
	default:
		return model.WebhookOutcomeIgnored, nil
	}
}

// applyCheckout は購入完了イベントのプランを有効化する。
func (r *Reconciler) applyCheckout(ctx context.Context, logger *slog.Logger, ev *model.WebhookEvent) (model.WebhookOutcome, error) {
	userID := ev.MetadataValue(billing.MetadataUserID)
	if userID == "" {
		logger.Warn("checkout session has no user id in metadata")
		return model.WebhookOutcomeUserNotFound, nil
	}

	user, err := r.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		logger.Warn("checkout session user not found", slog.String("user_id", userID))
		return model.WebhookOutcomeUserNotFound, nil
	}

	priceID := ev.MetadataValue(billing.MetadataPriceID)
	plan, ok := r.plans.Resolve(priceID, ev.AmountTotal)
	if !ok {
		logger.Error("checkout session plan could not be resolved",
			slog.String("user_id", userID),
			slog.String("price_id", priceID),
			slog.Int64("amount_total", ev.AmountTotal),
		)
		return model.WebhookOutcomeUnresolvedPlan, nil
	}

	sub := model.Subscription{
		Plan:                   plan,
		Status:                 model.SubscriptionStatusActive,
		BillingCustomerRef:     ev.BillingCustomerRef,
		BillingSubscriptionRef: ev.BillingSubscriptionRef,
	}
	if err := r.userRepo.UpdateSubscription(ctx, user.ID, sub); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("user deleted before subscription update", slog.String("user_id", userID))
			return model.WebhookOutcomeUserNotFound, nil
		}
		return "", fmt.Errorf("サブスクリプションの更新に失敗しました: %w", err)
	}

	logger.Info("subscription activated",
		slog.String("user_id", user.ID),
		slog.String("plan", string(plan)),
	)
	return model.WebhookOutcomeApplied, nil
}

// applyCancellation はサブスクリプション解約イベントでプランをnoneに戻す。
func (r *Reconciler) applyCancellation(ctx context.Context, logger *slog.Logger, ev *model.WebhookEvent) (model.WebhookOutcome, error) {
	user, err := r.userRepo.FindByBillingSubscriptionRef(ctx, ev.BillingSubscriptionRef)
	if err != nil {
		return "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.WebhookOutcomeIgnored, nil
	}

	sub := user.Subscription
	sub.Plan = model.PlanNone
	sub.Status = model.SubscriptionStatusCanceled
	if err := r.userRepo.UpdateSubscription(ctx, user.ID, sub); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.WebhookOutcomeIgnored, nil
		}
		return "", fmt.Errorf("サブスクリプションの更新に失敗しました: %w", err)
	}

	logger.Info("subscription canceled", slog.String("user_id", user.ID))
	return model.WebhookOutcomeApplied, nil
}
