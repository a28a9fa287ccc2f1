// Package subscription はサブスクリプション購入と状態参照のドメインロジックを提供する。
// プラン・ステータスの書き換えはWebhook経由でのみ行い、このパッケージは読み取りとチェックアウト開始のみを扱う。
package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/devicehub/internal/billing"
	"github.com/hitoshi/devicehub/internal/entitlement"
	"github.com/hitoshi/devicehub/internal/model"
	"github.com/hitoshi/devicehub/internal/repository"
)

// CheckoutConfig はチェックアウトセッション作成の設定。
type CheckoutConfig struct {
	// PriceIDs は購入可能なプランからStripeのprice IDへの対応表。
	PriceIDs   map[model.Plan]string
	SuccessURL string
	CancelURL  string
}

// StatusInfo はユーザーのサブスクリプション状態と、それによるデバイス登録上限。
type StatusInfo struct {
	Plan        model.Plan
	Status      model.SubscriptionStatus
	DeviceLimit int
}

// Service はサブスクリプションのサービス層。
type Service struct {
	userRepo repository.UserRepository
	billing  billing.Client
	cfg      CheckoutConfig
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, client billing.Client, cfg CheckoutConfig) *Service {
	return &Service{
		userRepo: userRepo,
		billing:  client,
		cfg:      cfg,
	}
}

// CreateCheckout は指定プランのチェックアウトセッションを作成し、決済ページのURLを返す。
// 購入できるのはbasicとpremiumのみ。price IDが未設定のプランも無効なプランとして扱う。
func (s *Service) CreateCheckout(ctx context.Context, userID, plan string) (string, error) {
	p, ok := model.ParsePlan(plan)
	if !ok || p == model.PlanNone {
		return "", model.NewInvalidPlanError(plan)
	}
	priceID := s.cfg.PriceIDs[p]
	if priceID == "" {
		slog.Warn("price id is not configured", slog.String("plan", string(p)))
		return "", model.NewInvalidPlanError(plan)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return "", model.NewUserNotFoundError()
	}

	url, err := s.billing.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		UserID:     user.ID,
		Email:      user.Email,
		PriceID:    priceID,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		slog.Error("checkout session creation failed",
			slog.String("user_id", user.ID),
			slog.String("plan", string(p)),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %w", model.NewBillingFailedError(), err)
	}

	slog.Info("checkout session created",
		slog.String("user_id", user.ID),
		slog.String("plan", string(p)),
	)
	return url, nil
}

// Status はユーザーの現在のプランとステータスを返す。
func (s *Service) Status(ctx context.Context, userID string) (*StatusInfo, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return &StatusInfo{
		Plan:        user.Subscription.Plan,
		Status:      user.Subscription.Status,
		DeviceLimit: entitlement.QuotaForSubscription(user.Subscription),
	}, nil
}
