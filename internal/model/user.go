// Package model はドメインモデルを定義する。
package model

import "time"

// Plan はサブスクリプションのプランを表す。
type Plan string

const (
	PlanNone    Plan = "none"
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
)

// ParsePlan は文字列をPlanに変換する。未知の値の場合はfalseを返す。
func ParsePlan(s string) (Plan, bool) {
	switch Plan(s) {
	case PlanNone, PlanBasic, PlanPremium:
		return Plan(s), true
	default:
		return "", false
	}
}

// SubscriptionStatus はサブスクリプションの状態を表す。
// 課金プロバイダー由来の値をそのまま保持するため、列挙以外の値も取りうる。
type SubscriptionStatus string

const (
	SubscriptionStatusNone     SubscriptionStatus = "none"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription はユーザーの現在のサブスクリプション状態を表す。
// plan と status の書き換えは Webhook 経由でのみ行う。
type Subscription struct {
	Plan                   Plan
	Status                 SubscriptionStatus
	BillingCustomerRef     string
	BillingSubscriptionRef string
}

// NoSubscription はユーザー作成時の初期状態を返す。
func NoSubscription() Subscription {
	return Subscription{Plan: PlanNone, Status: SubscriptionStatusNone}
}

// User はサービス利用ユーザーを表す。
// 所有デバイスは Device.UserID が正であり、User側には保持しない。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Subscription Subscription
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
