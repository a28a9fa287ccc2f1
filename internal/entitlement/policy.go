// Package entitlement はサブスクリプションプランからデバイス登録上限を決定する。
package entitlement

import (
	"math"

	"github.com/hitoshi/devicehub/internal/model"
)

// Unlimited はpremiumプランの上限値。実運用上到達しない値として扱う。
const Unlimited = math.MaxInt32

// QuotaFor はプランに対応するデバイス登録上限を返す。
// 未知のプランはnoneと同じ1台とする。
func QuotaFor(plan model.Plan) int {
	switch plan {
	case model.PlanBasic:
		return 3
	case model.PlanPremium:
		return Unlimited
	default:
		return 1
	}
}

// EffectivePlan は上限計算に使うプランを返す。
// statusがactiveでない場合はnoneとみなす。
func EffectivePlan(sub model.Subscription) model.Plan {
	if sub.Status != model.SubscriptionStatusActive {
		return model.PlanNone
	}
	return sub.Plan
}

// QuotaForSubscription はサブスクリプション状態から上限を返す。
func QuotaForSubscription(sub model.Subscription) int {
	return QuotaFor(EffectivePlan(sub))
}
