// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string         // エラーコード
	Message  string         // エラーメッセージ
	Category string         // カテゴリ: auth, validation, device, billing, system
	Action   string         // ユーザー向け対処方法
	Details  map[string]any // 付加情報（上限値など）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTokenMissing      = "TOKEN_MISSING"
	ErrCodeTokenInvalid      = "TOKEN_INVALID"
	ErrCodeTokenExpired      = "TOKEN_EXPIRED"
	ErrCodeInvalidCredential = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken        = "EMAIL_TAKEN"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeQuotaExceeded     = "QUOTA_EXCEEDED"
	ErrCodeDeviceNotFound    = "DEVICE_NOT_FOUND"
	ErrCodeDeviceConflict    = "DEVICE_CONFLICT"
	ErrCodeInvalidDevice     = "INVALID_DEVICE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidPlan       = "INVALID_PLAN"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeInvalidAccount    = "INVALID_ACCOUNT"
	ErrCodeSignatureInvalid  = "SIGNATURE_INVALID"
	ErrCodeBillingFailed     = "BILLING_FAILED"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeStoreUnavailable  = "STORE_UNAVAILABLE"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewTokenMissingError は認証トークン未指定エラーを生成する。
func NewTokenMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenMissing,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "Authorization: Bearer ヘッダーにトークンを指定してください。",
	}
}

// NewTokenInvalidError は不正な認証トークンエラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "認証トークンが無効です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewTokenExpiredError は期限切れの認証トークンエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "認証トークンの有効期限が切れています。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewQuotaExceededError はデバイス登録上限エラーを生成する。
func NewQuotaExceededError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeQuotaExceeded,
		Message:  fmt.Sprintf("デバイス登録数が上限（%d台）に達しています。", limit),
		Category: "device",
		Action:   "プランをアップグレードすると、さらにデバイスを追加できます。",
		Details:  map[string]any{"limit": limit},
	}
}

// NewDeviceNotFoundError はデバイス未検出エラーを生成する。
// 他ユーザー所有のデバイスも同じエラーとし、存在を漏らさない。
func NewDeviceNotFoundError(deviceID string) *APIError {
	return &APIError{
		Code:     ErrCodeDeviceNotFound,
		Message:  fmt.Sprintf("指定されたデバイスが見つかりません: %s", deviceID),
		Category: "device",
		Action:   "デバイスIDを確認してください。",
	}
}

// NewDeviceConflictError はデバイスID重複エラーを生成する。
func NewDeviceConflictError(deviceID string) *APIError {
	return &APIError{
		Code:     ErrCodeDeviceConflict,
		Message:  fmt.Sprintf("このデバイスIDは既に登録されています: %s", deviceID),
		Category: "device",
		Action:   "デバイス本体に記載されたIDを確認してください。",
	}
}

// NewInvalidDeviceError はデバイス登録内容の検証エラーを生成する。
func NewInvalidDeviceError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDevice,
		Message:  fmt.Sprintf("デバイス情報が不正です: %s", reason),
		Category: "validation",
		Action:   "name、deviceId、type（bulb / sensor / thermostat）を確認してください。",
	}
}

// NewInvalidCommandError は無効なデバイスコマンドエラーを生成する。
func NewInvalidCommandError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCommand,
		Message:  "無効なコマンドです。",
		Category: "validation",
		Action:   "command には on や off などの空でない文字列（64文字以内）を指定してください。",
	}
}

// NewInvalidPlanError は無効なプラン指定エラーを生成する。
func NewInvalidPlanError(plan string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlan,
		Message:  fmt.Sprintf("無効なプランです: %s", plan),
		Category: "validation",
		Action:   "プランには basic または premium を指定してください。",
	}
}

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidAccountError はアカウント登録内容の検証エラーを生成する。
func NewInvalidAccountError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAccount,
		Message:  fmt.Sprintf("アカウント情報が不正です: %s", reason),
		Category: "validation",
		Action:   "メールアドレスと8文字以上72文字以内のパスワードを指定してください。",
	}
}

// NewSignatureInvalidError はWebhook署名検証失敗エラーを生成する。
// 検証のどの段階で失敗したかはレスポンスに含めない。
func NewSignatureInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeSignatureInvalid,
		Message:  "Webhookの署名を検証できませんでした。",
		Category: "billing",
		Action:   "署名シークレットの設定を確認してください。",
	}
}

// NewBillingFailedError は課金プロバイダー呼び出し失敗エラーを生成する。
func NewBillingFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeBillingFailed,
		Message:  "決済セッションの作成に失敗しました。",
		Category: "billing",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-After ヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewTimeoutError はストア呼び出しのタイムアウトエラーを生成する。
func NewTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeTimeout,
		Message:  "処理がタイムアウトしました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewStoreUnavailableError はデータストア接続不可エラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// IsTransient はエラーがリトライ可能な一時的障害かどうかを返す。
func (e *APIError) IsTransient() bool {
	return e.Code == ErrCodeTimeout || e.Code == ErrCodeStoreUnavailable
}
