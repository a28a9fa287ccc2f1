// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/devicehub/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByBillingSubscriptionRef は課金プロバイダーのサブスクリプションIDでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByBillingSubscriptionRef(ctx context.Context, ref string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateSubscription はユーザーのサブスクリプション状態を上書きする。
	// 対象ユーザーが存在しない場合はErrNotFoundを返す。
	UpdateSubscription(ctx context.Context, userID string, sub model.Subscription) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 所有デバイスはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// DeviceRepository はデバイスデータの永続化インターフェース。
// 参照・更新はすべて所有ユーザーIDでスコープする。
type DeviceRepository interface {
	// CountByUserID はユーザーの登録デバイス数を返す。
	CountByUserID(ctx context.Context, userID string) (int, error)

	// ListByUserID はユーザーのデバイス一覧を登録順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Device, error)

	// FindByUserAndDeviceID はユーザーIDとデバイスIDでデバイスを検索する。
	// 他ユーザー所有の場合も含め、見つからない場合はnilを返す。
	FindByUserAndDeviceID(ctx context.Context, userID, deviceID string) (*model.Device, error)

	// ExistsByDeviceID はデバイスIDが所有者に関わらず登録済みかを返す。
	ExistsByDeviceID(ctx context.Context, deviceID string) (bool, error)

	// CreateWithinQuota は所有ユーザー行をロックしたうえで、登録数がquota未満の場合のみデバイスを作成する。
	// 上限に達していた場合はfalseを返す。デバイスIDが重複する場合はErrDuplicate、
	// ユーザーが存在しない場合はErrNotFoundを返す。
	CreateWithinQuota(ctx context.Context, device *model.Device, quota int) (bool, error)

	// UpdateStatus はデバイス状態と最終通信時刻を更新し、更新後のデバイスを返す。
	// last_seen は既存値より必ず大きくなるよう補正される。見つからない場合はnilを返す。
	UpdateStatus(ctx context.Context, userID, deviceID, status string, lastSeen time.Time) (*model.Device, error)

	// Delete はデバイスを削除する。削除対象がなかった場合はfalseを返す。
	Delete(ctx context.Context, userID, deviceID string) (bool, error)
}

// WebhookEventRepository は処理済みWebhookイベント台帳の永続化インターフェース。
type WebhookEventRepository interface {
	// IsProcessed はイベントIDが処理済みとして記録されているかを返す。
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// MarkProcessed はイベントを処理済みとして記録する。既に記録済みの場合は何もしない。
	MarkProcessed(ctx context.Context, event *model.ProcessedWebhookEvent) error
}

// ProductRepository は商品カタログの参照インターフェース。
type ProductRepository interface {
	// List は全商品を登録順で返す。
	List(ctx context.Context) ([]*model.Product, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
