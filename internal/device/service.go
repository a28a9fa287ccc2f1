// Package device はデバイス登録・制御のドメインロジックを提供する。
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/devicehub/internal/entitlement"
	"github.com/hitoshi/devicehub/internal/metrics"
	"github.com/hitoshi/devicehub/internal/model"
	"github.com/hitoshi/devicehub/internal/notify"
	"github.com/hitoshi/devicehub/internal/repository"
	"github.com/hitoshi/devicehub/internal/security"
)

const (
	maxCommandLength = 64
	maxNameLength    = 255
	maxDeviceIDLen   = 255
)

// Service はデバイスの登録・一覧・制御・削除を統括するサービス層。
type Service struct {
	userRepo   repository.UserRepository
	deviceRepo repository.DeviceRepository
	publisher  notify.Publisher
	metrics    metrics.MetricsCollector
	sanitizer  security.TextSanitizer
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	deviceRepo repository.DeviceRepository,
	publisher notify.Publisher,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		userRepo:   userRepo,
		deviceRepo: deviceRepo,
		publisher:  publisher,
		metrics:    collector,
		sanitizer:  security.NewTextSanitizer(),
		now:        time.Now,
	}
}

// RegisterDevice はユーザーのプラン上限内でデバイスを登録する。
// フロー: ユーザー取得 → 登録数確認 → 上限判定 → デバイスID重複確認 → 条件付き作成
func (s *Service) RegisterDevice(ctx context.Context, userID, name, deviceID, deviceType string) (*model.Device, error) {
	// 表示名はプレーンテキストとして保存する
	name = s.sanitizer.Sanitize(name)
	deviceID = strings.TrimSpace(deviceID)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, model.NewInvalidDeviceError("name")
	}
	if deviceID == "" || len(deviceID) > maxDeviceIDLen {
		return nil, model.NewInvalidDeviceError("deviceId")
	}
	typ, ok := model.ParseDeviceType(deviceType)
	if !ok {
		return nil, model.NewInvalidDeviceError("type")
	}

	// 1. ユーザー取得
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	// 2-3. 現在のプランから上限を算出（キャッシュしない）
	limit := entitlement.QuotaForSubscription(user.Subscription)
	count, err := s.deviceRepo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("デバイス数の確認に失敗しました: %w", err)
	}

	// 4. 上限判定
	if count >= limit {
		s.metrics.RecordDeviceRegistration(metrics.RegistrationQuotaExceeded)
		return nil, model.NewQuotaExceededError(limit)
	}

	// 5. デバイスIDはユーザーをまたいで一意
	exists, err := s.deviceRepo.ExistsByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("デバイスIDの確認に失敗しました: %w", err)
	}
	if exists {
		s.metrics.RecordDeviceRegistration(metrics.RegistrationConflict)
		return nil, model.NewDeviceConflictError(deviceID)
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	device := &model.Device{
		ID:        uuid.New().String(),
		UserID:    userID,
		DeviceID:  deviceID,
		Name:      name,
		Type:      typ,
		Status:    model.DefaultDeviceStatus,
		LastSeen:  now,
		CreatedAt: now,
	}

	// 判定後に並行登録が入っても上限を超えないよう、ストア側で再判定して作成する
	created, err := s.deviceRepo.CreateWithinQuota(ctx, device, limit)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		s.metrics.RecordDeviceRegistration(metrics.RegistrationConflict)
		return nil, model.NewDeviceConflictError(deviceID)
	case errors.Is(err, repository.ErrNotFound):
		return nil, model.NewUserNotFoundError()
	case err != nil:
		return nil, fmt.Errorf("デバイスの作成に失敗しました: %w", err)
	}
	if !created {
		s.metrics.RecordDeviceRegistration(metrics.RegistrationQuotaExceeded)
		return nil, model.NewQuotaExceededError(limit)
	}

	s.metrics.RecordDeviceRegistration(metrics.RegistrationCreated)
	slog.InfoContext(ctx, "device registered",
		slog.String("user_id", userID),
		slog.String("device_id", deviceID),
		slog.String("type", string(typ)),
	)
	return device, nil
}

// ListDevices はユーザーのデバイス一覧を返す。
func (s *Service) ListDevices(ctx context.Context, userID string) ([]*model.Device, error) {
	devices, err := s.deviceRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}
	return devices, nil
}

// ControlDevice はデバイス状態をコマンドで更新し、通知を発行する。
// 他ユーザー所有のデバイスは存在しない場合と同じく NotFound とする。
// 通知の失敗はログに残すのみで、リクエストは成功させる。
func (s *Service) ControlDevice(ctx context.Context, userID, deviceID, command string) (string, error) {
	if command == "" || utf8.RuneCountInString(command) > maxCommandLength {
		s.metrics.RecordDeviceCommand(false)
		return "", model.NewInvalidCommandError()
	}

	device, err := s.deviceRepo.FindByUserAndDeviceID(ctx, userID, deviceID)
	if err != nil {
		return "", fmt.Errorf("デバイスの取得に失敗しました: %w", err)
	}
	if device == nil {
		s.metrics.RecordDeviceCommand(false)
		return "", model.NewDeviceNotFoundError(deviceID)
	}

	lastSeen := NextLastSeen(device.LastSeen, s.now())
	updated, err := s.deviceRepo.UpdateStatus(ctx, userID, deviceID, command, lastSeen)
	if err != nil {
		return "", fmt.Errorf("デバイス状態の更新に失敗しました: %w", err)
	}
	if updated == nil {
		// 取得後に削除された
		s.metrics.RecordDeviceCommand(false)
		return "", model.NewDeviceNotFoundError(deviceID)
	}
	s.metrics.RecordDeviceCommand(true)

	if err := s.publisher.Publish(ctx, deviceID, command); err != nil {
		s.metrics.RecordNotification(false)
		slog.WarnContext(ctx, "failed to publish device command",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
	} else {
		s.metrics.RecordNotification(true)
	}

	return updated.Status, nil
}

// DeleteDevice はユーザー所有のデバイスを削除する。
func (s *Service) DeleteDevice(ctx context.Context, userID, deviceID string) error {
	deleted, err := s.deviceRepo.Delete(ctx, userID, deviceID)
	if err != nil {
		return fmt.Errorf("デバイスの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewDeviceNotFoundError(deviceID)
	}

	slog.InfoContext(ctx, "device deleted",
		slog.String("user_id", userID),
		slog.String("device_id", deviceID),
	)
	return nil
}

// NextLastSeen は直前の最終通信時刻より必ず後になる時刻を返す。
// 時計が戻った場合や同一マイクロ秒内の連続コマンドでは prev + 1µs とする。
func NextLastSeen(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		return prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}
