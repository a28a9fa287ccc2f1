package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/devicehub/internal/model"
)

const deviceColumns = `id, user_id, device_id, name, type, status, last_seen, created_at`

// PostgresDeviceRepo はPostgreSQLを使用したデバイスリポジトリ。
type PostgresDeviceRepo struct {
	db *sql.DB
}

// NewPostgresDeviceRepo はPostgresDeviceRepoを生成する。
func NewPostgresDeviceRepo(db *sql.DB) *PostgresDeviceRepo {
	return &PostgresDeviceRepo{db: db}
}

// CountByUserID はユーザーの登録デバイス数を返す。
func (r *PostgresDeviceRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM devices WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, wrapError("failed to count devices", err)
	}
	return count, nil
}

// ListByUserID はユーザーのデバイス一覧を登録順で返す。
func (r *PostgresDeviceRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, wrapError("failed to list devices", err)
	}
	defer rows.Close()

	devices := make([]*model.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, wrapError("failed to scan device", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("failed to iterate devices", err)
	}
	return devices, nil
}

// FindByUserAndDeviceID はユーザーIDとデバイスIDでデバイスを検索する。見つからない場合はnilを返す。
func (r *PostgresDeviceRepo) FindByUserAndDeviceID(ctx context.Context, userID, deviceID string) (*model.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("failed to find device", err)
	}
	return d, nil
}

// ExistsByDeviceID はデバイスIDが所有者に関わらず登録済みかを返す。
func (r *PostgresDeviceRepo) ExistsByDeviceID(ctx context.Context, deviceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM devices WHERE device_id = $1)`,
		deviceID,
	).Scan(&exists)
	if err != nil {
		return false, wrapError("failed to check device existence", err)
	}
	return exists, nil
}

// CreateWithinQuota は所有ユーザー行を FOR UPDATE でロックし、
// 登録数がquota未満の場合のみデバイスを作成する。
// 同一ユーザーの並行登録はロックで直列化されるため、上限を超えて作成されることはない。
func (r *PostgresDeviceRepo) CreateWithinQuota(ctx context.Context, device *model.Device, quota int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, wrapError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`,
		device.UserID,
	).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, wrapError("failed to lock user", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM devices WHERE user_id = $1`,
		device.UserID,
	).Scan(&count); err != nil {
		return false, wrapError("failed to count devices", err)
	}
	if count >= quota {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO devices (id, user_id, device_id, name, type, status, last_seen, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		device.ID, device.UserID, device.DeviceID, device.Name, string(device.Type),
		device.Status, device.LastSeen, device.CreatedAt,
	)
	if err != nil {
		return false, wrapError("failed to insert device", err)
	}

	if err := tx.Commit(); err != nil {
		return false, wrapError("failed to commit transaction", err)
	}
	return true, nil
}

// UpdateStatus はデバイス状態と最終通信時刻を更新し、更新後のデバイスを返す。
// last_seen は GREATEST で既存値 + 1マイクロ秒以上に補正する。
func (r *PostgresDeviceRepo) UpdateStatus(ctx context.Context, userID, deviceID, status string, lastSeen time.Time) (*model.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx,
		`UPDATE devices
		 SET status = $3,
		     last_seen = GREATEST($4::timestamptz, last_seen + interval '1 microsecond')
		 WHERE user_id = $1 AND device_id = $2
		 RETURNING `+deviceColumns,
		userID, deviceID, status, lastSeen,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("failed to update device status", err)
	}
	return d, nil
}

// Delete はデバイスを削除する。削除対象がなかった場合はfalseを返す。
func (r *PostgresDeviceRepo) Delete(ctx context.Context, userID, deviceID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM devices WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID,
	)
	if err != nil {
		return false, wrapError("failed to delete device", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, wrapError("failed to get rows affected", err)
	}
	return rowsAffected > 0, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(s rowScanner) (*model.Device, error) {
	d := &model.Device{}
	var deviceType string
	if err := s.Scan(&d.ID, &d.UserID, &d.DeviceID, &d.Name, &deviceType, &d.Status, &d.LastSeen, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}
	d.Type = model.DeviceType(deviceType)
	return d, nil
}

// compile-time interface check
var _ DeviceRepository = (*PostgresDeviceRepo)(nil)
