package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/devicehub/internal/model"
)

const userColumns = `id, email, name, password_hash, plan, subscription_status,
	billing_customer_ref, billing_subscription_ref, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
// UUIDとして不正なIDも該当ユーザーなしとして扱う。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
	if isInvalidTextRepresentation(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("failed to find user by ID", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
	))
	if err != nil {
		return nil, wrapError("failed to find user by email", err)
	}
	return user, nil
}

// FindByBillingSubscriptionRef は課金プロバイダーのサブスクリプションIDでユーザーを検索する。
func (r *PostgresUserRepo) FindByBillingSubscriptionRef(ctx context.Context, ref string) (*model.User, error) {
	if ref == "" {
		return nil, nil
	}
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE billing_subscription_ref = $1`, ref,
	))
	if err != nil {
		return nil, wrapError("failed to find user by subscription ref", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, plan, subscription_status,
			billing_customer_ref, billing_subscription_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Email, user.Name, user.PasswordHash,
		string(user.Subscription.Plan), string(user.Subscription.Status),
		user.Subscription.BillingCustomerRef, user.Subscription.BillingSubscriptionRef,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return wrapError("failed to insert user", err)
	}
	return nil
}

// UpdateSubscription はユーザーのサブスクリプション状態を上書きする。
func (r *PostgresUserRepo) UpdateSubscription(ctx context.Context, userID string, sub model.Subscription) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET plan = $2, subscription_status = $3,
		     billing_customer_ref = $4, billing_subscription_ref = $5,
		     updated_at = now()
		 WHERE id = $1`,
		userID, string(sub.Plan), string(sub.Status),
		sub.BillingCustomerRef, sub.BillingSubscriptionRef,
	)
	if err != nil {
		return wrapError("failed to update subscription", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 所有デバイスはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return wrapError("failed to delete user", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// scanUser は1行をUserに変換する。行がない場合はnil, nilを返す。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var plan, status string
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &plan, &status,
		&user.Subscription.BillingCustomerRef, &user.Subscription.BillingSubscriptionRef,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Subscription.Plan = model.Plan(plan)
	user.Subscription.Status = model.SubscriptionStatus(status)
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
