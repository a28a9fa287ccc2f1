package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/devicehub/internal/model"
)

// PostgresWebhookEventRepo はPostgreSQLを使用した処理済みWebhookイベント台帳。
type PostgresWebhookEventRepo struct {
	db *sql.DB
}

// NewPostgresWebhookEventRepo はPostgresWebhookEventRepoを生成する。
func NewPostgresWebhookEventRepo(db *sql.DB) *PostgresWebhookEventRepo {
	return &PostgresWebhookEventRepo{db: db}
}

// IsProcessed はイベントIDが処理済みとして記録されているかを返す。
func (r *PostgresWebhookEventRepo) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_webhook_events WHERE event_id = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, wrapError("failed to check processed webhook event", err)
	}
	return exists, nil
}

// MarkProcessed はイベントを処理済みとして記録する。
// プロバイダーの並行再送で同じIDが競合しても ON CONFLICT で吸収する。
func (r *PostgresWebhookEventRepo) MarkProcessed(ctx context.Context, event *model.ProcessedWebhookEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO processed_webhook_events (event_id, event_type, outcome, processed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.EventType, string(event.Outcome), event.ProcessedAt,
	)
	if err != nil {
		return wrapError("failed to mark webhook event processed", err)
	}
	return nil
}

// compile-time interface check
var _ WebhookEventRepository = (*PostgresWebhookEventRepo)(nil)
