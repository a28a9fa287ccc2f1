// Package cleanup は処理済みWebhookイベント台帳の自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過したイベントIDを定期的に削除する。
// 保持期間はプロバイダーの再送期間より十分長く取ること。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/devicehub/internal/metrics"
)

// DefaultRetentionDays は台帳の既定保持日数。
const DefaultRetentionDays = 30

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CleanupJob は保持期間を超過したWebhook台帳エントリの削除ジョブ。
// 削除は冪等で、対象がなくてもエラーにならない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	RetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, collector metrics.MetricsCollector) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		metrics:       collector,
		RetentionDays: DefaultRetentionDays,
	}
}

// Run は processed_at が RetentionDays 日前より古い台帳エントリを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM processed_webhook_events WHERE processed_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("Webhook台帳のクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("Webhook台帳クリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.metrics.RecordWebhookEventsPruned(deletedCount)

	j.logger.Info("Webhook台帳のクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、以降はinterval毎にRunを実行する。
// ctxがキャンセルされるまでブロックする。個々の実行失敗はログに残して継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Warn("cleanup run failed, will retry on next tick", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("cleanup run failed, will retry on next tick", slog.String("error", err.Error()))
			}
		}
	}
}
