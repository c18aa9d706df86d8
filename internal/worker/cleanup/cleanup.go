// Package cleanup は期限切れのおすすめを削除する定期ジョブを提供する。
// おすすめはexpires_atを過ぎると一覧に出なくなるが、行自体はこのジョブが消す。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Recorder は削除件数を記録するメトリクスのインターフェース。
type Recorder interface {
	RecordRecommendationsExpired(count int64)
}

// CleanupJob は期限切れおすすめの削除ジョブ。
// 何度実行しても結果が変わらない。
type CleanupJob struct {
	db      Executor
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, metrics Recorder) *CleanupJob {
	return &CleanupJob{
		db:      db,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run はexpires_atが現在時刻より前のおすすめを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM outfit_recommendations WHERE expires_at < $1`, start.UTC(),
	)
	if err != nil {
		j.logger.Error("recommendation cleanup failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete expired recommendations: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	j.metrics.RecordRecommendationsExpired(deleted)

	j.logger.Info("recommendation cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Int64("duration_ms", j.now().Sub(start).Milliseconds()),
	)
	return nil
}

// Start は起動直後に1回実行し、その後はcron式scheduleに従って実行する。
// コンテキストがキャンセルされると実行中のジョブの完了を待って戻る。
func (j *CleanupJob) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { j.runLogged(ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	j.runLogged(ctx)

	c.Start()
	j.logger.Info("cleanup scheduler started", slog.String("schedule", schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("cleanup scheduler stopped")
	return nil
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// 失敗はRun内でログ済み。次回のスケジュールで再試行する。
	_ = j.Run(ctx)
}
