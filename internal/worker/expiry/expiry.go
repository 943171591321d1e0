// Package expiry は終了日を過ぎたプレミアムを失効させる定期ジョブを提供する。
// 読み取り時にも期限は判定されるため、このジョブは保存状態を実態に揃える役割を持つ。
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/sellerpro/internal/metrics"
)

// Expirer は期限切れプレミアムの一括失効を行う。
// repository.ProfileRepositoryが満たす。
type Expirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// SweepJob は期限切れプレミアムを失効させるジョブ。
// 何度実行しても結果は変わらない。
type SweepJob struct {
	profiles Expirer
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweepJob は新しいSweepJobを生成する。
func NewSweepJob(profiles Expirer, mc metrics.MetricsCollector, logger *slog.Logger) *SweepJob {
	return &SweepJob{
		profiles: profiles,
		metrics:  mc,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は現在時刻より前に終了日を迎えたプレミアムを失効させる。
func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()

	n, err := j.profiles.ExpireOverdue(ctx, j.now().UTC())
	if err != nil {
		j.logger.Error("プレミアム失効ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("プレミアム失効の実行に失敗: %w", err)
	}

	if n > 0 {
		j.metrics.RecordPremiumExpired(int(n))
	}

	j.logger.Info("プレミアム失効ジョブが完了しました",
		slog.Int64("expired_count", n),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("プレミアム失効ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("プレミアム失効ジョブを停止しました")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
