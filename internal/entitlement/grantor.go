// Package entitlement は検証済み決済からプレミアム権限を付与する。
package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/sellerpro/internal/metrics"
	"github.com/hitoshi/sellerpro/internal/model"
	"github.com/hitoshi/sellerpro/internal/repository"
)

// Result は付与処理の結果。
type Result struct {
	Profile *model.Profile
	// Applied は今回の呼び出しで新たに付与したかを示す。再送ではfalse。
	Applied bool
	EndDate time.Time
}

// Grantor はプレミアム権限を付与する。
// 同じ(gateway, payment_id)に対しては一度しか付与しない。
type Grantor struct {
	repo    repository.ProfileRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
}

// NewGrantor はGrantorを生成する。
func NewGrantor(repo repository.ProfileRepository, mc metrics.MetricsCollector, logger *slog.Logger) *Grantor {
	return &Grantor{
		repo:    repo,
		metrics: mc,
		logger:  logger,
		now:     time.Now,
	}
}

// Grant は決済を適用し、更新後のプロフィールを返す。
// 終了日は決済時刻を起点にプランの暦期間を加算して求める。
// DB書き込みの失敗は呼び出し元に返す。
func (g *Grantor) Grant(ctx context.Context, s model.Settlement) (*Result, error) {
	plan, ok := model.LookupPlan(string(s.PlanID))
	if !ok {
		return nil, model.NewInvalidPlanError(string(s.PlanID))
	}
	if s.UserID == "" || s.PaymentID == "" {
		return nil, model.NewInvalidRequestError("決済情報が不足しています")
	}
	if s.SettledAt.IsZero() {
		s.SettledAt = g.now()
	}
	if s.Amount == "" {
		s.Amount = plan.Amount()
	}

	endDate := plan.EndDate(s.SettledAt)

	profile, applied, err := g.repo.ApplyGrant(ctx, &s, endDate)
	if err != nil {
		g.logger.Error("failed to apply entitlement grant",
			slog.String("gateway", string(s.Gateway)),
			slog.String("payment_id", s.PaymentID),
			slog.String("user_id", s.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to apply grant: %w", err)
	}

	g.metrics.RecordSettlement(string(s.Gateway), applied)

	if applied {
		g.logger.Info("premium granted",
			slog.String("gateway", string(s.Gateway)),
			slog.String("payment_id", s.PaymentID),
			slog.String("user_id", s.UserID),
			slog.String("plan", string(s.PlanID)),
			slog.Time("end_date", endDate),
		)
	} else {
		g.logger.Info("settlement already applied",
			slog.String("gateway", string(s.Gateway)),
			slog.String("payment_id", s.PaymentID),
		)
		if profile != nil && profile.SubscriptionEndDate != nil {
			endDate = *profile.SubscriptionEndDate
		}
	}

	return &Result{Profile: profile, Applied: applied, EndDate: endDate}, nil
}
