// Package quota は無料ユーザーの1日あたり生成回数の判定と消費を提供する。
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/sellerpro/internal/model"
	"github.com/hitoshi/sellerpro/internal/repository"
)

// Decision はCheckの判定結果。
type Decision struct {
	Allowed   bool
	IsPremium bool
	// Profile は判定時点のプロフィール。リセットや失効を反映済み。
	Profile *model.Profile
}

// Status は利用状況の表示用スナップショット。
type Status struct {
	Used      int
	Limit     int
	Remaining int
	IsPremium bool
	ResetsAt  time.Time
}

// Manager は暦日（UTC）単位の無料枠を管理する。
type Manager struct {
	repo   repository.ProfileRepository
	limit  int
	now    func() time.Time
	logger *slog.Logger
}

// Option はManagerの設定を変更する。
type Option func(*Manager)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLimit は1日あたりの無料上限を変更する。
func WithLimit(limit int) Option {
	return func(m *Manager) { m.limit = limit }
}

// NewManager はManagerを生成する。
func NewManager(repo repository.ProfileRepository, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		repo:   repo,
		limit:  model.FreeDailyLimit,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Limit は1日あたりの無料上限を返す。
func (m *Manager) Limit() int {
	return m.limit
}

// Check は生成を許可するかを判定する。
// 有効なプレミアムは常に許可し、何も書き込まない。
// 無料ユーザーは暦日が変わっていれば先にリセットを永続化し、その後上限と比較する。
// 拒否時は何も書き込まない。
func (m *Manager) Check(ctx context.Context, p *model.Profile) (*Decision, error) {
	now := m.now()
	current := *p

	if current.IsPremium {
		if current.PremiumActiveAt(now) {
			return &Decision{Allowed: true, IsPremium: true, Profile: &current}, nil
		}
		m.expire(ctx, &current, now)
	}

	if current.NeedsDailyReset(now) {
		reset, err := m.repo.ResetDailyQuota(ctx, current.ID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to reset daily quota: %w", err)
		}
		if reset {
			current.GenerationCount = 0
			current.LastResetAt = now
		} else {
			// 並行リクエストが先にリセットした。最新の回数を読み直す
			latest, err := m.repo.FindByID(ctx, current.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to reload profile: %w", err)
			}
			if latest != nil {
				current.GenerationCount = latest.GenerationCount
				current.LastResetAt = latest.LastResetAt
			}
		}
	}

	if current.GenerationCount >= m.limit {
		return &Decision{Allowed: false, Profile: &current}, nil
	}
	return &Decision{Allowed: true, Profile: &current}, nil
}

// expire は期限切れのプレミアムを無料扱いに切り替え、失効を書き込む。
// 書き込みの失敗は判定に影響しないためログのみ残す。
func (m *Manager) expire(ctx context.Context, p *model.Profile, now time.Time) {
	p.IsPremium = false
	p.SubscriptionStatus = model.SubscriptionStatusExpired

	if _, err := m.repo.ExpirePremium(ctx, p.ID, now); err != nil {
		m.logger.Warn("failed to persist premium expiry",
			slog.String("user_id", p.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	m.logger.Info("premium expired on access",
		slog.String("user_id", p.ID),
	)
}

// Consume は生成成功後に回数を1つ消費する。
func (m *Manager) Consume(ctx context.Context, userID string) error {
	if err := m.repo.IncrementGenerationCount(ctx, userID); err != nil {
		return fmt.Errorf("failed to consume quota: %w", err)
	}
	return nil
}

// Status は現在の利用状況を返す。書き込みは行わない。
func (m *Manager) Status(p *model.Profile) Status {
	now := m.now()
	if p.PremiumActiveAt(now) {
		return Status{Limit: m.limit, Remaining: m.limit, IsPremium: true, ResetsAt: model.NextUTCMidnight(now)}
	}

	used := p.GenerationCount
	if p.NeedsDailyReset(now) {
		used = 0
	}
	remaining := m.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Used:      used,
		Limit:     m.limit,
		Remaining: remaining,
		ResetsAt:  model.NextUTCMidnight(now),
	}
}
