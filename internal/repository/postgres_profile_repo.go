package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/sellerpro/internal/model"
)

const profileColumns = `id, generation_count, last_reset_at, is_premium, subscription_plan_id,
	subscription_end_date, subscription_status, active_session_id, created_at, updated_at`

// utcDate はtimestamptzをUTC暦日に変換するSQL式を返す。
func utcDate(expr string) string {
	return "((" + expr + ") AT TIME ZONE 'UTC')::date"
}

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	var planID sql.NullString
	var endDate sql.NullTime
	var status string

	if err := row.Scan(
		&p.ID, &p.GenerationCount, &p.LastResetAt, &p.IsPremium, &planID,
		&endDate, &status, &p.ActiveSessionID, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if planID.Valid {
		id := model.PlanID(planID.String)
		p.SubscriptionPlanID = &id
	}
	if endDate.Valid {
		p.SubscriptionEndDate = &endDate.Time
	}
	p.SubscriptionStatus = model.SubscriptionStatus(status)
	return p, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return p, nil
}

// CreateIfAbsent はプロフィールが無ければ作成し、現在の行を返す。
func (r *PostgresProfileRepo) CreateIfAbsent(ctx context.Context, id string, now time.Time) (*model.Profile, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, last_reset_at, created_at, updated_at)
		 VALUES ($1, $2, $2, $2)
		 ON CONFLICT (id) DO NOTHING`,
		id, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	p, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("profile %s missing after insert", id)
	}
	return p, nil
}

// ResetDailyQuota は暦日が変わっている場合のみ生成回数をリセットする。
// 同じ日に何度呼んでも2回目以降は更新しない。
func (r *PostgresProfileRepo) ResetDailyQuota(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET generation_count = 0, last_reset_at = $2, updated_at = $2
		 WHERE id = $1 AND `+utcDate("last_reset_at")+` < `+utcDate("$2::timestamptz"),
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reset daily quota: %w", err)
	}
	return affected(result)
}

// IncrementGenerationCount はgeneration_countを原子的に1増やす。
func (r *PostgresProfileRepo) IncrementGenerationCount(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET generation_count = generation_count + 1, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment generation count: %w", err)
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("profile not found: %s", id)
	}
	return nil
}

// ExpirePremium は終了日を過ぎたプレミアムを失効させる。
func (r *PostgresProfileRepo) ExpirePremium(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET is_premium = false, subscription_status = 'expired', updated_at = $2
		 WHERE id = $1 AND is_premium
		   AND subscription_end_date IS NOT NULL AND subscription_end_date <= $2`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire premium: %w", err)
	}
	return affected(result)
}

// ExpireOverdue は終了日を過ぎた全プレミアムを失効させ、件数を返す。
func (r *PostgresProfileRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET is_premium = false, subscription_status = 'expired', updated_at = $1
		 WHERE is_premium
		   AND subscription_end_date IS NOT NULL AND subscription_end_date <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue subscriptions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ClaimSession はactive_session_idを上書きし、直前の値を返す。
// 同時に呼ばれた場合は最後にコミットした側が残る。
func (r *PostgresProfileRepo) ClaimSession(ctx context.Context, id, token string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id,
	); err != nil {
		return "", fmt.Errorf("failed to ensure profile: %w", err)
	}

	var previous string
	if err := tx.QueryRowContext(ctx,
		`SELECT active_session_id FROM profiles WHERE id = $1 FOR UPDATE`, id,
	).Scan(&previous); err != nil {
		return "", fmt.Errorf("failed to lock profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET active_session_id = $2, updated_at = now() WHERE id = $1`,
		id, token,
	); err != nil {
		return "", fmt.Errorf("failed to claim session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return previous, nil
}

// ApplyGrant は決済記録の挿入とプレミアム付与を同一トランザクションで行う。
func (r *PostgresProfileRepo) ApplyGrant(ctx context.Context, s *model.Settlement, endDate time.Time) (*model.Profile, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// コールバックが初回アクセスより先に届いた場合に備えてプロフィールを用意する
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, s.UserID,
	); err != nil {
		return nil, false, fmt.Errorf("failed to ensure profile: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO payment_settlements (gateway, payment_id, user_id, plan_id, amount, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (gateway, payment_id) DO NOTHING`,
		string(s.Gateway), s.PaymentID, s.UserID, string(s.PlanID), s.Amount, s.SettledAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert settlement: %w", err)
	}
	inserted, err := affected(result)
	if err != nil {
		return nil, false, err
	}

	var p *model.Profile
	if inserted {
		p, err = scanProfile(tx.QueryRowContext(ctx,
			`UPDATE profiles
			 SET is_premium = true, subscription_plan_id = $2, subscription_end_date = $3,
			     subscription_status = 'active', updated_at = $4
			 WHERE id = $1
			 RETURNING `+profileColumns,
			s.UserID, string(s.PlanID), endDate, s.SettledAt,
		))
		if err != nil {
			return nil, false, fmt.Errorf("failed to grant premium: %w", err)
		}
	} else {
		p, err = scanProfile(tx.QueryRowContext(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, s.UserID,
		))
		if err != nil {
			return nil, false, fmt.Errorf("failed to load profile: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return p, inserted, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

var _ ProfileRepository = (*PostgresProfileRepo)(nil)
