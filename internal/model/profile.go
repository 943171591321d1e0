package model

import "time"

// FreeDailyLimit は無料ユーザーが1日（UTC）に実行できる生成回数の上限。
const FreeDailyLimit = 3

// SubscriptionStatus はサブスクリプションの状態を表す。
type SubscriptionStatus string

const (
	// SubscriptionStatusInactive は一度も購入していない状態。
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	// SubscriptionStatusActive は有効なサブスクリプションがある状態。
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusExpired は有効期限が切れた状態。
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

// Profile はユーザーごとの利用権限と生成回数を保持する。
// IDはホスト型認証基盤のユーザーIDと一致する。
type Profile struct {
	ID                  string
	GenerationCount     int
	LastResetAt         time.Time
	IsPremium           bool
	SubscriptionPlanID  *PlanID
	SubscriptionEndDate *time.Time
	SubscriptionStatus  SubscriptionStatus
	ActiveSessionID     string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PremiumActiveAt は指定時刻においてプレミアム権限が有効かを返す。
// 終了日が設定されていないプレミアムは付与時の値をそのまま信頼する。
func (p *Profile) PremiumActiveAt(now time.Time) bool {
	if !p.IsPremium {
		return false
	}
	if p.SubscriptionEndDate == nil {
		return true
	}
	return now.Before(*p.SubscriptionEndDate)
}

// NeedsDailyReset はlastResetAtとnowのUTC暦日が異なるかを返す。
// 24時間の移動窓ではなく暦日単位で判定する。
func (p *Profile) NeedsDailyReset(now time.Time) bool {
	return !SameUTCDay(p.LastResetAt, now)
}

// SameUTCDay は2つの時刻がUTCで同じ暦日かを返す。
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// NextUTCMidnight はtの翌日のUTC 0時を返す。
func NextUTCMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
