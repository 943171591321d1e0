// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/sellerpro/internal/model"
)

// ProfileRepository は利用権限プロフィールの永続化インターフェース。
// 更新系はすべて1行への条件付きSQLとして実装し、読み取り→書き戻しを行わない。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// CreateIfAbsent はプロフィールが無ければ作成し、現在の行を返す。
	CreateIfAbsent(ctx context.Context, id string, now time.Time) (*model.Profile, error)

	// ResetDailyQuota はlast_reset_atのUTC暦日がnowより前の場合のみ
	// generation_countを0に、last_reset_atをnowに更新する。更新した場合trueを返す。
	ResetDailyQuota(ctx context.Context, id string, now time.Time) (bool, error)

	// IncrementGenerationCount はgeneration_countを原子的に1増やす。
	IncrementGenerationCount(ctx context.Context, id string) error

	// ExpirePremium は終了日を過ぎたプレミアムを失効させる。失効させた場合trueを返す。
	ExpirePremium(ctx context.Context, id string, now time.Time) (bool, error)

	// ExpireOverdue は終了日を過ぎた全プレミアムを失効させ、件数を返す。
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)

	// ClaimSession はactive_session_idをtokenで上書きし、直前の値を返す。
	// プロフィールが存在しない場合は作成する。
	ClaimSession(ctx context.Context, id, token string) (previous string, err error)

	// ApplyGrant は決済記録の挿入とプレミアム付与を同一トランザクションで行う。
	// 同じ(gateway, payment_id)が既に記録済みの場合は何も変更せず、applied=falseで現在の行を返す。
	ApplyGrant(ctx context.Context, s *model.Settlement, endDate time.Time) (profile *model.Profile, applied bool, err error)
}

// GenerationRepository は生成履歴の永続化インターフェース。
type GenerationRepository interface {
	// Create は生成履歴を追加する。
	Create(ctx context.Context, g *model.Generation) error

	// ListByUserID はユーザーの生成履歴を新しい順に最大limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Generation, error)

	// DeleteByIDAndUserID は所有者が一致する履歴のみ削除する。削除した場合trueを返す。
	DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error)
}

// InvoiceSequence はRobokassaの整数請求番号を払い出す。
type InvoiceSequence interface {
	NextInvoiceID(ctx context.Context) (int64, error)
}
