package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/sellerpro/internal/model"
)

// PostgresGenerationRepo はPostgreSQLを使用した生成履歴リポジトリ。
type PostgresGenerationRepo struct {
	db *sql.DB
}

// NewPostgresGenerationRepo はPostgresGenerationRepoを生成する。
func NewPostgresGenerationRepo(db *sql.DB) *PostgresGenerationRepo {
	return &PostgresGenerationRepo{db: db}
}

// Create は生成履歴を追加する。
func (r *PostgresGenerationRepo) Create(ctx context.Context, g *model.Generation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO generations (id, user_id, product_name, features, marketplace, tone, description, is_mock, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		g.ID, g.UserID, g.ProductName, g.Features, string(g.Marketplace), g.Tone, g.Description, g.IsMock, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("生成履歴の保存に失敗しました: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの生成履歴をcreated_at降順で最大limit件返す。
func (r *PostgresGenerationRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Generation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, product_name, features, marketplace, tone, description, is_mock, created_at
		 FROM generations
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("生成履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var generations []*model.Generation
	for rows.Next() {
		g := &model.Generation{}
		var marketplace string
		if err := rows.Scan(
			&g.ID, &g.UserID, &g.ProductName, &g.Features, &marketplace,
			&g.Tone, &g.Description, &g.IsMock, &g.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("生成履歴のスキャンに失敗しました: %w", err)
		}
		g.Marketplace = model.Marketplace(marketplace)
		generations = append(generations, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("生成履歴の反復処理に失敗しました: %w", err)
	}
	return generations, nil
}

// DeleteByIDAndUserID は所有者が一致する履歴のみ削除する。
func (r *PostgresGenerationRepo) DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM generations WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("生成履歴の削除に失敗しました: %w", err)
	}
	return affected(result)
}

// PostgresInvoiceSequence はrobokassa_invoice_seqから請求番号を払い出す。
type PostgresInvoiceSequence struct {
	db *sql.DB
}

// NewPostgresInvoiceSequence はPostgresInvoiceSequenceを生成する。
func NewPostgresInvoiceSequence(db *sql.DB) *PostgresInvoiceSequence {
	return &PostgresInvoiceSequence{db: db}
}

// NextInvoiceID は次の請求番号を返す。
func (s *PostgresInvoiceSequence) NextInvoiceID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('robokassa_invoice_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate invoice id: %w", err)
	}
	return id, nil
}

var (
	_ GenerationRepository = (*PostgresGenerationRepo)(nil)
	_ InvoiceSequence      = (*PostgresInvoiceSequence)(nil)
)
