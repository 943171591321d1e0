package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/hitoshi/sellerpro/internal/metrics"
	"github.com/hitoshi/sellerpro/internal/model"
	"github.com/hitoshi/sellerpro/internal/repository"
)

// tokenBytes はセッショントークンのバイト長。
const tokenBytes = 32

// Guard はセッションの取得と検証を行う。
type Guard struct {
	repo     repository.ProfileRepository
	broker   *Broker
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	newToken func() (string, error)
}

// NewGuard はGuardを生成する。
func NewGuard(repo repository.ProfileRepository, broker *Broker, mc metrics.MetricsCollector, logger *slog.Logger) *Guard {
	return &Guard{
		repo:     repo,
		broker:   broker,
		metrics:  mc,
		logger:   logger,
		newToken: generateToken,
	}
}

// generateToken は暗号論的乱数で64文字の16進トークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Claim は新しいトークンを発行して有効セッションとして書き込み、トークンを返す。
// 最後に書き込んだ側が勝ち、それ以前のトークンはすべて無効になる。
func (g *Guard) Claim(ctx context.Context, userID string) (string, error) {
	token, err := g.newToken()
	if err != nil {
		return "", err
	}

	previous, err := g.repo.ClaimSession(ctx, userID, token)
	if err != nil {
		g.logger.Error("failed to claim session",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to claim session: %w", err)
	}

	g.metrics.RecordSessionClaim()
	g.broker.Publish(Event{UserID: userID, Token: token})

	g.logger.Info("session claimed",
		slog.String("user_id", userID),
		slog.Bool("evicted_previous", previous != ""),
	)
	return token, nil
}

// Validate はtokenが現在の有効セッションかを確認する。
// まだ誰もセッションを取得していないアカウントは許可する。
func (g *Guard) Validate(ctx context.Context, userID, token string) error {
	p, err := g.repo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if p == nil || p.ActiveSessionID == "" {
		return nil
	}
	if !Matches(p.ActiveSessionID, token) {
		g.metrics.RecordSessionRevoked()
		return model.NewSessionRevokedError()
	}
	return nil
}

// Matches は保持しているトークンが有効セッションと一致するかを一定時間で比較する。
func Matches(active, held string) bool {
	return subtle.ConstantTimeCompare([]byte(active), []byte(held)) == 1
}
