// Package generation は商品説明文の生成フローと生成履歴を提供する。
//
// 生成は「判定 → 生成 → 記録と消費」の順で行い、
// 生成に失敗した場合は履歴も回数も残さない。
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/sellerpro/internal/completion"
	"github.com/hitoshi/sellerpro/internal/metrics"
	"github.com/hitoshi/sellerpro/internal/model"
	"github.com/hitoshi/sellerpro/internal/quota"
	"github.com/hitoshi/sellerpro/internal/repository"
	"github.com/hitoshi/sellerpro/internal/security"
)

// 入力項目の最大文字数
const (
	maxNameRunes     = 200
	maxFeaturesRunes = 2000
	maxToneRunes     = 50
)

// defaultTone は文体が未指定の場合に使う値。
const defaultTone = "профессиональный"

// 履歴一覧の件数
const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// defaultCompletionTimeout は生成呼び出しの既定タイムアウト。
const defaultCompletionTimeout = 60 * time.Second

// Request は生成リクエスト。
type Request struct {
	Name        string
	Features    string
	Marketplace string
	Tone        string
}

// Result は生成結果。
type Result struct {
	Description string
	IsMock      bool
}

// Usage はプロフィールと利用状況の組。
type Usage struct {
	Profile *model.Profile
	Quota   quota.Status
}

// Service は生成フローのサービス層。
type Service struct {
	profiles    repository.ProfileRepository
	generations repository.GenerationRepository
	quota       *quota.Manager
	completer   completion.Client
	sanitizer   security.TextSanitizer
	metrics     metrics.MetricsCollector
	logger      *slog.Logger

	timeout time.Duration
	demo    bool
	now     func() time.Time
	newID   func() string
}

// Config はServiceの動作設定。
type Config struct {
	// CompletionTimeout は1回の生成呼び出しの上限時間。0以下なら60秒。
	CompletionTimeout time.Duration
	// DemoMode はAIキー未設定時のデモモード。未ログインでの生成を許可し、結果をモックとして扱う。
	DemoMode bool
}

// NewService はServiceを生成する。
func NewService(
	profiles repository.ProfileRepository,
	generations repository.GenerationRepository,
	quotaManager *quota.Manager,
	completer completion.Client,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Service {
	timeout := cfg.CompletionTimeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	return &Service{
		profiles:    profiles,
		generations: generations,
		quota:       quotaManager,
		completer:   completer,
		sanitizer:   sanitizer,
		metrics:     mc,
		logger:      logger,
		timeout:     timeout,
		demo:        cfg.DemoMode,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// DemoMode はデモモードで動作しているかを返す。
func (s *Service) DemoMode() bool {
	return s.demo
}

// Generate は商品説明文を生成する。userIDが空の場合は未ログインとして扱う。
func (s *Service) Generate(ctx context.Context, userID string, req Request) (*Result, error) {
	input, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	if userID == "" {
		if !s.demo {
			return nil, model.NewUnauthorizedError()
		}
		// 未ログインのデモ利用は計測も記録もしない
		text, err := s.complete(ctx, input)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordGeneration(true)
		return &Result{Description: text, IsMock: true}, nil
	}

	profile, err := s.profiles.CreateIfAbsent(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	decision, err := s.quota.Check(ctx, profile)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.metrics.RecordQuotaDenied()
		s.logger.Info("generation denied by quota",
			slog.String("user_id", userID),
			slog.Int("generation_count", decision.Profile.GenerationCount),
		)
		return nil, model.NewLimitReachedError(s.quota.Limit())
	}

	text, err := s.complete(ctx, input)
	if err != nil {
		return nil, err
	}

	s.record(ctx, userID, input, text, decision.IsPremium)
	s.metrics.RecordGeneration(s.demo)

	return &Result{Description: text, IsMock: s.demo}, nil
}

// normalize は入力値をサニタイズし、必須項目と値の範囲を検証する。
func (s *Service) normalize(req Request) (completion.Request, error) {
	name := s.sanitizer.SanitizeField(req.Name, maxNameRunes)
	if name == "" {
		return completion.Request{}, model.NewInvalidRequestError("商品名は必須です")
	}

	mp := model.Marketplace(req.Marketplace)
	if mp == "" {
		mp = model.MarketplaceWildberries
	}
	if mp != model.MarketplaceWildberries && mp != model.MarketplaceOzon {
		return completion.Request{}, model.NewInvalidRequestError("marketplaceには wb または ozon を指定してください")
	}

	tone := s.sanitizer.SanitizeField(req.Tone, maxToneRunes)
	if tone == "" {
		tone = defaultTone
	}

	return completion.Request{
		ProductName: name,
		Features:    s.sanitizer.SanitizeField(req.Features, maxFeaturesRunes),
		Marketplace: mp,
		Tone:        tone,
	}, nil
}

// complete は上限時間付きで生成を呼び出す。失敗時は回数を消費しない。
func (s *Service) complete(ctx context.Context, req completion.Request) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.completer.Complete(cctx, req)
	s.metrics.RecordCompletionLatency(s.completer.Name(), time.Since(start))
	if err != nil {
		s.metrics.RecordCompletionFailure(s.completer.Name())
		s.logger.Error("completion failed",
			slog.String("provider", s.completer.Name()),
			slog.String("error", err.Error()),
		)
		return "", model.NewCompletionFailedError()
	}

	text = s.sanitizer.Sanitize(text)
	if text == "" {
		s.metrics.RecordCompletionFailure(s.completer.Name())
		s.logger.Error("completion returned empty text",
			slog.String("provider", s.completer.Name()),
		)
		return "", model.NewCompletionFailedError()
	}
	return text, nil
}

// record は履歴の保存と回数の消費を並行に行う。
// どちらの失敗もログに残すだけで、生成結果は返す。
// クライアントの切断で書き込みが中断されないようキャンセルを切り離す。
func (s *Service) record(ctx context.Context, userID string, req completion.Request, text string, premium bool) {
	wctx := context.WithoutCancel(ctx)
	var g errgroup.Group

	g.Go(func() error {
		gen := &model.Generation{
			ID:          s.newID(),
			UserID:      userID,
			ProductName: req.ProductName,
			Features:    req.Features,
			Marketplace: req.Marketplace,
			Tone:        req.Tone,
			Description: text,
			IsMock:      s.demo,
			CreatedAt:   s.now(),
		}
		if err := s.generations.Create(wctx, gen); err != nil {
			s.logger.Warn("failed to save generation history",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})

	if !premium {
		g.Go(func() error {
			if err := s.quota.Consume(wctx, userID); err != nil {
				s.logger.Warn("failed to increment generation count",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}

	_ = g.Wait()
}

// List はユーザーの生成履歴を新しい順に返す。limitは1〜100に丸める。
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*model.Generation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	gens, err := s.generations.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("生成履歴の取得に失敗しました: %w", err)
	}
	if gens == nil {
		gens = []*model.Generation{}
	}
	return gens, nil
}

// Delete は所有者本人の履歴だけを削除する。
// 存在しないIDと他人のIDは区別せずGENERATION_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewGenerationNotFoundError(id)
	}
	deleted, err := s.generations.DeleteByIDAndUserID(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("生成履歴の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewGenerationNotFoundError(id)
	}
	return nil
}

// Usage はプロフィールを必要なら作成し、利用状況とともに返す。
func (s *Service) Usage(ctx context.Context, userID string) (*Usage, error) {
	profile, err := s.profiles.CreateIfAbsent(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return &Usage{Profile: profile, Quota: s.quota.Status(profile)}, nil
}
