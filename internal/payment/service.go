package payment

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/hitoshi/sellerpro/internal/entitlement"
	"github.com/hitoshi/sellerpro/internal/metrics"
	"github.com/hitoshi/sellerpro/internal/model"
)

// Granter は検証済み決済をプレミアム権限として適用する。
type Granter interface {
	Grant(ctx context.Context, s model.Settlement) (*entitlement.Result, error)
}

// CheckResult は照会型決済の確認結果。
type CheckResult struct {
	Success bool
	Plan    model.PlanID
	Status  model.PaymentStatus
}

// Service は決済の開始・確認・コールバック処理をまとめる。
// 認証情報が未設定のゲートウェイは登録しない。
type Service struct {
	gateways map[model.Gateway]Gateway
	grantor  Granter
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(grantor Granter, mc metrics.MetricsCollector, logger *slog.Logger, gateways ...Gateway) *Service {
	m := make(map[model.Gateway]Gateway, len(gateways))
	for _, g := range gateways {
		m[g.Gateway()] = g
	}
	return &Service{
		gateways: m,
		grantor:  grantor,
		metrics:  mc,
		logger:   logger,
		now:      time.Now,
	}
}

// gateway は名前からゲートウェイを解決する。空の場合はYooKassaを使う。
func (s *Service) gateway(name string) (Gateway, error) {
	id := model.Gateway(name)
	if name == "" {
		id = model.GatewayYooKassa
	}
	if id != model.GatewayYooKassa && id != model.GatewayRobokassa {
		return nil, model.NewInvalidGatewayError(name)
	}
	g, ok := s.gateways[id]
	if !ok {
		return nil, model.NewGatewayNotConfiguredError(string(id))
	}
	return g, nil
}

// Init は決済を開始する。不明なプランはゲートウェイに問い合わせる前に拒否する。
func (s *Service) Init(ctx context.Context, userID, planCode, gatewayName string) (*model.Checkout, error) {
	plan, ok := model.LookupPlan(planCode)
	if !ok {
		return nil, model.NewInvalidPlanError(planCode)
	}
	g, err := s.gateway(gatewayName)
	if err != nil {
		return nil, err
	}
	return g.Initiate(ctx, userID, plan)
}

// Check は照会型ゲートウェイで決済を確認し、完了していれば権限を付与する。
// 未完了の場合は状態だけを返し、何も書き込まない。
func (s *Service) Check(ctx context.Context, userID, paymentID string) (*CheckResult, error) {
	g, err := s.gateway(string(model.GatewayYooKassa))
	if err != nil {
		return nil, err
	}

	v, err := g.Verify(ctx, Claim{PaymentID: paymentID, CallerID: userID})
	if err != nil {
		s.recordVerifyFailure(g.Gateway(), err)
		return nil, err
	}
	if !v.Settled {
		return &CheckResult{Success: false, Status: v.Status}, nil
	}

	if _, err := s.grantor.Grant(ctx, s.settlement(g.Gateway(), v)); err != nil {
		return nil, err
	}
	return &CheckResult{Success: true, Plan: v.PlanID, Status: v.Status}, nil
}

// HandleCallback はRobokassaのResultURL通知を検証して権限を付与し、応答本文を返す。
// 検証または付与に失敗した場合は応答本文を返さず、ゲートウェイに再送させる。
func (s *Service) HandleCallback(ctx context.Context, form url.Values) (string, error) {
	g, err := s.gateway(string(model.GatewayRobokassa))
	if err != nil {
		return "", err
	}

	v, err := g.Verify(ctx, Claim{Form: form})
	if err != nil {
		s.recordVerifyFailure(g.Gateway(), err)
		return "", err
	}

	if _, err := s.grantor.Grant(ctx, s.settlement(g.Gateway(), v)); err != nil {
		return "", err
	}
	return Ack(v.PaymentID), nil
}

func (s *Service) settlement(gateway model.Gateway, v *Verification) model.Settlement {
	return model.Settlement{
		Gateway:   gateway,
		PaymentID: v.PaymentID,
		UserID:    v.UserID,
		PlanID:    v.PlanID,
		Amount:    v.Amount,
		SettledAt: s.now(),
	}
}

func (s *Service) recordVerifyFailure(gateway model.Gateway, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return
	}
	switch apiErr.Code {
	case model.ErrCodeSignatureInvalid:
		s.metrics.RecordSignatureFailure(string(gateway))
	case model.ErrCodeUserMismatch:
		s.metrics.RecordUserMismatch(string(gateway))
	}
}
