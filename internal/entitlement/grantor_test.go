package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/sellerpro/internal/metrics"
	"github.com/hitoshi/sellerpro/internal/model"
	"github.com/hitoshi/sellerpro/internal/repository"
)

// --- モック ---

// grantRepo は決済記録と付与を模倣するProfileRepository。
type grantRepo struct {
	repository.ProfileRepository

	settled  map[string]bool
	profiles map[string]*model.Profile
	err      error
	calls    int
}

func newGrantRepo() *grantRepo {
	return &grantRepo{settled: make(map[string]bool), profiles: make(map[string]*model.Profile)}
}

func (r *grantRepo) ApplyGrant(ctx context.Context, s *model.Settlement, endDate time.Time) (*model.Profile, bool, error) {
	r.calls++
	if r.err != nil {
		return nil, false, r.err
	}
	p, ok := r.profiles[s.UserID]
	if !ok {
		p = &model.Profile{ID: s.UserID, SubscriptionStatus: model.SubscriptionStatusInactive}
		r.profiles[s.UserID] = p
	}
	key := string(s.Gateway) + ":" + s.PaymentID
	if r.settled[key] {
		cp := *p
		return &cp, false, nil
	}
	r.settled[key] = true
	plan := s.PlanID
	end := endDate
	p.IsPremium = true
	p.SubscriptionPlanID = &plan
	p.SubscriptionEndDate = &end
	p.SubscriptionStatus = model.SubscriptionStatusActive
	cp := *p
	return &cp, true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// --- テスト ---

func TestGrant_OneMonthFromJan31_RollsIntoMarch(t *testing.T) {
	repo := newGrantRepo()
	g := NewGrantor(repo, metrics.Nop{}, discardLogger())

	settled := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	res, err := g.Grant(context.Background(), model.Settlement{
		Gateway: model.GatewayRobokassa, PaymentID: "100001", UserID: "u1",
		PlanID: model.Plan1Month, Amount: "990.00", SettledAt: settled,
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !res.Applied {
		t.Error("Applied = false, want true")
	}
	want := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	if !res.EndDate.Equal(want) {
		t.Errorf("EndDate = %v, want %v", res.EndDate, want)
	}
	if res.EndDate.Month() != time.March {
		t.Errorf("終了月 = %v, want March", res.EndDate.Month())
	}
	p := res.Profile
	if !p.IsPremium || p.SubscriptionStatus != model.SubscriptionStatusActive || *p.SubscriptionPlanID != model.Plan1Month {
		t.Errorf("unexpected profile: %+v", p)
	}
}

// 再送されたコールバックでは終了日を延長しない
func TestGrant_RetriedSettlement_NotExtended(t *testing.T) {
	repo := newGrantRepo()
	g := NewGrantor(repo, metrics.Nop{}, discardLogger())
	ctx := context.Background()

	s := model.Settlement{
		Gateway: model.GatewayYooKassa, PaymentID: "2f1c-pay", UserID: "u1",
		PlanID: model.Plan3Days, SettledAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	first, err := g.Grant(ctx, s)
	if err != nil {
		t.Fatal(err)
	}

	s.SettledAt = s.SettledAt.Add(12 * time.Hour)
	second, err := g.Grant(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if second.Applied {
		t.Error("再送でApplied = true")
	}
	if !second.EndDate.Equal(first.EndDate) {
		t.Errorf("EndDate changed on retry: %v -> %v", first.EndDate, second.EndDate)
	}
}

// 同じ決済IDでもゲートウェイが違えば別の決済として扱う
func TestGrant_SamePaymentIDDifferentGateway(t *testing.T) {
	repo := newGrantRepo()
	g := NewGrantor(repo, metrics.Nop{}, discardLogger())
	ctx := context.Background()

	base := model.Settlement{PaymentID: "42", UserID: "u1", PlanID: model.Plan1Day, SettledAt: time.Now()}
	a := base
	a.Gateway = model.GatewayRobokassa
	b := base
	b.Gateway = model.GatewayYooKassa

	ra, err := g.Grant(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	rb, err := g.Grant(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if !ra.Applied || !rb.Applied {
		t.Errorf("applied = %v, %v; want both true", ra.Applied, rb.Applied)
	}
}

func TestGrant_InvalidPlan(t *testing.T) {
	repo := newGrantRepo()
	g := NewGrantor(repo, metrics.Nop{}, discardLogger())

	_, err := g.Grant(context.Background(), model.Settlement{
		Gateway: model.GatewayRobokassa, PaymentID: "1", UserID: "u1", PlanID: "2w",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidPlan {
		t.Fatalf("err = %v, want INVALID_PLAN", err)
	}
	if repo.calls != 0 {
		t.Error("不正なプランでDBが呼ばれました")
	}
}

func TestGrant_MissingUser(t *testing.T) {
	g := NewGrantor(newGrantRepo(), metrics.Nop{}, discardLogger())

	_, err := g.Grant(context.Background(), model.Settlement{
		Gateway: model.GatewayRobokassa, PaymentID: "1", PlanID: model.Plan1Day,
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Fatalf("err = %v, want INVALID_REQUEST", err)
	}
}

// DB書き込みの失敗は呼び出し元に返す
func TestGrant_DBFailure_IsCritical(t *testing.T) {
	repo := newGrantRepo()
	repo.err = errors.New("connection reset")
	g := NewGrantor(repo, metrics.Nop{}, discardLogger())

	_, err := g.Grant(context.Background(), model.Settlement{
		Gateway: model.GatewayYooKassa, PaymentID: "p", UserID: "u1", PlanID: model.Plan1Year,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("DB障害はAPIErrorではなく内部エラーとして返すべき: %v", apiErr)
	}
}

func TestGrant_FillsDefaults(t *testing.T) {
	repo := newGrantRepo()
	g := NewGrantor(repo, metrics.Nop{}, discardLogger())
	fixed := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	res, err := g.Grant(context.Background(), model.Settlement{
		Gateway: model.GatewayYooKassa, PaymentID: "p", UserID: "u1", PlanID: model.Plan1Year,
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC); !res.EndDate.Equal(want) {
		t.Errorf("EndDate = %v, want %v", res.EndDate, want)
	}
}
