package model

import (
	"fmt"
	"time"
)

// PlanID は購入可能なプランのコード。
type PlanID string

const (
	Plan1Day    PlanID = "1d"
	Plan3Days   PlanID = "3d"
	Plan1Month  PlanID = "1m"
	Plan3Months PlanID = "3m"
	Plan6Months PlanID = "6m"
	Plan1Year   PlanID = "1y"
)

// Plan はプランの価格と期間を表す。
type Plan struct {
	ID          PlanID
	PriceRUB    int // ルーブル単位（小数なし）
	Description string

	years, months, days int
}

// plans はプランコードごとの定義。
// FASTプラン（1d, 3d）とPROプラン（1m〜1y）の両方を含む。
var plans = map[PlanID]Plan{
	Plan1Day:    {ID: Plan1Day, PriceRUB: 79, Description: "AI Seller FAST (1 день)", days: 1},
	Plan3Days:   {ID: Plan3Days, PriceRUB: 149, Description: "AI Seller FAST (3 дня)", days: 3},
	Plan1Month:  {ID: Plan1Month, PriceRUB: 990, Description: "AI Seller Pro (1m)", months: 1},
	Plan3Months: {ID: Plan3Months, PriceRUB: 2490, Description: "AI Seller Pro (3m)", months: 3},
	Plan6Months: {ID: Plan6Months, PriceRUB: 4790, Description: "AI Seller Pro (6m)", months: 6},
	Plan1Year:   {ID: Plan1Year, PriceRUB: 8990, Description: "AI Seller Pro (1y)", years: 1},
}

// LookupPlan はプランコードからプラン定義を取得する。
func LookupPlan(code string) (Plan, bool) {
	p, ok := plans[PlanID(code)]
	return p, ok
}

// EndDate は決済時刻fromを起点にサブスクリプション終了日時を算出する。
// 月・年単位はtime.AddDateの正規化に従う（例: 2024-01-31 + 1m = 2024-03-02）。
func (p Plan) EndDate(from time.Time) time.Time {
	return from.AddDate(p.years, p.months, p.days)
}

// Amount は決済ゲートウェイに渡す金額文字列（小数点以下2桁）を返す。
func (p Plan) Amount() string {
	return fmt.Sprintf("%d.00", p.PriceRUB)
}
