// Package payment は決済ゲートウェイとの連携と決済の検証を提供する。
// 照会型（YooKassa）とコールバック型（Robokassa）の2種類を同じVerifierとして扱う。
package payment

import (
	"context"
	"net/url"

	"github.com/hitoshi/sellerpro/internal/model"
)

// Claim は検証対象の決済の申告内容。
// 照会型はPaymentIDとCallerIDを、コールバック型はFormを使う。
type Claim struct {
	PaymentID string
	CallerID  string
	Form      url.Values
}

// Verification は検証結果。
// Settledがfalseの場合、Statusにゲートウェイ側の状態が入る。
type Verification struct {
	Settled   bool
	Status    model.PaymentStatus
	PaymentID string
	UserID    string
	PlanID    model.PlanID
	Amount    string
}

// Verifier は決済が完了しているかを確認する。
// 署名不一致はSIGNATURE_INVALID、他ユーザーの決済はUSER_MISMATCH、
// ゲートウェイとの通信失敗はPAYMENT_PROVIDER_ERRORのAPIErrorを返す。
type Verifier interface {
	Gateway() model.Gateway
	Verify(ctx context.Context, claim Claim) (*Verification, error)
}

// Initiator は決済を開始し、リダイレクト先を返す。
type Initiator interface {
	Gateway() model.Gateway
	Initiate(ctx context.Context, userID string, plan model.Plan) (*model.Checkout, error)
}

// Gateway は開始と検証の両方を提供するゲートウェイ。
type Gateway interface {
	Initiator
	Verifier
}
