package model

import "time"

// Gateway は決済ゲートウェイの識別子。
type Gateway string

const (
	// GatewayYooKassa は照会型（pull）検証のゲートウェイ。
	GatewayYooKassa Gateway = "yookassa"
	// GatewayRobokassa は署名付きコールバック（push）型のゲートウェイ。
	GatewayRobokassa Gateway = "robokassa"
)

// PaymentStatus はゲートウェイ側の決済状態。
type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

// Settlement は検証済みの決済を表す。
// (Gateway, PaymentID) が付与処理の冪等キーになる。
type Settlement struct {
	Gateway   Gateway
	PaymentID string
	UserID    string
	PlanID    PlanID
	Amount    string
	SettledAt time.Time
}

// Checkout は決済開始時にクライアントへ返すリダイレクト情報。
type Checkout struct {
	Gateway   Gateway
	URL       string
	PaymentID string
}
