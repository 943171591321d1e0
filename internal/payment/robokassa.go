package payment

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/sellerpro/internal/model"
	"github.com/hitoshi/sellerpro/internal/repository"
)

// robokassaPaymentURL はRobokassaの決済画面。
const robokassaPaymentURL = "https://auth.robokassa.ru/Merchant/Index.aspx"

// RobokassaConfig はRobokassa連携の設定。
// Password1は決済開始用、Password2はResultURLコールバック検証用。
type RobokassaConfig struct {
	MerchantLogin string
	Password1     string
	Password2     string
	TestMode      bool
}

// Robokassa はコールバック型の決済ゲートウェイ。
// ResultURLへのサーバー間通知には認証情報がなく、署名だけが唯一の認証になる。
type Robokassa struct {
	cfg        RobokassaConfig
	invoices   repository.InvoiceSequence
	logger     *slog.Logger
	paymentURL string
}

// NewRobokassa はRobokassaゲートウェイを生成する。
func NewRobokassa(cfg RobokassaConfig, invoices repository.InvoiceSequence, logger *slog.Logger) *Robokassa {
	return &Robokassa{
		cfg:        cfg,
		invoices:   invoices,
		logger:     logger,
		paymentURL: robokassaPaymentURL,
	}
}

// Gateway はゲートウェイ識別子を返す。
func (r *Robokassa) Gateway() model.Gateway {
	return model.GatewayRobokassa
}

// InitSignature は決済開始URLの署名を計算する。
// MerchantLogin:OutSum:InvId:Password1:Shp_Plan=..:Shp_UserId=.. のMD5（小文字16進）。
func InitSignature(merchantLogin, outSum, invID, password1, plan, userID string) string {
	return md5Hex(strings.Join([]string{
		merchantLogin, outSum, invID, password1,
		"Shp_Plan=" + plan, "Shp_UserId=" + userID,
	}, ":"))
}

// ResultSignature はResultURLコールバックの期待署名を計算する。
// OutSum:InvId:Password2:Shp_Plan=..:Shp_UserId=.. のMD5（小文字16進）。
func ResultSignature(outSum, invID, password2, plan, userID string) string {
	return md5Hex(strings.Join([]string{
		outSum, invID, password2,
		"Shp_Plan=" + plan, "Shp_UserId=" + userID,
	}, ":"))
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// signatureEqual は大文字小文字を区別せず、一定時間で比較する。
func signatureEqual(expected, supplied string) bool {
	return subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(expected)),
		[]byte(strings.ToLower(strings.TrimSpace(supplied))),
	) == 1
}

// Initiate は請求番号を採番し、署名済みの決済画面URLを組み立てる。
func (r *Robokassa) Initiate(ctx context.Context, userID string, plan model.Plan) (*model.Checkout, error) {
	invID, err := r.invoices.NextInvoiceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate invoice id: %w", err)
	}

	paymentURL, err := r.BuildPaymentURL(invID, userID, plan)
	if err != nil {
		return nil, err
	}

	r.logger.Info("robokassa payment created",
		slog.Int64("inv_id", invID),
		slog.String("user_id", userID),
		slog.String("plan", string(plan.ID)),
	)

	return &model.Checkout{
		Gateway:   model.GatewayRobokassa,
		URL:       paymentURL,
		PaymentID: strconv.FormatInt(invID, 10),
	}, nil
}

// BuildPaymentURL は署名付きの決済画面URLを返す。
func (r *Robokassa) BuildPaymentURL(invID int64, userID string, plan model.Plan) (string, error) {
	u, err := url.Parse(r.paymentURL)
	if err != nil {
		return "", fmt.Errorf("invalid robokassa url: %w", err)
	}

	outSum := plan.Amount()
	inv := strconv.FormatInt(invID, 10)

	q := url.Values{}
	q.Set("MerchantLogin", r.cfg.MerchantLogin)
	q.Set("OutSum", outSum)
	q.Set("InvId", inv)
	q.Set("Description", plan.Description)
	q.Set("SignatureValue", InitSignature(r.cfg.MerchantLogin, outSum, inv, r.cfg.Password1, string(plan.ID), userID))
	q.Set("Shp_Plan", string(plan.ID))
	q.Set("Shp_UserId", userID)
	q.Set("Culture", "ru")
	if r.cfg.TestMode {
		q.Set("IsTest", "1")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Verify はResultURLに届いたフォームの署名を検証する。
// 署名が一致しない場合は何も信用せずSIGNATURE_INVALIDを返す。
func (r *Robokassa) Verify(ctx context.Context, claim Claim) (*Verification, error) {
	form := claim.Form
	outSum := form.Get("OutSum")
	invID := form.Get("InvId")
	supplied := form.Get("SignatureValue")
	plan := form.Get("Shp_Plan")
	userID := form.Get("Shp_UserId")

	if outSum == "" || invID == "" || supplied == "" {
		return nil, model.NewInvalidRequestError("必須パラメータが不足しています")
	}

	expected := ResultSignature(outSum, invID, r.cfg.Password2, plan, userID)
	if !signatureEqual(expected, supplied) {
		r.logger.Warn("robokassa signature mismatch",
			slog.String("inv_id", invID),
			slog.String("out_sum", outSum),
		)
		return nil, model.NewSignatureInvalidError()
	}

	p, ok := model.LookupPlan(plan)
	if !ok {
		r.logger.Error("robokassa callback has unknown plan",
			slog.String("inv_id", invID),
			slog.String("plan", plan),
		)
		return nil, model.NewInvalidPlanError(plan)
	}
	if userID == "" {
		return nil, model.NewInvalidRequestError("Shp_UserIdが指定されていません")
	}

	// 署名は正しくても価格表より少ない金額では付与しない
	paid, err := strconv.ParseFloat(outSum, 64)
	if err != nil || paid+0.005 < float64(p.PriceRUB) {
		r.logger.Error("robokassa callback amount below plan price",
			slog.String("inv_id", invID),
			slog.String("out_sum", outSum),
			slog.Int("price", p.PriceRUB),
		)
		return nil, model.NewInvalidRequestError("金額がプラン価格と一致しません")
	}

	return &Verification{
		Settled:   true,
		Status:    model.PaymentStatusSucceeded,
		PaymentID: invID,
		UserID:    userID,
		PlanID:    p.ID,
		Amount:    outSum,
	}, nil
}

// Ack はResultURLへの応答本文を返す。Robokassaはこの文字列を受け取るまで通知を再送する。
func Ack(invID string) string {
	return "OK" + invID
}

var _ Gateway = (*Robokassa)(nil)
