package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/sellerpro/internal/model"
)

// maxResponseSize はゲートウェイ応答の読み取り上限。
const maxResponseSize = 1 << 20

// YooKassaConfig はYooKassa連携の設定。
type YooKassaConfig struct {
	ShopID    string
	SecretKey string
	APIURL    string // 例: https://api.yookassa.ru/v3
	ReturnURL string // 決済後に戻る画面
}

// YooKassa は照会型の決済ゲートウェイ。
// 決済の成否はクライアントの申告ではなく、サーバーからの再照会で判断する。
type YooKassa struct {
	cfg        YooKassaConfig
	httpClient *http.Client
	logger     *slog.Logger
	newKey     func() string
}

// NewYooKassa はYooKassaクライアントを生成する。
func NewYooKassa(cfg YooKassaConfig, httpClient *http.Client, logger *slog.Logger) *YooKassa {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &YooKassa{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		newKey:     func() string { return uuid.New().String() },
	}
}

// Gateway はゲートウェイ識別子を返す。
func (y *YooKassa) Gateway() model.Gateway {
	return model.GatewayYooKassa
}

type yooAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yooConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type yooCreateRequest struct {
	Amount       yooAmount         `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation yooConfirmation   `json:"confirmation"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
}

type yooPayment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       yooAmount         `json:"amount"`
	Confirmation yooConfirmation   `json:"confirmation"`
	Metadata     map[string]string `json:"metadata"`
}

// Initiate は決済を作成し、確認画面のURLと決済IDを返す。
// メタデータにuser_idとplan_idを埋め込み、照会時の検証に使う。
func (y *YooKassa) Initiate(ctx context.Context, userID string, plan model.Plan) (*model.Checkout, error) {
	body := yooCreateRequest{
		Amount:  yooAmount{Value: plan.Amount(), Currency: "RUB"},
		Capture: true,
		Confirmation: yooConfirmation{
			Type:      "redirect",
			ReturnURL: y.cfg.ReturnURL,
		},
		Description: plan.Description,
		Metadata: map[string]string{
			"user_id": userID,
			"plan_id": string(plan.ID),
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.cfg.APIURL+"/payments", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", y.newKey())

	payment, err := y.do(req)
	if err != nil {
		return nil, err
	}
	if payment.Confirmation.ConfirmationURL == "" {
		y.logger.Error("yookassa response has no confirmation url",
			slog.String("payment_id", payment.ID),
		)
		return nil, model.NewPaymentProviderError("確認URLを取得できませんでした")
	}

	y.logger.Info("yookassa payment created",
		slog.String("payment_id", payment.ID),
		slog.String("user_id", userID),
		slog.String("plan", string(plan.ID)),
	)

	return &model.Checkout{
		Gateway:   model.GatewayYooKassa,
		URL:       payment.Confirmation.ConfirmationURL,
		PaymentID: payment.ID,
	}, nil
}

// Verify は決済IDでゲートウェイに照会し、結果を返す。
// succeededの場合、メタデータのuser_idが呼び出し元と一致しなければUSER_MISMATCHを返す。
func (y *YooKassa) Verify(ctx context.Context, claim Claim) (*Verification, error) {
	if claim.PaymentID == "" {
		return nil, model.NewInvalidRequestError("paymentIdが指定されていません")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		y.cfg.APIURL+"/payments/"+url.PathEscape(claim.PaymentID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	payment, err := y.do(req)
	if err != nil {
		return nil, err
	}

	status := model.PaymentStatus(payment.Status)
	if status != model.PaymentStatusSucceeded {
		return &Verification{Settled: false, Status: status, PaymentID: payment.ID}, nil
	}

	userID := payment.Metadata["user_id"]
	if userID != claim.CallerID {
		y.logger.Warn("payment user mismatch",
			slog.String("payment_id", payment.ID),
			slog.String("caller_id", claim.CallerID),
			slog.String("payment_user_id", userID),
		)
		return nil, model.NewUserMismatchError()
	}

	planID := payment.Metadata["plan_id"]
	if _, ok := model.LookupPlan(planID); !ok {
		y.logger.Error("payment metadata has unknown plan",
			slog.String("payment_id", payment.ID),
			slog.String("plan", planID),
		)
		return nil, model.NewInvalidPlanError(planID)
	}

	return &Verification{
		Settled:   true,
		Status:    status,
		PaymentID: payment.ID,
		UserID:    userID,
		PlanID:    model.PlanID(planID),
		Amount:    payment.Amount.Value,
	}, nil
}

// do は認証ヘッダを付けてリクエストを送り、決済オブジェクトをデコードする。
func (y *YooKassa) do(req *http.Request) (*yooPayment, error) {
	req.SetBasicAuth(y.cfg.ShopID, y.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		y.logger.Error("yookassa request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPaymentProviderError("決済サービスに接続できませんでした")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		y.logger.Error("failed to read yookassa response",
			slog.String("error", err.Error()),
		)
		return nil, model.NewPaymentProviderError("応答の読み取りに失敗しました")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		y.logger.Error("yookassa returned error status",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return nil, model.NewPaymentProviderError(fmt.Sprintf("ステータス %d", resp.StatusCode))
	}

	var payment yooPayment
	if err := json.Unmarshal(body, &payment); err != nil {
		y.logger.Error("failed to decode yookassa response",
			slog.String("error", err.Error()),
		)
		return nil, model.NewPaymentProviderError("応答の形式が不正です")
	}
	return &payment, nil
}

var _ Gateway = (*YooKassa)(nil)
