package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/sellerpro/internal/model"
	"github.com/hitoshi/sellerpro/internal/payment"
)

// maxFormBytes はゲートウェイ通知のフォーム本文の最大サイズ（16KB）。
const maxFormBytes = 16 << 10

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	// Init は決済を開始し、支払いページのURLを返す。
	Init(ctx context.Context, userID, planCode, gatewayName string) (*model.Checkout, error)
	// Check は照会型ゲートウェイの決済を確認し、完了していれば権限を付与する。
	Check(ctx context.Context, userID, paymentID string) (*payment.CheckResult, error)
	// HandleCallback はコールバック型ゲートウェイの通知を処理し、応答本文を返す。
	HandleCallback(ctx context.Context, form url.Values) (string, error)
}

// PaymentHandler は決済のHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
	logger  *slog.Logger
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: logger}
}

type paymentInitRequest struct {
	Plan    string `json:"plan"`
	Gateway string `json:"gateway"`
}

type paymentInitResponse struct {
	URL       string `json:"url"`
	PaymentID string `json:"paymentId"`
	Gateway   string `json:"gateway"`
}

type paymentCheckRequest struct {
	PaymentID string `json:"paymentId"`
}

type paymentCheckResponse struct {
	Success bool   `json:"success"`
	Plan    string `json:"plan,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Init は決済を開始する。
// POST /api/payment/init
func (h *PaymentHandler) Init(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req paymentInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	checkout, err := h.service.Init(r.Context(), userID, req.Plan, req.Gateway)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentInitResponse{
		URL:       checkout.URL,
		PaymentID: checkout.PaymentID,
		Gateway:   string(checkout.Gateway),
	})
}

// Check は照会型決済の完了を確認する。
// POST /api/payment/check
func (h *PaymentHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req paymentCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaymentID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("paymentIdは必須です"))
		return
	}

	res, err := h.service.Check(r.Context(), userID, req.PaymentID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if res.Success {
		writeJSON(w, http.StatusOK, paymentCheckResponse{Success: true, Plan: string(res.Plan)})
		return
	}
	writeJSON(w, http.StatusOK, paymentCheckResponse{Success: false, Status: string(res.Status)})
}

// Result はRobokassaのResultURL通知を受け取る。
// 成功時のみ "OK{InvId}" をプレーンテキストで返し、それ以外は応答本文を返さない。
// POST /api/payment/result
func (h *PaymentHandler) Result(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("failed to parse payment callback", slog.String("error", err.Error()))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ack, err := h.service.HandleCallback(r.Context(), r.Form)
	if err != nil {
		status := http.StatusInternalServerError
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			status = mapAPIErrorToHTTPStatus(apiErr)
			h.logger.Warn("payment callback rejected",
				slog.String("code", apiErr.Code),
				slog.String("inv_id", r.Form.Get("InvId")),
			)
		} else {
			h.logger.Error("payment callback failed",
				slog.String("inv_id", r.Form.Get("InvId")),
				slog.String("error", err.Error()),
			)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, ack)
}
