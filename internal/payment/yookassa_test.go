package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/sellerpro/internal/model"
)

func newTestYooKassa(t *testing.T, handler http.HandlerFunc) (*YooKassa, *bytes.Buffer) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	y := NewYooKassa(YooKassaConfig{
		ShopID:    "shop-1",
		SecretKey: "secret",
		APIURL:    server.URL + "/",
		ReturnURL: "https://app.example.com/app?payment_check=true",
	}, server.Client(), newTestLogger(&buf))
	return y, &buf
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestYooKassa_Initiate_SendsPaymentRequest(t *testing.T) {
	y, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payments" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "shop-1" || pass != "secret" {
			t.Errorf("basic auth = %q:%q", user, pass)
		}
		if r.Header.Get("Idempotence-Key") != "key-1" {
			t.Errorf("Idempotence-Key = %q", r.Header.Get("Idempotence-Key"))
		}

		var body yooCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Amount.Value != "2490.00" || body.Amount.Currency != "RUB" {
			t.Errorf("amount = %+v", body.Amount)
		}
		if !body.Capture || body.Confirmation.Type != "redirect" {
			t.Errorf("capture/confirmation = %v/%+v", body.Capture, body.Confirmation)
		}
		if body.Metadata["user_id"] != "user-1" || body.Metadata["plan_id"] != "3m" {
			t.Errorf("metadata = %v", body.Metadata)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"id":     "pay-123",
			"status": "pending",
			"confirmation": map[string]string{
				"type":             "redirect",
				"confirmation_url": "https://yoomoney.ru/checkout/pay-123",
			},
		})
	})
	y.newKey = func() string { return "key-1" }

	plan, _ := model.LookupPlan("3m")
	checkout, err := y.Initiate(context.Background(), "user-1", plan)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if checkout.PaymentID != "pay-123" || checkout.URL != "https://yoomoney.ru/checkout/pay-123" {
		t.Errorf("unexpected checkout: %+v", checkout)
	}
}

func TestYooKassa_Initiate_ProviderError(t *testing.T) {
	y, buf := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"type": "error", "code": "invalid_credentials"})
	})

	plan, _ := model.LookupPlan("1m")
	_, err := y.Initiate(context.Background(), "user-1", plan)
	assertAPIErrorCode(t, err, model.ErrCodePaymentProvider)
	if !strings.Contains(buf.String(), "invalid_credentials") {
		t.Error("ゲートウェイのエラー詳細がログに残っていません")
	}
}

func TestYooKassa_Verify_Statuses(t *testing.T) {
	tests := []struct {
		status      string
		wantSettled bool
	}{
		{"succeeded", true},
		{"pending", false},
		{"waiting_for_capture", false},
		{"canceled", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			y, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/payments/pay-1" {
					t.Errorf("request = %s %s", r.Method, r.URL.Path)
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"id":       "pay-1",
					"status":   tt.status,
					"amount":   map[string]string{"value": "990.00", "currency": "RUB"},
					"metadata": map[string]string{"user_id": "user-1", "plan_id": "1m"},
				})
			})

			v, err := y.Verify(context.Background(), Claim{PaymentID: "pay-1", CallerID: "user-1"})
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if v.Settled != tt.wantSettled {
				t.Errorf("Settled = %v, want %v", v.Settled, tt.wantSettled)
			}
			if string(v.Status) != tt.status {
				t.Errorf("Status = %q, want %q", v.Status, tt.status)
			}
			if tt.wantSettled && (v.PlanID != model.Plan1Month || v.UserID != "user-1") {
				t.Errorf("unexpected verification: %+v", v)
			}
		})
	}
}

// 他ユーザーの決済IDは付与せずUSER_MISMATCHで拒否する
func TestYooKassa_Verify_UserMismatch(t *testing.T) {
	y, buf := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":       "pay-1",
			"status":   "succeeded",
			"metadata": map[string]string{"user_id": "victim", "plan_id": "1y"},
		})
	})

	v, err := y.Verify(context.Background(), Claim{PaymentID: "pay-1", CallerID: "attacker"})
	if v != nil {
		t.Errorf("verification should be nil, got %+v", v)
	}
	assertAPIErrorCode(t, err, model.ErrCodeUserMismatch)
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Errorf("ユーザー不一致が警告ログに記録されていません: %s", buf.String())
	}
}

func TestYooKassa_Verify_UnknownPlanInMetadata(t *testing.T) {
	y, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":       "pay-1",
			"status":   "succeeded",
			"metadata": map[string]string{"user_id": "user-1", "plan_id": "forever"},
		})
	})

	_, err := y.Verify(context.Background(), Claim{PaymentID: "pay-1", CallerID: "user-1"})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidPlan)
}

func TestYooKassa_Verify_ProviderFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"5xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"404", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"broken json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("{not json")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, _ := newTestYooKassa(t, tt.handler)
			_, err := y.Verify(context.Background(), Claim{PaymentID: "pay-1", CallerID: "user-1"})
			assertAPIErrorCode(t, err, model.ErrCodePaymentProvider)
		})
	}
}

func TestYooKassa_Verify_Unreachable(t *testing.T) {
	var buf bytes.Buffer
	y := NewYooKassa(YooKassaConfig{APIURL: "http://127.0.0.1:1"}, http.DefaultClient, newTestLogger(&buf))

	_, err := y.Verify(context.Background(), Claim{PaymentID: "pay-1", CallerID: "user-1"})
	assertAPIErrorCode(t, err, model.ErrCodePaymentProvider)
}

func TestYooKassa_Verify_EmptyPaymentID(t *testing.T) {
	y, _ := newTestYooKassa(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("ゲートウェイが呼ばれました")
	})
	_, err := y.Verify(context.Background(), Claim{CallerID: "user-1"})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
}
