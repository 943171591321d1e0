package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/sellerpro/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPlanError("2w"))

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeInvalidPlan {
		t.Errorf("code = %q", body.Code)
	}
	if !strings.Contains(body.Error, "2w") {
		t.Errorf("error = %q", body.Error)
	}
	if body.Category != "validation" || body.Action == "" {
		t.Errorf("body = %+v", body)
	}
	if body.LimitReached {
		t.Error("limitReached should be false")
	}
}

// TestWriteErrorResponse_LimitReachedFlag は上限到達時にlimitReachedが付与されることを検証する。
func TestWriteErrorResponse_LimitReachedFlag(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusForbidden, model.NewLimitReachedError(3))

	var raw map[string]any
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if raw["limitReached"] != true {
		t.Errorf("limitReached = %v, want true", raw["limitReached"])
	}
	if _, ok := raw["error"].(string); !ok {
		t.Error("error field is missing")
	}
}

// TestWriteErrorResponse_OmitsLimitReached は上限到達以外でlimitReachedを出力しないことを検証する。
func TestWriteErrorResponse_OmitsLimitReached(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionRevokedError())

	if strings.Contains(w.Body.String(), "limitReached") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}
