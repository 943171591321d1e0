package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sellerpro/internal/generation"
	"github.com/hitoshi/sellerpro/internal/middleware"
	"github.com/hitoshi/sellerpro/internal/model"
)

// GenerationServiceInterface は生成ハンドラーが必要とするサービスインターフェース。
type GenerationServiceInterface interface {
	// Generate は商品説明文を生成する。userIDが空なら未ログインとして扱う。
	Generate(ctx context.Context, userID string, req generation.Request) (*generation.Result, error)
	// List はユーザーの生成履歴を新しい順に返す。
	List(ctx context.Context, userID string, limit int) ([]*model.Generation, error)
	// Delete は所有者本人の生成履歴を削除する。
	Delete(ctx context.Context, userID, id string) error
	// Usage はプロフィールと無料枠の利用状況を返す。
	Usage(ctx context.Context, userID string) (*generation.Usage, error)
}

// GenerationHandler は生成と履歴、プロフィールのHTTPハンドラー。
type GenerationHandler struct {
	service GenerationServiceInterface
}

// NewGenerationHandler はGenerationHandlerを生成する。
func NewGenerationHandler(service GenerationServiceInterface) *GenerationHandler {
	return &GenerationHandler{service: service}
}

type generateRequest struct {
	Name        string `json:"name"`
	Features    string `json:"features"`
	Marketplace string `json:"marketplace"`
	Tone        string `json:"tone"`
}

type generateResponse struct {
	Description string `json:"description"`
	IsMock      bool   `json:"isMock"`
}

type generationResponse struct {
	ID          string    `json:"id"`
	ProductName string    `json:"productName"`
	Features    string    `json:"features"`
	Marketplace string    `json:"marketplace"`
	Tone        string    `json:"tone"`
	Description string    `json:"description"`
	IsMock      bool      `json:"isMock"`
	CreatedAt   time.Time `json:"createdAt"`
}

type quotaResponse struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resetsAt"`
}

type profileResponse struct {
	ID                  string        `json:"id"`
	IsPremium           bool          `json:"isPremium"`
	SubscriptionPlanID  *string       `json:"subscriptionPlanId"`
	SubscriptionEndDate *time.Time    `json:"subscriptionEndDate"`
	SubscriptionStatus  string        `json:"subscriptionStatus"`
	Quota               quotaResponse `json:"quota"`
}

// Generate は商品説明文を生成する。
// POST /api/generate
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// 未ログインの可否はサービス側がデモモードかどうかで判定する
	userID, _ := middleware.UserIDFromContext(r.Context())

	res, err := h.service.Generate(r.Context(), userID, generation.Request{
		Name:        req.Name,
		Features:    req.Features,
		Marketplace: req.Marketplace,
		Tone:        req.Tone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{Description: res.Description, IsMock: res.IsMock})
}

// ListGenerations は生成履歴を返す。
// GET /api/generations?limit=N
func (h *GenerationHandler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("limitは整数で指定してください"))
			return
		}
		limit = n
	}

	gens, err := h.service.List(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]generationResponse, len(gens))
	for i, g := range gens {
		resp[i] = generationResponse{
			ID:          g.ID,
			ProductName: g.ProductName,
			Features:    g.Features,
			Marketplace: string(g.Marketplace),
			Tone:        g.Tone,
			Description: g.Description,
			IsMock:      g.IsMock,
			CreatedAt:   g.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteGeneration は生成履歴を削除する。
// DELETE /api/generations/{id}
func (h *GenerationHandler) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Profile はプロフィールと利用状況を返す。
// GET /api/profile
func (h *GenerationHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	u, err := h.service.Usage(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := profileResponse{
		ID:                  u.Profile.ID,
		IsPremium:           u.Quota.IsPremium,
		SubscriptionEndDate: u.Profile.SubscriptionEndDate,
		SubscriptionStatus:  string(u.Profile.SubscriptionStatus),
		Quota: quotaResponse{
			Used:      u.Quota.Used,
			Limit:     u.Quota.Limit,
			Remaining: u.Quota.Remaining,
			ResetsAt:  u.Quota.ResetsAt,
		},
	}
	if u.Profile.SubscriptionPlanID != nil {
		plan := string(*u.Profile.SubscriptionPlanID)
		resp.SubscriptionPlanID = &plan
	}
	writeJSON(w, http.StatusOK, resp)
}
