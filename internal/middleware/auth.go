// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/sellerpro/internal/auth"
	"github.com/hitoshi/sellerpro/internal/model"
)

// accessTokenQueryParam はWebSocket接続でアクセストークンを渡すクエリパラメータ。
// ブラウザのWebSocket APIはヘッダーを付与できないため、Upgradeリクエストに限り受け付ける。
const accessTokenQueryParam = "access_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenVerifier はアクセストークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(token string) (*auth.User, error)
}

// NewAuthMiddleware はBearerトークンを検証し、ユーザーIDをコンテキストに注入する。
// トークンが無い、または不正な場合は401を返す。
func NewAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			user, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("access token rejected", slog.String("error", err.Error()))
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), user.ID)))
		})
	}
}

// NewOptionalAuthMiddleware はトークンがあれば検証してユーザーIDを注入し、無ければ匿名として通す。
// 付与されたトークンが不正な場合は匿名扱いにせず401を返す。
func NewOptionalAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("access token rejected", slog.String("error", err.Error()))
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), user.ID)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークンを取り出す。
// WebSocketのUpgradeリクエストのみクエリパラメータも参照する。
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if isWebSocketUpgrade(r) {
		return r.URL.Query().Get(accessTokenQueryParam)
	}
	return ""
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
