package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sellerpro/internal/model"
)

// SessionTokenHeader はクライアントが保持するセッショントークンを送るヘッダー。
const SessionTokenHeader = "X-Session-Token"

// sessionTokenQueryParam はWebSocket接続でセッショントークンを渡すクエリパラメータ。
const sessionTokenQueryParam = "session_token"

// SessionValidator はセッショントークンの検証に必要なインターフェース。
// session.Guardが実装する。
type SessionValidator interface {
	Validate(ctx context.Context, userID, token string) error
}

// NewSessionGateMiddleware は保持しているトークンが有効セッションと一致するかを検証する。
// 別端末で新しいセッションが取得されていれば401 SESSION_REVOKEDを返す。
// 認証ミドルウェアの後に配置する。匿名リクエストはそのまま通す。
func NewSessionGateMiddleware(validator SessionValidator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			err = validator.Validate(r.Context(), userID, SessionToken(r))
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			var apiErr *model.APIError
			if errors.As(err, &apiErr) {
				WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
				return
			}
			logger.Error("failed to validate session",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			WriteInternalServerError(w)
		})
	}
}

// SessionToken はリクエストからセッショントークンを取り出す。
// WebSocketのUpgradeリクエストのみクエリパラメータも参照する。
func SessionToken(r *http.Request) string {
	if t := r.Header.Get(SessionTokenHeader); t != "" {
		return t
	}
	if isWebSocketUpgrade(r) {
		return r.URL.Query().Get(sessionTokenQueryParam)
	}
	return ""
}
