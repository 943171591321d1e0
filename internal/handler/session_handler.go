package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/sellerpro/internal/middleware"
	"github.com/hitoshi/sellerpro/internal/model"
	"github.com/hitoshi/sellerpro/internal/session"
)

const (
	// wsWriteWait は1回の書き込みに許す時間。
	wsWriteWait = 10 * time.Second
	// wsPongWait はクライアントからのpongを待つ時間。
	wsPongWait = 60 * time.Second
	// wsPingPeriod はpingの送信間隔。wsPongWaitより短くする。
	wsPingPeriod = 54 * time.Second
	// wsMaxMessageSize はクライアントから受け取るメッセージの上限。
	wsMaxMessageSize = 512
)

// セッションイベントの種類
const (
	sessionEventRevoked = "session_revoked"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	// Claim は新しいセッションを取得し、トークンを返す。
	Claim(ctx context.Context, userID string) (string, error)
	// Validate はトークンが現在の有効セッションかを確認する。
	Validate(ctx context.Context, userID, token string) error
}

// SessionEventSource はユーザー単位のセッション変更通知を購読する。
type SessionEventSource interface {
	Subscribe(userID string) (<-chan session.Event, func())
}

// SessionHandler はセッション取得と変更通知のHTTPハンドラー。
type SessionHandler struct {
	service  SessionServiceInterface
	events   SessionEventSource
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewSessionHandler はSessionHandlerを生成する。
// allowedOriginはWebSocket接続を許可するOriginで、CORS設定と同じ値を使う。
func NewSessionHandler(service SessionServiceInterface, events SessionEventSource, allowedOrigin string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		events:  events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
		logger: logger,
	}
}

type sessionClaimResponse struct {
	SessionToken string `json:"sessionToken"`
}

type sessionEvent struct {
	Type string `json:"type"`
}

// Claim はこの端末を有効セッションにする。以前の端末は無効になる。
// POST /api/session/claim
func (h *SessionHandler) Claim(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	token, err := h.service.Claim(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionClaimResponse{SessionToken: token})
}

// Events は保持しているセッションが別端末に奪われたことをWebSocketで通知する。
// 通知を送った後に接続を閉じる。
// GET /api/session/events
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	held := middleware.SessionToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgraderがエラーレスポンスを書き込み済み
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.events.Subscribe(userID)
	defer unsubscribe()

	// 購読開始前に奪われていた場合を取りこぼさない
	revoked := false
	if err := h.service.Validate(context.WithoutCancel(r.Context()), userID, held); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			revoked = true
		} else {
			h.logger.Warn("failed to revalidate session", slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}

	done := make(chan struct{})
	go h.readPump(conn, done)

	if revoked {
		h.notifyRevoked(conn, userID)
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if session.Matches(ev.Token, held) {
				continue
			}
			h.notifyRevoked(conn, userID)
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump はpongで読み取り期限を延長し、切断を検知したらdoneを閉じる。
// クライアントからのメッセージは読み捨てる。
func (h *SessionHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("session events connection closed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// notifyRevoked は無効化イベントを送り、正常終了のCloseフレームを送る。
func (h *SessionHandler) notifyRevoked(conn *websocket.Conn, userID string) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(sessionEvent{Type: sessionEventRevoked}); err != nil {
		h.logger.Debug("failed to send session event", slog.String("error", err.Error()))
		return
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, sessionEventRevoked))

	h.logger.Info("session revoked notification sent", slog.String("user_id", userID))
}
