package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
)

// NotifyChannel はprofilesのトリガーが通知するチャネル名。
const NotifyChannel = "profile_session"

// listenerPingInterval は通知が無い間の接続確認間隔。
const listenerPingInterval = 90 * time.Second

// Listener はPostgreSQLのLISTEN/NOTIFYでセッション変更を受け取り、Brokerへ流す。
// 複数インスタンス構成で他インスタンスのClaimを受け取るために使う。
type Listener struct {
	databaseURL string
	broker      *Broker
	logger      *slog.Logger
}

// NewListener はListenerを生成する。
func NewListener(databaseURL string, broker *Broker, logger *slog.Logger) *Listener {
	return &Listener{databaseURL: databaseURL, broker: broker, logger: logger}
}

// ParsePayload は "userID:token" 形式の通知ペイロードを分解する。
// トークンは16進文字列のため、最後の':'で区切る。
func ParsePayload(payload string) (Event, error) {
	i := strings.LastIndex(payload, ":")
	if i <= 0 {
		return Event{}, fmt.Errorf("invalid session payload: %q", payload)
	}
	return Event{UserID: payload[:i], Token: payload[i+1:]}, nil
}

// Run はctxがキャンセルされるまで通知を受信し続ける。
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.databaseURL, time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				l.logger.Warn("session listener event",
					slog.Int("event", int(ev)),
					slog.String("error", err.Error()),
				)
			}
		},
	)
	defer listener.Close()

	if err := listener.Listen(NotifyChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}

	l.logger.Info("session listener started", slog.String("channel", NotifyChannel))

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("session listener stopped")
			return nil
		case n := <-listener.Notify:
			// 再接続時はnilが届く
			if n == nil {
				continue
			}
			ev, err := ParsePayload(n.Extra)
			if err != nil {
				l.logger.Warn("ignoring malformed session notification",
					slog.String("error", err.Error()),
				)
				continue
			}
			l.broker.Publish(ev)
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				l.logger.Warn("session listener ping failed", slog.String("error", err.Error()))
			}
		}
	}
}
