// Package session は1アカウント1セッションの制御を提供する。
// 最後にセッションを取得した端末だけが有効で、それ以前の端末には無効化を通知する。
package session

import "sync"

// subscriberBuffer は購読チャネルのバッファ数。
// 受信側は最新のトークンだけを見ればよいため小さくてよい。
const subscriberBuffer = 4

// Event はユーザーの有効セッショントークンが変わったことを表す。
type Event struct {
	UserID string
	Token  string
}

// Broker はユーザー単位でセッション変更イベントを配信する。
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewBroker はBrokerを生成する。
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe は指定ユーザーのイベントを受け取るチャネルと解除関数を返す。
// 解除関数は複数回呼んでもよい。
func (b *Broker) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[userID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[userID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			close(ch)
		})
	}
}

// Publish はイベントを該当ユーザーの全購読者に送る。
// バッファが埋まっている購読者には古いイベントを捨てて最新を入れる。
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// SubscriberCount は指定ユーザーの購読者数を返す。
func (b *Broker) SubscriberCount(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}
