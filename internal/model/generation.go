package model

import "time"

// Marketplace は出品先マーケットプレイスのコード。
type Marketplace string

const (
	MarketplaceWildberries Marketplace = "wb"
	MarketplaceOzon        Marketplace = "ozon"
)

// Label はプロンプトや表示に使うマーケットプレイス名を返す。
// wb以外はOzonとして扱う。
func (m Marketplace) Label() string {
	if m == MarketplaceWildberries {
		return "Wildberries"
	}
	return "Ozon"
}

// Generation は1回の生成結果の履歴レコード。作成後は変更しない。
type Generation struct {
	ID          string
	UserID      string
	ProductName string
	Features    string
	Marketplace Marketplace
	Tone        string
	Description string
	IsMock      bool
	CreatedAt   time.Time
}
