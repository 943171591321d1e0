package completion

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockClient はAIキー未設定のデモモードで使う固定テンプレートの生成器。
type MockClient struct {
	delay time.Duration
}

// NewMockClient はMockClientを生成する。delayは応答前の待ち時間。
func NewMockClient(delay time.Duration) *MockClient {
	return &MockClient{delay: delay}
}

// Name はプロバイダ名を返す。
func (c *MockClient) Name() string {
	return ProviderMock
}

// Complete はdelayだけ待ってからデモ用の説明文を返す。
func (c *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return MockDescription(req), nil
}

// MockDescription はデモ用の説明文を組み立てる。
func MockDescription(req Request) string {
	platform := req.Marketplace.Label()
	name := req.ProductName

	benefits := "- Высокое качество материалов\n- Долговечность и надежность\n- Стильный дизайн 2024 года"
	if req.Features != "" {
		benefits = "- " + strings.Join(strings.Split(req.Features, ","), "\n- ")
	}

	return fmt.Sprintf(`[ДЕМО РЕЖИМ]
🔥 %s — ХИТ ПРОДАЖ НА %s! 🔥

Ищете идеальный %s? Вы его нашли! Наш товар сочетает в себе стиль, качество и удобство.

✅ ПРЕИМУЩЕСТВА:
%s

📝 ОПИСАНИЕ:
Представляем вам %s — незаменимый выбор для тех, кто ценит комфорт. Этот товар отлично подойдет как для повседневного использования, так и в качестве подарка. Мы используем только проверенные материалы, чтобы вы остались довольны покупкой.

⭐ ПОЧЕМУ ВЫБИРАЮТ НАС:
• Быстрая доставка
• Гарантия качества
• Тысячи довольных клиентов

🚀 Успейте заказать %s по выгодной цене прямо сейчас! Добавляйте в корзину, пока товар есть в наличии.

Ключевые слова: %s, %s, купить на %s, подарок, скидки, акция.`,
		strings.ToUpper(name), strings.ToUpper(platform),
		name, benefits, name, name,
		name, req.Features, platform)
}
