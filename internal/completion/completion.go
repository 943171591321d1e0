// Package completion は商品説明文を生成する言語モデルクライアントを提供する。
package completion

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/sellerpro/internal/model"
)

// プロバイダ名
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// temperature は生成時のサンプリング温度。
const temperature = 0.7

// Request は1回の生成に必要な商品情報。
type Request struct {
	ProductName string
	Features    string
	Marketplace model.Marketplace
	Tone        string
}

// Client は商品説明文を生成するクライアントのインターフェース。
type Client interface {
	// Name はメトリクスとログに使うプロバイダ名を返す。
	Name() string
	// Complete は商品説明文を生成する。ctxの期限を超えた場合はエラーを返す。
	Complete(ctx context.Context, req Request) (string, error)
}

// Options はNewに渡す接続設定。
type Options struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// New はProviderに応じたClientを生成する。
func New(ctx context.Context, opts Options) (Client, error) {
	switch strings.ToLower(opts.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIClient(opts.APIKey, opts.BaseURL, opts.Model, opts.HTTPClient), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, opts.APIKey, opts.Model)
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", opts.Provider)
	}
}

// SystemPrompt はマーケットプレイスと文体を埋め込んだシステムプロンプトを返す。
func SystemPrompt(mp model.Marketplace, tone string) string {
	return fmt.Sprintf(`Ты - профессиональный копирайтер для маркетплейсов %s.
Твоя задача - написать продающее, SEO-оптимизированное описание товара на русском языке.
Используй стиль: %s.

Пиши естественно, разделяй текст на абзацы.
Используй эмодзи для списков преимуществ, но не переусердствуй.

Структура (не пиши названия разделов, просто следуй логике):
1. Заголовок (H1) - эмоциональный и с ключами (CAPS LOCK).
2. Преимущества (список с буллитами или эмодзи).
3. Описание (AIDA - внимание, интерес, желание, действие).
4. Характеристики (вплетены в текст или списком).
5. Призыв к действию.
6. Блок ключевых слов (тэги) в конце.

Не пиши "Описание:", "Преимущества:" и т.д. явно, если это не требуется для структуры.`, mp.Label(), tone)
}

// UserPrompt は商品名と特徴からユーザープロンプトを組み立てる。
func UserPrompt(req Request) string {
	return fmt.Sprintf("Товар: %s.\nОсобенности/Ключи: %s.", req.ProductName, req.Features)
}
