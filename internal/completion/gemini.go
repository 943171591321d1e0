package completion

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient はGemini APIで説明文を生成する。
type GeminiClient struct {
	models *genai.Models
	model  string
}

// NewGeminiClient はGeminiClientを生成する。apiKeyが空の場合はGEMINI_API_KEYを使う。
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" || model == defaultOpenAIModel {
		model = defaultGeminiModel
	}
	return &GeminiClient{models: client.Models, model: model}, nil
}

// Name はプロバイダ名を返す。
func (c *GeminiClient) Name() string {
	return ProviderGemini
}

// Complete はシステム指示付きでGenerateContentを呼び出す。
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(req.Marketplace, req.Tone), genai.RoleUser),
		Temperature:       genai.Ptr[float32](temperature),
	}
	result, err := c.models.GenerateContent(ctx, c.model, genai.Text(UserPrompt(req)), cfg)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("gemini response has no text")
	}
	return text, nil
}
