package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"google.golang.org/genai"

	"alfredoptarigan/cv-screening/internal/config"
)

// maxEmbeddingInput keeps requests under the Gemini embedding token limit.
const maxEmbeddingInput = 40000

type geminiTransport struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

func newGeminiTransport(ctx context.Context, cfg config.LLMConfig) (*geminiTransport, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &geminiTransport{
		client:         client,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

func (g *geminiTransport) ChatCompletion(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	generateConfig := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(maxTokens),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), generateConfig)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if resp == nil {
		return "", &LLMError{Kind: LLMErrorProvider, Message: "gemini returned a nil response"}
	}

	text := resp.Text()
	if text == "" {
		return "", &LLMError{Kind: LLMErrorProvider, Message: "gemini response has no text content"}
	}

	return text, nil
}

func (g *geminiTransport) Embedding(ctx context.Context, text string) ([]float32, error) {
	text = truncateUTF8(text, maxEmbeddingInput)

	result, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, &LLMError{Kind: LLMErrorProvider, Message: "gemini embedding result is empty"}
	}

	return result.Embeddings[0].Values, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ClassifyStatus(apiErr.Code, apiErr.Message, err)
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return ClassifyStatus(apiErrPtr.Code, apiErrPtr.Message, err)
	}

	return classifyTransportError(err)
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
