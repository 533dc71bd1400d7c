package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"alfredoptarigan/cv-screening/internal/config"
)

// openAITransport talks to any OpenAI-compatible endpoint.
type openAITransport struct {
	client         *openai.Client
	model          string
	embeddingModel string
}

func newOpenAITransport(cfg config.LLMConfig) *openAITransport {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}

	return &openAITransport{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}
}

func (t *openAITransport) ChatCompletion(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", &LLMError{Kind: LLMErrorProvider, Message: "chat completion returned no choices"}
	}

	return resp.Choices[0].Message.Content, nil
}

func (t *openAITransport) Embedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := t.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(t.embeddingModel),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &LLMError{Kind: LLMErrorProvider, Message: "embedding response contained no vectors"}
	}

	return resp.Data[0].Embedding, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ClassifyStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ClassifyStatus(reqErr.HTTPStatusCode, strings.TrimSpace(string(reqErr.Body)), err)
	}

	return classifyTransportError(err)
}
