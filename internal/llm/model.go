package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BLNCname/GMailSecretary/internal/modelapi"
)

// TextModel is a single blocking text-in, text-out call.
type TextModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var _ TextModel = (*ChatModel)(nil)

var errEmptyAnswer = errors.New("model returned no choices")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatModel calls an OpenAI-compatible /chat/completions endpoint.
type ChatModel struct {
	client      *modelapi.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewChatModel(client *modelapi.Client, model string, temperature float64, maxTokens int) *ChatModel {
	return &ChatModel{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (m *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:       m.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}

	var resp chatResponse
	if err := m.client.PostJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("failed to complete prompt: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyAnswer
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
