// Package textgen is the text-generation backend: role-tagged messages in, generated text out.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Message roles.
const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

// ErrEmptyCompletion is returned when the backend answers without any content.
var ErrEmptyCompletion = errors.New("empty completion")

// Message is one role-tagged chat message.
type Message struct {
	Role    string
	Content string
}

// Request is a single synchronous generation request.
type Request struct {
	Model    string // overrides the client default when set
	Messages []Message
	JSON     bool // ask the backend for a JSON object response
}

// Generator produces text from a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// OpenAI implements Generator over the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAI creates an OpenAI-backed generator. baseURL may be empty for the public API.
func NewOpenAI(apiKey, baseURL, model string, logger *zap.Logger) *OpenAI {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, logger: logger}
}

// Generate sends the messages and returns the first choice's content.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	chatReq := openai.ChatCompletionRequest{Model: model, Messages: msgs}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	o.logger.Debug("chat completion", zap.String("model", model), zap.Int("total_tokens", resp.Usage.TotalTokens))
	return content, nil
}
