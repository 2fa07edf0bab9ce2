// Package openai adapts OpenAI's chat completions API to llm.ChatModel.
package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/flowstate-go/flowstate/flow/llm"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "gpt-4o-mini"

// ChatModel implements llm.ChatModel over the official openai-go client.
// Transient failures (network errors, rate limits, 5xx) are retried with a
// short delay before the error surfaces.
type ChatModel struct {
	modelName  string
	client     completionsClient
	maxRetries int
	retryDelay time.Duration
}

// completionsClient is the SDK seam, for mocking in tests.
type completionsClient interface {
	createCompletion(ctx context.Context, messages []llm.Message) (string, error)
}

// NewChatModel creates an OpenAI-backed chat model. An empty modelName
// selects DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &ChatModel{
		modelName:  modelName,
		client:     &defaultClient{client: &client, model: modelName},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Chat implements llm.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []llm.Message) (llm.ChatOut, error) {
	if ctx.Err() != nil {
		return llm.ChatOut{}, ctx.Err()
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		text, err := m.client.createCompletion(ctx, messages)
		if err == nil {
			return llm.ChatOut{Text: text}, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == m.maxRetries {
			break
		}

		timer := time.NewTimer(m.retryDelay * time.Duration(attempt+1))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return llm.ChatOut{}, ctx.Err()
		}
	}
	return llm.ChatOut{}, lastErr
}

// isTransient reports whether an error is worth retrying.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporar", "rate limit", "429", "500", "502", "503"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

type defaultClient struct {
	client *sdk.Client
	model  string
}

func (c *defaultClient) createCompletion(ctx context.Context, messages []llm.Message) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
	}
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			params.Messages = append(params.Messages, sdk.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, sdk.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, sdk.UserMessage(msg.Content))
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return completion.Choices[0].Message.Content, nil
}
