// Package anthropic adapts Anthropic's Claude API to llm.ChatModel.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowstate-go/flowstate/flow/llm"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "claude-3-5-sonnet-20241022"

// defaultMaxTokens caps completions; Anthropic requires an explicit limit.
const defaultMaxTokens = 4096

// ChatModel implements llm.ChatModel over the official anthropic-sdk-go
// client. Anthropic takes the system prompt as a separate request field, so
// system messages are extracted from the conversation before the call.
type ChatModel struct {
	modelName string
	client    messagesClient
}

// messagesClient is the SDK seam, for mocking in tests.
type messagesClient interface {
	createMessage(ctx context.Context, system string, messages []llm.Message) (string, error)
}

// NewChatModel creates a Claude-backed chat model. An empty modelName
// selects DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &ChatModel{
		modelName: modelName,
		client:    &defaultClient{client: &client, model: modelName},
	}
}

// Chat implements llm.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []llm.Message) (llm.ChatOut, error) {
	if ctx.Err() != nil {
		return llm.ChatOut{}, ctx.Err()
	}
	system, conversation := splitSystem(messages)
	text, err := m.client.createMessage(ctx, system, conversation)
	if err != nil {
		return llm.ChatOut{}, err
	}
	return llm.ChatOut{Text: text}, nil
}

// splitSystem pulls system messages out of the conversation, concatenating
// them into the single system prompt Anthropic expects.
func splitSystem(messages []llm.Message) (string, []llm.Message) {
	var system []string
	var conversation []llm.Message
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		conversation = append(conversation, msg)
	}
	return strings.Join(system, "\n\n"), conversation
}

type defaultClient struct {
	client *sdk.Client
	model  string
}

func (c *defaultClient) createMessage(ctx context.Context, system string, messages []llm.Message) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: defaultMaxTokens,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	for _, msg := range messages {
		block := sdk.NewTextBlock(msg.Content)
		if msg.Role == llm.RoleAssistant {
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, sdk.NewUserMessage(block))
		}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}
