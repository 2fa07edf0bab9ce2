// Package google adapts Google's Gemini API to llm.ChatModel.
package google

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/flowstate-go/flowstate/flow/llm"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "gemini-1.5-flash"

// ChatModel implements llm.ChatModel over the official generative-ai-go
// client. Gemini takes the system prompt as a model-level instruction and
// the conversation as alternating user/model turns.
type ChatModel struct {
	modelName string
	client    contentClient
	closer    func() error
}

// contentClient is the SDK seam, for mocking in tests.
type contentClient interface {
	generateContent(ctx context.Context, system string, messages []llm.Message) (string, error)
}

// NewChatModel creates a Gemini-backed chat model. An empty modelName
// selects DefaultModel. Close the model when done; it holds a gRPC
// connection.
func NewChatModel(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return &ChatModel{
		modelName: modelName,
		client:    &defaultClient{client: client, model: modelName},
		closer:    client.Close,
	}, nil
}

// Chat implements llm.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []llm.Message) (llm.ChatOut, error) {
	if ctx.Err() != nil {
		return llm.ChatOut{}, ctx.Err()
	}

	var system []string
	var conversation []llm.Message
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		conversation = append(conversation, msg)
	}

	text, err := m.client.generateContent(ctx, strings.Join(system, "\n\n"), conversation)
	if err != nil {
		return llm.ChatOut{}, err
	}
	return llm.ChatOut{Text: text}, nil
}

// Close releases the underlying client connection.
func (m *ChatModel) Close() error {
	if m.closer != nil {
		return m.closer()
	}
	return nil
}

type defaultClient struct {
	client *genai.Client
	model  string
}

func (c *defaultClient) generateContent(ctx context.Context, system string, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("google: at least one message is required")
	}

	model := c.client.GenerativeModel(c.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	// Gemini separates prior turns from the message being sent: everything
	// but the last message becomes chat history.
	session := model.StartChat()
	for _, msg := range messages[:len(messages)-1] {
		role := "user"
		if msg.Role == llm.RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(messages[len(messages)-1].Content))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}
