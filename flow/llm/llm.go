// Package llm is a provider-agnostic chat surface for calling language
// models from workflows.
//
// Messages and replies are plain JSON-serializable values, so a chat call
// wrapped in an activity memoizes like any other step: a workflow replayed
// after a crash reuses the recorded reply instead of paying for the call
// again. See ChatActivity.
//
// Adapters for Anthropic, OpenAI, and Google live in subpackages; Mock is
// for tests.
package llm

import "context"

// Message is one turn of a chat conversation.
type Message struct {
	// Role is who said it: RoleSystem, RoleUser, or RoleAssistant.
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// Chat roles, matching the conventions of the major providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is a model's reply.
type ChatOut struct {
	// Text is the generated reply text.
	Text string `json:"text"`
}

// ChatModel sends a conversation to a language model and returns its reply.
//
// Implementations handle provider authentication, translate Message to the
// provider's wire format, and respect context cancellation.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// System returns a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns an assistant message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
