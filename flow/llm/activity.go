package llm

import (
	"context"

	"github.com/flowstate-go/flowstate/flow"
)

// ChatActivity promotes a chat model into a workflow activity. The reply to
// a given conversation is memoized per step ordinal, so replaying a
// workflow never repeats a model call that already produced a durable
// reply.
//
//	draft := llm.ChatActivity("draft", model)
//
//	write := flow.NewNamedWorkflow("write", func(ctx context.Context, topic string) (string, error) {
//	    out, err := draft.Call(ctx, []llm.Message{llm.User("Write about " + topic)})
//	    if err != nil {
//	        return "", err
//	    }
//	    return out.Text, nil
//	})
func ChatActivity(name string, m ChatModel) *flow.Activity[[]Message, ChatOut] {
	return flow.NewNamedActivity(name, func(ctx context.Context, messages []Message) (ChatOut, error) {
		return m.Chat(ctx, messages)
	})
}
