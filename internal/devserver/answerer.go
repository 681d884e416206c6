package devserver

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Exchange is one prior turn handed to the answerer.
type Exchange struct {
	Role    string
	Content string
}

// Answerer produces an answer for a query scoped to one document.
type Answerer interface {
	Answer(ctx context.Context, query string, history []Exchange, label string) (string, error)
}

const systemPrompt = "You are a document assistant. Answer strictly from the " +
	"ingested document %q. Keep answers short and factual."

// ModelAnswerer generates answers through an eino chat model.
type ModelAnswerer struct {
	chatModel model.ChatModel
}

// NewModelAnswerer wraps a configured chat model.
func NewModelAnswerer(chatModel model.ChatModel) *ModelAnswerer {
	return &ModelAnswerer{chatModel: chatModel}
}

func (a *ModelAnswerer) Answer(ctx context.Context, query string, history []Exchange, label string) (string, error) {
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, &schema.Message{
		Role:    schema.System,
		Content: fmt.Sprintf(systemPrompt, label),
	})
	for _, turn := range history {
		role := schema.User
		if turn.Role == "assistant" {
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, &schema.Message{Role: schema.User, Content: query})

	reply, err := a.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("model generation failed: %w", err)
	}
	return reply.Content, nil
}

// StaticAnswerer is the credential-free fallback. Deterministic output
// keeps client flows testable without a model.
type StaticAnswerer struct{}

func (StaticAnswerer) Answer(_ context.Context, query string, history []Exchange, label string) (string, error) {
	return fmt.Sprintf("Based on '%s' (after %d prior turns): no model is configured, echoing your question: %s",
		label, len(history), query), nil
}
