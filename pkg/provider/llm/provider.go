// Package llm defines the chat model boundary used by the conversational
// assistant mode. Answers are spoken aloud, so providers are asked for short,
// plain-text replies and nothing is streamed.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Request is one completion call.
type Request struct {
	// SystemPrompt, when set, is sent before Messages.
	SystemPrompt string
	Messages     []Message
	// Temperature is omitted when zero.
	Temperature float64
	// MaxTokens is omitted when zero.
	MaxTokens int
}

// Provider completes a conversation.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Conversation keeps a bounded history of user/assistant exchanges.
// It is not safe for concurrent use.
type Conversation struct {
	// MaxTurns bounds the retained exchanges; zero keeps 10.
	MaxTurns int
	history  []Message
}

// Ask appends question, completes it with p and records the answer.
func (c *Conversation) Ask(ctx context.Context, p Provider, base Request, question string) (string, error) {
	req := base
	req.Messages = append(append(append([]Message(nil), base.Messages...), c.history...),
		Message{Role: RoleUser, Content: question})
	answer, err := p.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	c.history = append(c.history,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: answer})
	limit := c.MaxTurns
	if limit <= 0 {
		limit = 10
	}
	if over := len(c.history) - 2*limit; over > 0 {
		c.history = c.history[over:]
	}
	return answer, nil
}

// Len returns the number of retained messages.
func (c *Conversation) Len() int { return len(c.history) }

// Reset forgets the history.
func (c *Conversation) Reset() { c.history = nil }
