package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sightwear/sightwear/pkg/provider/llm"
	"github.com/sightwear/sightwear/pkg/provider/llm/mock"
)

func TestConversation_BoundsHistory(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Response: "ok"}
	c := &llm.Conversation{MaxTurns: 2}
	base := llm.Request{SystemPrompt: "be brief"}

	for _, q := range []string{"one", "two", "three"} {
		if _, err := c.Ask(context.Background(), p, base, q); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", c.Len())
	}
	last := p.Requests[len(p.Requests)-1]
	if len(last.Messages) != 5 {
		t.Fatalf("last request carried %d messages, want 4 history + 1 question", len(last.Messages))
	}
	if last.Messages[0].Content != "one" || last.Messages[4].Content != "three" {
		t.Errorf("messages = %+v", last.Messages)
	}
	if last.SystemPrompt != "be brief" {
		t.Errorf("SystemPrompt = %q", last.SystemPrompt)
	}

	c.Reset()
	if c.Len() != 0 {
		t.Error("Reset kept history")
	}
}

func TestConversation_ErrorKeepsHistory(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Err: errors.New("offline")}
	c := &llm.Conversation{}
	if _, err := c.Ask(context.Background(), p, llm.Request{}, "hello"); err == nil {
		t.Fatal("expected error")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after failure, want 0", c.Len())
	}
}
