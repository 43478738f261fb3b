package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/models"
	"github.com/MegaGrindStone/data-analyzer-ui/internal/services"
	"github.com/MegaGrindStone/data-analyzer-ui/internal/stream"
)

func TestConversationsBegin(t *testing.T) {
	c := services.NewConversations()
	now := time.Now()

	conv, err := c.Begin("s", "u1", "What is the average age?", now)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if len(conv) != 1 || conv[0].Role != models.RoleUser {
		t.Fatalf("conversation = %+v", conv)
	}

	if _, err := c.Begin("s", "u2", "again", now); !errors.Is(err, services.ErrRequestInFlight) {
		t.Errorf("second Begin() error = %v, want ErrRequestInFlight", err)
	}

	if err := c.Transition("s", stream.Streaming); err != nil {
		t.Fatalf("Transition(Streaming) error = %v", err)
	}
	if _, err := c.Begin("s", "u2", "again", now); !errors.Is(err, services.ErrRequestInFlight) {
		t.Errorf("Begin() while streaming error = %v, want ErrRequestInFlight", err)
	}

	if err := c.Transition("s", stream.Completed); err != nil {
		t.Fatalf("Transition(Completed) error = %v", err)
	}
	conv, err = c.Begin("s", "u2", "again", now)
	if err != nil {
		t.Fatalf("Begin() after completion error = %v", err)
	}
	if len(conv) != 2 {
		t.Errorf("conversation has %d messages, want 2", len(conv))
	}

	if _, state := c.Conversation("s"); state != stream.Sending {
		t.Errorf("state = %v, want %v", state, stream.Sending)
	}
}

func TestConversationsSessionsAreIndependent(t *testing.T) {
	c := services.NewConversations()

	if _, err := c.Begin("a", "u1", "q", time.Now()); err != nil {
		t.Fatalf("Begin(a) error = %v", err)
	}
	if _, err := c.Begin("b", "u1", "q", time.Now()); err != nil {
		t.Errorf("Begin(b) error = %v, want nil", err)
	}

	conv, state := c.Conversation("c")
	if len(conv) != 0 || state != stream.Idle {
		t.Errorf("Conversation(c) = %v, %v, want empty and idle", conv, state)
	}
}

func TestConversationsInvalidTransition(t *testing.T) {
	c := services.NewConversations()

	var transErr *stream.TransitionError
	if err := c.Transition("s", stream.Completed); !errors.As(err, &transErr) {
		t.Errorf("Transition(Completed) from idle error = %v, want *TransitionError", err)
	}
}

func TestConversationsClearDuringStream(t *testing.T) {
	c := services.NewConversations()
	now := time.Now()

	if _, err := c.Begin("s", "u1", "q", now); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	c.Update("s", func(conv models.Conversation) models.Conversation {
		return conv.ApplyFragment("r1", "Partial", now)
	})

	c.Clear("s")
	conv, state := c.Conversation("s")
	if len(conv) != 0 {
		t.Errorf("conversation after Clear() = %+v, want empty", conv)
	}
	if state != stream.Sending {
		t.Errorf("state after Clear() = %v, want it unchanged", state)
	}

	conv = c.Update("s", func(conv models.Conversation) models.Conversation {
		return conv.ApplyFragment("r1", "Partial answer", now)
	})
	if len(conv) != 1 || conv[0].Content != "Partial answer" {
		t.Errorf("conversation after late fragment = %+v", conv)
	}
}

func TestConversationsOpen(t *testing.T) {
	c := services.NewConversations()
	now := time.Now()

	if _, err := c.Begin("s", "u1", "What is the average age?", now); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	conv, state := c.Open("s")
	if len(conv) != 1 || state != stream.Sending {
		t.Errorf("Open() in flight = %+v, %v, want the question and %v", conv, state, stream.Sending)
	}

	if err := c.Transition("s", stream.Streaming); err != nil {
		t.Fatalf("Transition(Streaming) error = %v", err)
	}
	c.Update("s", func(conv models.Conversation) models.Conversation {
		return conv.ApplyFragment("r1", "The average age is 42.", now)
	})
	if err := c.Transition("s", stream.Completed); err != nil {
		t.Fatalf("Transition(Completed) error = %v", err)
	}

	conv, state = c.Open("s")
	if len(conv) != 0 || state != stream.Idle {
		t.Errorf("Open() after completion = %+v, %v, want empty and idle", conv, state)
	}
	if conv, _ := c.Conversation("s"); len(conv) != 0 {
		t.Errorf("Conversation() after Open() = %+v, want empty", conv)
	}

	if _, err := c.Begin("s", "u2", "again", now); err != nil {
		t.Errorf("Begin() after Open() error = %v", err)
	}
}

func TestConversationsClearIdle(t *testing.T) {
	c := services.NewConversations()

	c.Update("s", func(conv models.Conversation) models.Conversation {
		return conv.AppendUser("u1", "hello", time.Now())
	})
	c.Clear("s")
	c.Clear("unknown")

	conv, state := c.Conversation("s")
	if len(conv) != 0 || state != stream.Idle {
		t.Errorf("Conversation() after Clear() = %+v, %v, want empty and idle", conv, state)
	}
}
