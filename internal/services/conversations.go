package services

import (
	"errors"
	"sync"
	"time"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/models"
	"github.com/MegaGrindStone/data-analyzer-ui/internal/stream"
)

// ErrRequestInFlight is returned by Begin while the session is still waiting for a previous answer.
var ErrRequestInFlight = errors.New("a chat request is already in flight")

// Conversations keeps each session's conversation and chat request state in memory. A conversation lasts
// until the visitor clears it or loads the chat view again; nothing is persisted. A session only has an
// entry while it has messages or a request, so idle sessions cost nothing.
type Conversations struct {
	mu       sync.Mutex
	sessions map[string]*conversation
}

type conversation struct {
	messages models.Conversation
	state    stream.State
}

// NewConversations creates an empty Conversations.
func NewConversations() *Conversations {
	return &Conversations{
		sessions: make(map[string]*conversation),
	}
}

func (c *Conversations) session(sessionID string) *conversation {
	s, ok := c.sessions[sessionID]
	if !ok {
		s = &conversation{state: stream.Idle}
		c.sessions[sessionID] = s
	}
	return s
}

// Conversation returns the messages and the request state of sessionID.
func (c *Conversations) Conversation(sessionID string) (models.Conversation, stream.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, stream.Idle
	}
	return s.messages, s.state
}

// Open returns the conversation a freshly loaded chat view starts with. Without a request in flight the
// conversation is dropped and Open returns it empty and Idle. With a request in flight the messages are
// kept, so the question and the partial answer stay on screen while the answer streams in.
func (c *Conversations) Open(sessionID string) (models.Conversation, stream.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, stream.Idle
	}
	if !s.state.InFlight() {
		delete(c.sessions, sessionID)
		return nil, stream.Idle
	}
	return s.messages, s.state
}

// Begin appends the user's query and moves the session to Sending. It fails with ErrRequestInFlight if
// the previous request has not finished.
func (c *Conversations) Begin(sessionID, messageID, query string, now time.Time) (models.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session(sessionID)
	if s.state.InFlight() {
		return s.messages, ErrRequestInFlight
	}
	if s.state.Terminal() {
		s.state = stream.Idle
	}

	state, err := s.state.Transition(stream.Sending)
	if err != nil {
		return s.messages, err
	}
	s.state = state
	s.messages = s.messages.AppendUser(messageID, query, now)
	return s.messages, nil
}

// Transition moves the request state of sessionID to the given state.
func (c *Conversations) Transition(sessionID string, to stream.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session(sessionID)
	state, err := s.state.Transition(to)
	if err != nil {
		return err
	}
	s.state = state
	return nil
}

// Update replaces the messages of sessionID with fn applied to them and returns the result.
func (c *Conversations) Update(sessionID string, fn func(models.Conversation) models.Conversation) models.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session(sessionID)
	s.messages = fn(s.messages)
	return s.messages
}

// Clear empties the conversation of sessionID. The request state is left as it is, so an answer still
// streaming starts a new assistant message in the cleared conversation.
func (c *Conversations) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[sessionID]
	if !ok {
		return
	}
	if !s.state.InFlight() {
		delete(c.sessions, sessionID)
		return
	}
	s.messages = s.messages.Clear()
}
