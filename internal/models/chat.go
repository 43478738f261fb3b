package models

import (
	"slices"
	"time"
)

// Conversation is the ordered list of messages shown in the chat view. Its methods never modify the
// receiver; each returns the updated conversation, so a conversation can be shared with a renderer while
// the next fragment is being applied.
type Conversation []Message

// AppendUser returns c with a user message appended.
func (c Conversation) AppendUser(id, content string, now time.Time) Conversation {
	return append(slices.Clone(c), Message{
		ID:        id,
		Role:      RoleUser,
		Content:   content,
		Timestamp: now,
	})
}

// ApplyFragment folds the accumulated text of an in-flight answer into c. If the last message is the
// assistant message of responseID its content is replaced by accumulated; otherwise a new assistant
// message seeded with accumulated is appended. Applying every prefix of an answer in order therefore
// leaves exactly one assistant message holding the whole answer.
func (c Conversation) ApplyFragment(responseID, accumulated string, now time.Time) Conversation {
	out := slices.Clone(c)
	if n := len(out); n > 0 && out[n-1].Role == RoleAssistant && out[n-1].ResponseID == responseID {
		out[n-1].Content = accumulated
		return out
	}
	return append(out, Message{
		ID:         responseID,
		Role:       RoleAssistant,
		Content:    accumulated,
		ResponseID: responseID,
		Timestamp:  now,
	})
}

// AppendError returns c with ErrorMessage appended as an assistant message.
func (c Conversation) AppendError(id string, now time.Time) Conversation {
	return append(slices.Clone(c), Message{
		ID:        id,
		Role:      RoleAssistant,
		Content:   ErrorMessage,
		Timestamp: now,
	})
}

// Clear returns an empty conversation.
func (c Conversation) Clear() Conversation {
	return Conversation{}
}

// Last returns the last message, if any.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}

// Response returns the assistant message holding the answer of responseID.
func (c Conversation) Response(responseID string) (Message, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == RoleAssistant && c[i].ResponseID == responseID {
			return c[i], true
		}
	}
	return Message{}, false
}
