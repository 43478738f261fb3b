package models

import "time"

// Message is one entry of a conversation. Assistant messages produced by a streamed answer carry the
// ResponseID of the request that produced them, which is how fragments of the same answer find the
// message they belong to.
type Message struct {
	ID         string
	Role       Role
	Content    string
	ResponseID string
	Timestamp  time.Time
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a query typed by the visitor.
	RoleUser Role = "user"
	// RoleAssistant represents an answer, or the apology shown when an answer could not be produced.
	RoleAssistant Role = "assistant"
)

// ErrorMessage is the assistant message shown instead of an answer when a chat request fails.
const ErrorMessage = "Sorry, there was an error generating the response. Please try again."
