package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/models"
	"github.com/MegaGrindStone/data-analyzer-ui/internal/stream"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

type message struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
}

type chatPageData struct {
	pageData
	Messages []message
	Loading  bool
}

func newMessage(msg models.Message) message {
	return message{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
}

// HandleChat renders the chat view. Every load starts a new conversation, except while an answer is still
// being produced: then the question and the answer so far are shown, and the input stays disabled.
func (m Main) HandleChat(w http.ResponseWriter, r *http.Request) {
	file, ok := m.currentFile(w, r)
	if !ok {
		return
	}

	conv, state := m.conversations.Open(sessionIDFromContext(r.Context()))
	msgs := make([]message, len(conv))
	for i := range conv {
		msgs[i] = newMessage(conv[i])
	}

	m.render(w, http.StatusOK, "chat.html", chatPageData{
		pageData: newPageData(r, "Chat", file),
		Messages: msgs,
		Loading:  state.InFlight(),
	})
}

// HandleChatSubmit processes a question sent through the "message" form field. It appends the question
// to the conversation and streams the answer in the background; the answer reaches the browser through
// the session's SSE topic.
//
// The handler returns 400 for an empty question and 409 while the previous answer is still in flight.
// Requests sent by the page script get the rendered user message and loading indicator, plain form posts
// are redirected back to the chat view. The stream starts only after this response has been flushed, so
// no part of the answer can reach the browser before its question.
func (m Main) HandleChatSubmit(w http.ResponseWriter, r *http.Request) {
	if _, ok := m.currentFile(w, r); !ok {
		return
	}

	query := strings.TrimSpace(r.FormValue("message"))
	if query == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	sessionID := sessionIDFromContext(r.Context())
	userMsgID := uuid.New().String()

	conv, err := m.conversations.Begin(sessionID, userMsgID, query, time.Now())
	if err != nil {
		m.logger.Warn("Chat request rejected",
			slog.String("sessionID", sessionID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, "A response is still being generated", http.StatusConflict)
		return
	}

	if isHXRequest(r) {
		um, _ := conv.Last()
		m.writeSubmitted(w, um)
	} else {
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
	}
	if err := http.NewResponseController(w).Flush(); err != nil {
		m.logger.Warn("Failed to flush chat submit response", slog.String(errLoggerKey, err.Error()))
	}

	go m.respond(sessionID, uuid.New().String(), query)
}

func (m Main) writeSubmitted(w http.ResponseWriter, um models.Message) {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "user_message", newMessage(um)); err != nil {
		m.logger.Error("Failed to render user message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.templates.ExecuteTemplate(&sb, "loading", nil); err != nil {
		m.logger.Error("Failed to render loading indicator", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(sb.String()))
}

// HandleChatClear empties the session's conversation. An answer still streaming continues in a new
// assistant message.
func (m Main) HandleChatClear(w http.ResponseWriter, r *http.Request) {
	m.conversations.Clear(sessionIDFromContext(r.Context()))

	if isHXRequest(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

// respond streams the answer to query into the conversation of sessionID. Every fragment replaces the
// content of the answer's assistant message, which is then published to the browser.
//
// A request that fails before the body arrives leaves a single error message. A stream that breaks off
// keeps the text received so far and appends the error message after it.
func (m Main) respond(sessionID, responseID, query string) {
	// Ensure the browser re-enables the input on function exit
	defer m.publishClose(sessionID)

	logger := m.logger.With(
		slog.String("sessionID", sessionID),
		slog.String("responseID", responseID))

	body, err := m.backend.GenerateResponse(m.ctx, query)
	if err != nil {
		logger.Error("Failed to generate response", slog.String(errLoggerKey, err.Error()))
		m.fail(sessionID, logger)
		return
	}
	defer body.Close()

	if err := m.conversations.Transition(sessionID, stream.Streaming); err != nil {
		logger.Error("Failed to start streaming", slog.String(errLoggerKey, err.Error()))
		m.fail(sessionID, logger)
		return
	}

	var acc stream.Accumulator
	for fragment, err := range stream.Read(body, m.streamOpts...) {
		if err != nil {
			logger.Error("Error reading response", slog.String(errLoggerKey, err.Error()))
			m.fail(sessionID, logger)
			return
		}

		text := acc.Add(fragment)
		now := time.Now()
		conv := m.conversations.Update(sessionID, func(c models.Conversation) models.Conversation {
			return c.ApplyFragment(responseID, text, now)
		})

		msg, ok := conv.Response(responseID)
		if !ok {
			continue
		}
		if err := m.publishMessage(sessionID, msg); err != nil {
			logger.Warn("Failed to publish message", slog.String(errLoggerKey, err.Error()))
		}
	}

	logger.Debug("Response completed", slog.Int("length", len(acc.String())))
	if err := m.conversations.Transition(sessionID, stream.Completed); err != nil {
		logger.Error("Failed to complete response", slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) fail(sessionID string, logger *slog.Logger) {
	conv := m.conversations.Update(sessionID, func(c models.Conversation) models.Conversation {
		return c.AppendError(uuid.New().String(), time.Now())
	})
	if msg, ok := conv.Last(); ok {
		if err := m.publishMessage(sessionID, msg); err != nil {
			logger.Warn("Failed to publish error message", slog.String(errLoggerKey, err.Error()))
		}
	}

	if err := m.conversations.Transition(sessionID, stream.Failed); err != nil {
		logger.Error("Failed to mark response as failed", slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) publishMessage(sessionID string, msg models.Message) error {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "ai_message", newMessage(msg)); err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}

	e := sse.Message{
		Type: messagesSSEType,
	}
	e.AppendData(sb.String())
	if err := m.sseSrv.Publish(&e, sessionTopic(sessionID)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (m Main) publishClose(sessionID string) {
	e := &sse.Message{Type: closeMessageSSEType}
	e.AppendData("bye")
	_ = m.sseSrv.Publish(e, sessionTopic(sessionID))
}
