package entities

import (
	"strings"
	"time"
)

type ReferenceKind string

const (
	ReferenceAdmin       ReferenceKind = "admin"
	ReferencePrivateVote ReferenceKind = "private_vote"
	ReferenceInline      ReferenceKind = "inline"
)

// MessageHandle addresses one outbound message. Admin and private-vote
// messages use ChatID and MessageID, inline messages only InlineID.
type MessageHandle struct {
	ChatID    string
	MessageID string
	InlineID  string
}

const inlineSeparator = "/"

// Key is unique per addressed message.
func (h MessageHandle) Key() string {
	if h.InlineID != "" {
		return "inline:" + h.InlineID
	}
	return "chat:" + h.ChatID + inlineSeparator + h.MessageID
}

func (h MessageHandle) IsZero() bool {
	return h.InlineID == "" && h.ChatID == "" && h.MessageID == ""
}

// Inline turns a chat addressed handle into an opaque inline handle.
func (h MessageHandle) Inline() MessageHandle {
	if h.InlineID != "" {
		return h
	}
	return MessageHandle{InlineID: h.ChatID + inlineSeparator + h.MessageID}
}

// Resolve returns the chat and message a handle points to. Inline handles
// minted by Inline resolve back to their chat coordinates.
func (h MessageHandle) Resolve() (chatID string, messageID string, ok bool) {
	if h.InlineID == "" {
		return h.ChatID, h.MessageID, h.ChatID != "" && h.MessageID != ""
	}
	chatID, messageID, found := strings.Cut(h.InlineID, inlineSeparator)
	return chatID, messageID, found && chatID != "" && messageID != ""
}

// Reference is a mirror: a message that renders a poll.
type Reference struct {
	ID           int64
	PollID       int64
	Kind         ReferenceKind
	Handle       MessageHandle
	UserID       string
	Failures     int
	RenderedHash string
	CreatedAt    time.Time
}

func NewReference(pollID int64, kind ReferenceKind, handle MessageHandle, userID string) Reference {
	if kind == ReferenceInline {
		handle = handle.Inline()
		userID = ""
	}
	return Reference{
		PollID:    pollID,
		Kind:      kind,
		Handle:    handle,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}
