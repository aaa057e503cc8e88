package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
)

type ButtonKind int

const (
	ButtonCallback ButtonKind = iota
	ButtonURL
)

type Button struct {
	Text string
	Kind ButtonKind
	// Data is the encoded callback for callback buttons and the target for URL buttons.
	Data string
}

type Keyboard [][]Button

type Message struct {
	Body     string
	Keyboard Keyboard
}

type InlineResult struct {
	ID          string
	Title       string
	Description string
	Message     Message
}

type Transport interface {
	SendMessage(ctx context.Context, chatID string, msg Message) (entities.MessageHandle, error)
	EditMessage(ctx context.Context, handle entities.MessageHandle, msg Message) error
	DeleteMessage(ctx context.Context, chatID string, messageID string) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	AnswerInlineQuery(ctx context.Context, queryID string, results []InlineResult) error
	// OpenPrivateChat returns the chat used to address a user privately.
	OpenPrivateChat(ctx context.Context, userID string) (string, error)
	// MessageLimit is the longest body the platform accepts.
	MessageLimit() int
	// MaxRows is the most keyboard rows a message shows, zero for no bound.
	MaxRows() int
}

type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindRetryAfter
	KindNotModified
	KindAuthorRequired
	KindMessageInvalid
	KindMessageNotFound
	KindChatNotFound
	KindCantAccessChat
	KindUnauthorized
	KindNetwork
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRetryAfter:
		return "retry-after"
	case KindNotModified:
		return "message-not-modified"
	case KindAuthorRequired:
		return "message-author-required"
	case KindMessageInvalid:
		return "message-invalid"
	case KindMessageNotFound:
		return "message-to-edit-not-found"
	case KindChatNotFound:
		return "chat-not-found"
	case KindCantAccessChat:
		return "cant-access-chat"
	case KindUnauthorized:
		return "unauthorised"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsInvalidMessage groups the kinds that mean the addressed message is gone
// or unreachable.
func (k ErrorKind) IsInvalidMessage() bool {
	switch k {
	case KindMessageInvalid, KindMessageNotFound, KindChatNotFound, KindCantAccessChat:
		return true
	}
	return false
}

// TransportError is the only error shape transports return.
type TransportError struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	if e.Kind == KindRetryAfter {
		return fmt.Sprintf("transport: %s %s: %v", e.Kind, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func NewTransportError(kind ErrorKind, err error) *TransportError {
	return &TransportError{Kind: kind, Err: err}
}

func RetryAfter(d time.Duration, err error) *TransportError {
	return &TransportError{Kind: KindRetryAfter, RetryAfter: d, Err: err}
}

// KindOf classifies any error returned by a transport. Errors that did not go
// through a transport classifier count as network failures, except for
// context deadlines and net timeouts.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// RetryAfterOf returns the wait requested by a retry-after error.
func RetryAfterOf(err error) time.Duration {
	var te *TransportError
	if errors.As(err, &te) && te.Kind == KindRetryAfter {
		return te.RetryAfter
	}
	return 0
}

// BanCache remembers users that exceeded their daily vote cap.
type BanCache interface {
	IsBanned(ctx context.Context, userID string, day string) (bool, error)
	Ban(ctx context.Context, userID string, day string) error
}
