package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/services"
)

type Edit struct {
	Handle  entities.MessageHandle
	Message services.Message
	At      time.Time
}

type Sent struct {
	ChatID  string
	Handle  entities.MessageHandle
	Message services.Message
}

// FakeTransport records every call and fails the ones scripted with
// FailEdits and FailSends, in order.
type FakeTransport struct {
	Clock *Clock
	Limit int
	// Rows bounds keyboards like MaxRows, zero leaves them unbounded.
	Rows int

	mu         sync.Mutex
	nextID     int
	sent       []Sent
	edits      []Edit
	attempts   map[string]int
	deleted    []entities.MessageHandle
	callbacks  map[string]string
	inline     map[string][]services.InlineResult
	editErrors map[string][]error
	sendErrors map[string][]error
}

var _ services.Transport = (*FakeTransport)(nil)

func NewFakeTransport(clock *Clock) *FakeTransport {
	return &FakeTransport{
		Clock:      clock,
		Limit:      4000,
		attempts:   map[string]int{},
		callbacks:  map[string]string{},
		inline:     map[string][]services.InlineResult{},
		editErrors: map[string][]error{},
		sendErrors: map[string][]error{},
	}
}

// FailEdits makes the next len(errs) edits of handle fail with errs.
func (f *FakeTransport) FailEdits(handle entities.MessageHandle, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editErrors[handle.Key()] = append(f.editErrors[handle.Key()], errs...)
}

// FailSends makes the next len(errs) messages sent to chatID fail with errs.
func (f *FakeTransport) FailSends(chatID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErrors[chatID] = append(f.sendErrors[chatID], errs...)
}

func (f *FakeTransport) now() time.Time {
	if f.Clock == nil {
		return time.Now().UTC()
	}
	return f.Clock.Now()
}

func (f *FakeTransport) SendMessage(ctx context.Context, chatID string, msg services.Message) (entities.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if errs := f.sendErrors[chatID]; len(errs) > 0 {
		f.sendErrors[chatID] = errs[1:]
		return entities.MessageHandle{}, errs[0]
	}

	f.nextID++
	handle := entities.MessageHandle{ChatID: chatID, MessageID: fmt.Sprint(f.nextID)}
	f.sent = append(f.sent, Sent{ChatID: chatID, Handle: handle, Message: msg})
	return handle, nil
}

func (f *FakeTransport) EditMessage(ctx context.Context, handle entities.MessageHandle, msg services.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := handle.Key()
	f.attempts[key]++
	if errs := f.editErrors[key]; len(errs) > 0 {
		f.editErrors[key] = errs[1:]
		return errs[0]
	}

	f.edits = append(f.edits, Edit{Handle: handle, Message: msg, At: f.now()})
	return nil
}

func (f *FakeTransport) DeleteMessage(ctx context.Context, chatID string, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, entities.MessageHandle{ChatID: chatID, MessageID: messageID})
	return nil
}

func (f *FakeTransport) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[callbackID] = text
	return nil
}

func (f *FakeTransport) AnswerInlineQuery(ctx context.Context, queryID string, results []services.InlineResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inline[queryID] = results
	return nil
}

func (f *FakeTransport) OpenPrivateChat(ctx context.Context, userID string) (string, error) {
	return "dm-" + userID, nil
}

func (f *FakeTransport) MessageLimit() int {
	return f.Limit
}

func (f *FakeTransport) MaxRows() int {
	return f.Rows
}

// Edits returns the successful edits in call order.
func (f *FakeTransport) Edits() []Edit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Edit(nil), f.edits...)
}

func (f *FakeTransport) EditsFor(handle entities.MessageHandle) []Edit {
	f.mu.Lock()
	defer f.mu.Unlock()

	var edits []Edit
	for _, e := range f.edits {
		if e.Handle.Key() == handle.Key() {
			edits = append(edits, e)
		}
	}
	return edits
}

// LastEdit is the message a handle currently shows, as far as edits go.
func (f *FakeTransport) LastEdit(handle entities.MessageHandle) (services.Message, bool) {
	edits := f.EditsFor(handle)
	if len(edits) == 0 {
		return services.Message{}, false
	}
	return edits[len(edits)-1].Message, true
}

// Attempts counts edit calls on handle, failed ones included.
func (f *FakeTransport) Attempts(handle entities.MessageHandle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[handle.Key()]
}

func (f *FakeTransport) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

func (f *FakeTransport) Deleted() []entities.MessageHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.MessageHandle(nil), f.deleted...)
}

func (f *FakeTransport) CallbackAnswer(callbackID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.callbacks[callbackID]
	return text, ok
}

func (f *FakeTransport) InlineAnswer(queryID string) ([]services.InlineResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results, ok := f.inline[queryID]
	return results, ok
}

// Clock is a manually advanced services.Clock. Sleep advances it instead of
// blocking.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

var _ services.Clock = (*Clock)(nil)

func NewClock() *Clock {
	return &Clock{now: Epoch}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
