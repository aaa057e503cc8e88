package discordtransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/render"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	sent      []*discordgo.MessageSend
	edits     []*discordgo.MessageEdit
	deleted   []string
	responses []*discordgo.InteractionResponse
	err       error
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, data)
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ID: "m1", ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.edits = append(f.edits, m)
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel}, f.err
}

func (f *fakeSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	f.deleted = append(f.deleted, channelID+"/"+messageID)
	return f.err
}

func (f *fakeSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	f.responses = append(f.responses, resp)
	return f.err
}

func (f *fakeSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func restError(status int, code int) *discordgo.RESTError {
	return &discordgo.RESTError{
		Response:     &http.Response{StatusCode: status, Status: http.StatusText(status), Header: http.Header{}},
		ResponseBody: []byte(fmt.Sprintf(`{"code":%d}`, code)),
		Message:      &discordgo.APIErrorMessage{Code: code},
	}
}

func TestSendEditDelete(t *testing.T) {
	session := &fakeSession{}
	transport := New(session, nil)
	ctx := context.Background()
	msg := services.Message{Body: "**Lunch?**", Keyboard: services.Keyboard{{{Text: "A", Data: "0:1:0"}}}}

	handle, err := transport.SendMessage(ctx, "c1", msg)
	require.NoError(t, err)
	assert.Equal(t, entities.MessageHandle{ChatID: "c1", MessageID: "m1"}, handle)
	require.Len(t, session.sent, 1)
	assert.Equal(t, "**Lunch?**", session.sent[0].Content)
	assert.Len(t, session.sent[0].Components, 1)

	require.NoError(t, transport.EditMessage(ctx, handle.Inline(), services.Message{Body: "deleted"}))
	require.Len(t, session.edits, 1)
	edit := session.edits[0]
	assert.Equal(t, "c1", edit.Channel)
	assert.Equal(t, "m1", edit.ID)
	assert.Equal(t, "deleted", *edit.Content)
	assert.NotNil(t, edit.Components)
	assert.Empty(t, *edit.Components, "an empty keyboard removes the buttons")

	require.NoError(t, transport.DeleteMessage(ctx, "c1", "m1"))
	assert.Equal(t, []string{"c1/m1"}, session.deleted)
}

func TestAnswerCallback(t *testing.T) {
	session := &fakeSession{}
	transport := New(session, nil)
	ctx := context.Background()

	id := transport.Track(&discordgo.Interaction{ID: "i1"})
	require.NoError(t, transport.AnswerCallback(ctx, id, "Vote registered"))
	require.Len(t, session.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, session.responses[0].Type)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, session.responses[0].Data.Flags)

	err := transport.AnswerCallback(ctx, id, "again")
	assert.Equal(t, services.KindMessageInvalid, services.KindOf(err), "an interaction is answered once")

	id = transport.Track(&discordgo.Interaction{ID: "i2"})
	require.NoError(t, transport.AnswerCallback(ctx, id, ""))
	assert.Equal(t, discordgo.InteractionResponseDeferredMessageUpdate, session.responses[1].Type)
}

func TestAnswerInlineQuery(t *testing.T) {
	session := &fakeSession{}
	transport := New(session, nil)
	ctx := context.Background()

	id := transport.Track(&discordgo.Interaction{ID: "q1"})
	results := []services.InlineResult{
		{ID: "5:1:0", Title: "Lunch?", Description: "Single vote"},
		{ID: "5:2:0", Title: "Dinner?"},
	}
	require.NoError(t, transport.AnswerInlineQuery(ctx, id, results))

	require.Len(t, session.responses, 1)
	data := session.responses[0].Data
	assert.Equal(t, "**Lunch?** Single vote\n**Dinner?**\n", data.Content)
	assert.Len(t, data.Components, 2)

	id = transport.Track(&discordgo.Interaction{ID: "q2"})
	require.NoError(t, transport.AnswerInlineQuery(ctx, id, nil))
	assert.Equal(t, "No matching polls found.", session.responses[1].Data.Content)
}

func TestOpenPrivateChat(t *testing.T) {
	transport := New(&fakeSession{}, nil)
	channel, err := transport.OpenPrivateChat(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "dm-u1", channel)

	transport = New(&fakeSession{err: restError(http.StatusForbidden, discordgo.ErrCodeCannotSendMessagesToThisUser)}, nil)
	_, err = transport.OpenPrivateChat(context.Background(), "u1")
	assert.Equal(t, services.KindCantAccessChat, services.KindOf(err))
}

func TestComponents(t *testing.T) {
	var wide []services.Button
	for i := 0; i < 7; i++ {
		wide = append(wide, services.Button{Text: fmt.Sprint(i), Data: fmt.Sprintf("0:%d:0", i)})
	}
	keyboard := services.Keyboard{
		wide,
		{{Text: "Share", Kind: services.ButtonURL, Data: "https://example.com"}},
	}

	components := Components(keyboard)
	require.Len(t, components, 3)
	assert.Len(t, components[0].(discordgo.ActionsRow).Components, 5)
	assert.Len(t, components[1].(discordgo.ActionsRow).Components, 2)

	share := components[2].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, discordgo.LinkButton, share.Style)
	assert.Equal(t, "https://example.com", share.URL)
	assert.Empty(t, share.CustomID)

	var tall services.Keyboard
	for i := 0; i < 8; i++ {
		tall = append(tall, []services.Button{{Text: "x", Data: fmt.Sprint(i)}})
	}
	assert.Len(t, Components(tall), 5)
	assert.Empty(t, Components(nil))
}

func TestComponents_AdminKeyboardKeepsOwnerActions(t *testing.T) {
	poll := entities.NewPoll("Lunch?", []string{"A", "B", "C", "D", "E"}, "owner")
	poll.ID = 1
	for i := range poll.Options {
		poll.Options[i].ID = int64(i + 1)
		poll.Options[i].PollID = poll.ID
	}
	ctx := render.Context{
		Now:     time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC),
		Limits:  render.LimitsFor(MessageLimit),
		Kind:    entities.ReferenceAdmin,
		MaxRows: New(&fakeSession{}, nil).MaxRows(),
	}

	components := Components(render.Render(poll, nil, ctx).Message.Keyboard)

	var ids []string
	for _, row := range components {
		for _, c := range row.(discordgo.ActionsRow).Components {
			ids = append(ids, c.(discordgo.Button).CustomID)
		}
	}
	for _, option := range poll.Options {
		assert.Contains(t, ids, entities.Callback{Type: entities.CallbackVote, Payload: option.ID, Action: entities.ActionVote}.Encode())
	}
	assert.Contains(t, ids, entities.Callback{Type: entities.CallbackClose, Payload: poll.ID}.Encode())
	assert.Contains(t, ids, entities.Callback{Type: entities.CallbackDelete, Payload: poll.ID}.Encode())
}

func TestClassify(t *testing.T) {
	tooMany := restError(http.StatusTooManyRequests, 0)
	tooMany.Response.Header.Set("Retry-After", "2.5")

	tests := []struct {
		name string
		err  error
		kind services.ErrorKind
	}{
		{"nil", nil, services.KindNone},
		{"unknown message", restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage), services.KindMessageNotFound},
		{"unknown channel", restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel), services.KindChatNotFound},
		{"missing access", restError(http.StatusForbidden, discordgo.ErrCodeMissingAccess), services.KindCantAccessChat},
		{"another author", restError(http.StatusForbidden, discordgo.ErrCodeCannotEditFromAnotherUser), services.KindAuthorRequired},
		{"invalid body", restError(http.StatusBadRequest, discordgo.ErrCodeInvalidFormBody), services.KindMessageInvalid},
		{"unauthorized", restError(http.StatusUnauthorized, 0), services.KindUnauthorized},
		{"too many requests", tooMany, services.KindRetryAfter},
		{"server error", restError(http.StatusBadGateway, 0), services.KindNetwork},
		{"timeout", fmt.Errorf("edit: %w", context.DeadlineExceeded), services.KindTimeout},
		{"other", errors.New("websocket closed"), services.KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, services.KindOf(Classify(tt.err)))
		})
	}

	assert.Equal(t, 2500*time.Millisecond, services.RetryAfterOf(Classify(tooMany)))

	limited := &discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{
		TooManyRequests: &discordgo.TooManyRequests{RetryAfter: 4 * time.Second},
	}}
	assert.Equal(t, 4*time.Second, services.RetryAfterOf(Classify(limited)))
}
