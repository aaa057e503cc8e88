package render

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func newPoll(mode entities.VotingMode, options ...string) entities.Poll {
	poll := entities.NewPoll("What for lunch?", options, "owner")
	poll.ID = 7
	poll.UUID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	poll.Mode = mode
	for i := range poll.Options {
		poll.Options[i].ID = int64(100 + i)
		poll.Options[i].PollID = poll.ID
	}
	return poll
}

func newVote(poll entities.Poll, user string, option int) entities.Vote {
	vote := entities.NewVote(user, poll.ID, poll.Options[option].ID)
	vote.UserName = user
	return vote
}

func ctxFor(kind entities.ReferenceKind) Context {
	return Context{Now: now, Limits: LimitsFor(4000), Kind: kind}
}

func TestRender_ShowsVoters(t *testing.T) {
	poll := newPoll(entities.ModeSingle, "Pizza", "Sushi")
	votes := []entities.Vote{newVote(poll, "Alice", 0), newVote(poll, "Bob", 0), newVote(poll, "Carol", 1)}

	out := Render(poll, votes, ctxFor(entities.ReferencePrivateVote))

	assert.Contains(t, out.Message.Body, "*What for lunch?*")
	assert.Contains(t, out.Message.Body, "*:one:* Pizza    `2`")
	assert.Contains(t, out.Message.Body, "Alice Bob")
	assert.Contains(t, out.Message.Body, "67%")
	assert.Contains(t, out.Message.Body, "3 users voted")
	assert.False(t, out.PermanentlySummarize)
}

func TestRender_IsIdempotent(t *testing.T) {
	poll := newPoll(entities.ModeBlock, "Pizza", "Sushi", "Tacos")
	votes := []entities.Vote{newVote(poll, "Alice", 0), newVote(poll, "Bob", 2)}

	assert.Equal(t, Render(poll, votes, ctxFor(entities.ReferenceAdmin)), Render(poll, votes, ctxFor(entities.ReferenceAdmin)))
}

func TestRender_HiddenResultsExposeNoVoterData(t *testing.T) {
	poll := newPoll(entities.ModeSingle, "Pizza", "Sushi")
	poll.ResultsVisible = false
	poll.ShowOptionVotes = true
	votes := []entities.Vote{newVote(poll, "Alice", 0), newVote(poll, "Bob", 0)}

	out := Render(poll, votes, ctxFor(entities.ReferenceInline))

	assert.NotContains(t, out.Message.Body, "Alice")
	assert.NotContains(t, out.Message.Body, "`2`")
	assert.NotContains(t, out.Message.Body, "%")
	assert.Contains(t, out.Message.Body, "Results are hidden until the poll is closed.")
	for _, row := range out.Message.Keyboard {
		for _, button := range row {
			assert.NotContains(t, button.Text, "(2)")
		}
	}

	poll.Close()
	out = Render(poll, votes, ctxFor(entities.ReferenceInline))
	assert.Contains(t, out.Message.Body, "Alice")
}

func TestRender_AnonymousNeverShowsNames(t *testing.T) {
	poll := newPoll(entities.ModeDoodle, "Mon", "Tue")
	poll.MakeAnonymous()
	poll.Close()
	vote := newVote(poll, "Alice", 0)
	vote.Answer = entities.AnswerYes

	out := Render(poll, []entities.Vote{vote}, ctxFor(entities.ReferenceAdmin))

	assert.NotContains(t, out.Message.Body, "Alice")
	assert.Contains(t, out.Message.Body, "✅ :thumbsup:")
	assert.Contains(t, out.Message.Body, "This poll is anonymous.")
}

func manyVoters(poll entities.Poll, n int) []entities.Vote {
	var votes []entities.Vote
	for i := 0; i < n; i++ {
		votes = append(votes, newVote(poll, "Voter"+strings.Repeat("x", 20)+string(rune('A'+i%26)), i%len(poll.Options)))
	}
	return votes
}

func TestRender_SummarizeBoundaries(t *testing.T) {
	poll := newPoll(entities.ModeBlock, "A", "B", "C", "D", "E", "F", "G", "H", "I")
	votes := manyVoters(poll, 60)

	big := ctxFor(entities.ReferenceInline)
	big.Limits = Limits{Hard: 100000, Summarize: 100000}
	full := Render(poll, votes, big).Message.Body
	require.Contains(t, full, "Voter"+strings.Repeat("x", 20)+"A")
	fullLength := utf8.RuneCountInString(full)

	atLimit := big
	atLimit.Limits.Summarize = fullLength
	assert.Equal(t, full, Render(poll, votes, atLimit).Message.Body)

	crossing := big
	crossing.Limits.Summarize = fullLength - 1
	out := Render(poll, votes, crossing)
	assert.NotContains(t, out.Message.Body, "Voter")
	assert.Contains(t, out.Message.Body, "Detailed votes are summarized.")
	assert.False(t, out.PermanentlySummarize)
	summarizedLength := utf8.RuneCountInString(out.Message.Body)
	assert.Less(t, summarizedLength, fullLength)

	overflow := big
	overflow.Limits = Limits{Hard: summarizedLength - 1, Summarize: summarizedLength - 1}
	out = Render(poll, votes, overflow)
	assert.Equal(t, "*What for lunch?*\n\nThis poll is too long to be displayed. Close it or summarize it to see the results.", out.Message.Body)
	assert.True(t, out.PermanentlySummarize)

	poll.MarkPermanentlySummarized()
	out = Render(poll, votes, overflow)
	assert.Contains(t, out.Message.Body, "too long")
	assert.False(t, out.PermanentlySummarize, "the flag is only requested once")

	out = Render(poll, votes, big)
	assert.Contains(t, out.Message.Body, "Detailed votes are summarized.", "permanently summarized polls skip the full render")
}

func TestRender_FallbackNeverExceedsHardLimit(t *testing.T) {
	poll := newPoll(entities.ModeSingle, "A")
	poll.Name = strings.Repeat("long ", 50)
	ctx := ctxFor(entities.ReferenceInline)
	ctx.Limits = Limits{Hard: 40, Summarize: 30}

	out := Render(poll, nil, ctx)
	assert.Equal(t, 40, utf8.RuneCountInString(out.Message.Body))
	assert.True(t, out.PermanentlySummarize)
}

func TestRender_EmptyOptions(t *testing.T) {
	poll := newPoll(entities.ModeSingle)
	poll.ShowPercentage = true

	out := Render(poll, nil, ctxFor(entities.ReferencePrivateVote))
	assert.Contains(t, out.Message.Body, "This poll has no options yet.")
	assert.NotContains(t, out.Message.Body, "%")
	assert.Empty(t, out.Message.Keyboard)
}

func TestRender_OptionOrdering(t *testing.T) {
	poll := newPoll(entities.ModeBlock, "Apple", "Banana")
	poll.SortByPercentage = true
	votes := []entities.Vote{newVote(poll, "Alice", 1), newVote(poll, "Bob", 1), newVote(poll, "Carol", 0)}

	body := Render(poll, votes, ctxFor(entities.ReferenceInline)).Message.Body
	assert.Less(t, strings.Index(body, "Banana"), strings.Index(body, "Apple"))

	poll.Mode = entities.ModePriority
	body = Render(poll, nil, ctxFor(entities.ReferenceInline)).Message.Body
	assert.Less(t, strings.Index(body, "Apple"), strings.Index(body, "Banana"), "priority polls keep positional order")
}

func TestRender_VoteOrdering(t *testing.T) {
	poll := newPoll(entities.ModeBlock, "Apple")
	votes := []entities.Vote{newVote(poll, "Zoe", 0), newVote(poll, "adam", 0)}

	assert.Contains(t, Render(poll, votes, ctxFor(entities.ReferenceInline)).Message.Body, "Zoe adam")

	poll.SortVotesByName = true
	assert.Contains(t, Render(poll, votes, ctxFor(entities.ReferenceInline)).Message.Body, "adam Zoe")
}

func TestRender_PriorityScores(t *testing.T) {
	poll := newPoll(entities.ModePriority, "A", "B", "C")
	var votes []entities.Vote
	for i, p := range []int{2, 0, 1} {
		vote := newVote(poll, "Alice", i)
		vote.SetPriority(p)
		votes = append(votes, vote)
	}

	body := Render(poll, votes, ctxFor(entities.ReferenceInline)).Message.Body
	assert.Contains(t, body, "A    `score 0`")
	assert.Contains(t, body, "B    `score 2`")
	assert.Contains(t, body, "C    `score 1`")
}

func TestRender_DueDate(t *testing.T) {
	poll := newPoll(entities.ModeSingle, "A", "B")
	poll.SetDueDate(now.Add(48*time.Hour), now)

	body := Render(poll, nil, ctxFor(entities.ReferenceInline)).Message.Body
	assert.Contains(t, body, "Due 2026-03-04 10:00 UTC (2 days from now)")
}

func callbacks(t *testing.T, row []services.Button) []entities.Callback {
	t.Helper()
	var out []entities.Callback
	for _, button := range row {
		require.Equal(t, services.ButtonCallback, button.Kind)
		cb, err := entities.ParseCallback(button.Data)
		require.NoError(t, err)
		out = append(out, cb)
	}
	return out
}

func TestKeyboard_PerMode(t *testing.T) {
	tests := []struct {
		mode    entities.VotingMode
		actions []entities.VoteAction
	}{
		{entities.ModeSingle, []entities.VoteAction{entities.ActionVote}},
		{entities.ModeLimited, []entities.VoteAction{entities.ActionVote}},
		{entities.ModeCumulative, []entities.VoteAction{entities.ActionYes, entities.ActionNo}},
		{entities.ModeDoodle, []entities.VoteAction{entities.ActionYes, entities.ActionMaybe, entities.ActionNo}},
		{entities.ModePriority, []entities.VoteAction{entities.ActionIncreasePriority, entities.ActionDecreasePriority}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			poll := newPoll(tt.mode, "A", "B")
			keyboard := Render(poll, nil, ctxFor(entities.ReferenceInline)).Message.Keyboard
			require.Len(t, keyboard, 2)

			for i, row := range keyboard {
				cbs := callbacks(t, row)
				require.Len(t, cbs, len(tt.actions))
				for j, cb := range cbs {
					assert.Equal(t, entities.CallbackVote, cb.Type)
					assert.Equal(t, poll.Options[i].ID, cb.Payload)
					assert.Equal(t, tt.actions[j], cb.Action)
				}
			}
		})
	}
}

func TestKeyboard_CompactButtons(t *testing.T) {
	poll := newPoll(entities.ModeSingle, "A", "B", "C", "D", "E", "F", "G")
	poll.CompactButtons = true

	keyboard := Render(poll, nil, ctxFor(entities.ReferenceInline)).Message.Keyboard
	require.Len(t, keyboard, 2)
	assert.Len(t, keyboard[0], 5)
	assert.Len(t, keyboard[1], 2)
	assert.Equal(t, ":six:", keyboard[1][0].Text)
}

func TestKeyboard_ShowOptionVotes(t *testing.T) {
	poll := newPoll(entities.ModeSingle, "A", "B")
	poll.ShowOptionVotes = true
	votes := []entities.Vote{newVote(poll, "Alice", 1)}

	keyboard := Render(poll, votes, ctxFor(entities.ReferenceInline)).Message.Keyboard
	assert.Equal(t, ":one: A (0)", keyboard[0][0].Text)
	assert.Equal(t, ":two: B (1)", keyboard[1][0].Text)
}

func TestKeyboard_Admin(t *testing.T) {
	poll := newPoll(entities.ModeSingle, "A", "B")
	ctx := ctxFor(entities.ReferenceAdmin)
	ctx.BotURL = "https://t.me/paulbot"

	keyboard := Render(poll, nil, ctx).Message.Keyboard
	require.Len(t, keyboard, 5)
	assert.Equal(t, services.Button{
		Text: "Share",
		Kind: services.ButtonURL,
		Data: "https://t.me/paulbot?start=6ba7b8109dad11d180b400c04fd430c8-2",
	}, keyboard[2][0])
	assert.Equal(t, entities.CallbackClose, callbacks(t, keyboard[3])[0].Type)
	assert.Equal(t, entities.CallbackDelete, callbacks(t, keyboard[4])[0].Type)
	assert.Equal(t, poll.ID, callbacks(t, keyboard[4])[0].Payload)

	poll.Close()
	keyboard = Render(poll, nil, ctx).Message.Keyboard
	require.Len(t, keyboard, 3, "closed polls have no vote buttons")
	assert.Equal(t, entities.CallbackReopen, callbacks(t, keyboard[1])[0].Type)

	poll.ResultsVisible = false
	keyboard = Render(poll, nil, ctx).Message.Keyboard
	require.Len(t, keyboard, 2, "hidden results cannot be reopened")
}

func TestKeyboard_FitsMaxRows(t *testing.T) {
	ctx := ctxFor(entities.ReferenceAdmin)
	ctx.BotURL = "https://t.me/paulbot"
	ctx.MaxRows = 5

	poll := newPoll(entities.ModeSingle, "A", "B", "C")
	keyboard := Render(poll, nil, ctx).Message.Keyboard
	require.Len(t, keyboard, 4, "auxiliary buttons share a row first")
	assert.Len(t, keyboard[3], 3)
	assert.Equal(t, ":one: A", keyboard[0][0].Text)

	poll = newPoll(entities.ModeDoodle, "A", "B", "C", "D", "E")
	keyboard = Render(poll, nil, ctx).Message.Keyboard
	require.Len(t, keyboard, 4)
	assert.Equal(t, "✅:one:", keyboard[0][0].Text)
	assert.Equal(t, "❌:two:", keyboard[1][0].Text)
	assert.Equal(t, poll.Options[4].ID, callbacks(t, keyboard[2])[4].Payload)
	assert.Equal(t, entities.CallbackDelete, callbacks(t, keyboard[3][1:])[1].Type)

	ctx.MaxRows = 0
	assert.Len(t, Render(poll, nil, ctx).Message.Keyboard, 8)
}

func TestKeyboard_PrivateVoteAndInline(t *testing.T) {
	poll := newPoll(entities.ModeSingle, "A")
	poll.AllowNewOptions = true
	ctx := ctxFor(entities.ReferencePrivateVote)
	ctx.BotURL = "https://t.me/paulbot"

	keyboard := Render(poll, nil, ctx).Message.Keyboard
	require.Len(t, keyboard, 3)
	assert.Equal(t, "Share", keyboard[1][0].Text)
	assert.Equal(t, "https://t.me/paulbot?start=6ba7b8109dad11d180b400c04fd430c8-0", keyboard[2][0].Data)

	ctx.Kind = entities.ReferenceInline
	keyboard = Render(poll, nil, ctx).Message.Keyboard
	require.Len(t, keyboard, 3)
	assert.Equal(t, "Add option", keyboard[1][0].Text)
	assert.Equal(t, "https://t.me/paulbot?start=6ba7b8109dad11d180b400c04fd430c8-1", keyboard[2][0].Data)
}

func TestDeepLinkURL(t *testing.T) {
	link := entities.DeepLink{UUID: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), Action: entities.DeepLinkVote}

	assert.Equal(t, "https://slack.com/app_redirect?app=A1&start=6ba7b8109dad11d180b400c04fd430c8-3",
		DeepLinkURL("https://slack.com/app_redirect?app=A1", link))
	assert.Empty(t, DeepLinkURL("", link))
}

func TestDeleted(t *testing.T) {
	poll := newPoll(entities.ModeSingle, "A")
	poll.Locale = "de"

	msg := Deleted(poll)
	assert.Equal(t, "Diese Umfrage wurde gelöscht", msg.Body)
	assert.Empty(t, msg.Keyboard)
}
