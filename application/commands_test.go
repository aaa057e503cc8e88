package application

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurePoll(t *testing.T) {
	now := testutil.Epoch

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, poll entities.Poll)
	}{
		{
			name: "question and choices",
			args: []string{"Lunch?", "Pizza", "Sushi"},
			check: func(t *testing.T, poll entities.Poll) {
				assert.Equal(t, "Lunch?", poll.Name)
				assert.Equal(t, entities.ModeSingle, poll.Mode)
				require.Len(t, poll.Options, 2)
				assert.Equal(t, "Sushi", poll.Options[1].Name)
				assert.Equal(t, 1, poll.Options[1].Index)
				assert.Equal(t, "U1", poll.OwnerID)
				assert.True(t, poll.ResultsVisible)
			},
		},
		{
			name: "limit above one switches to limited",
			args: []string{"limit", "2", "Q", "A", "B", "C"},
			check: func(t *testing.T, poll entities.Poll) {
				assert.Equal(t, entities.ModeLimited, poll.Mode)
				assert.Equal(t, 2, poll.VoteLimit)
			},
		},
		{
			name: "negative limit counts from the number of choices",
			args: []string{"limit", "-2", "Q", "A", "B", "C", "D", "E"},
			check: func(t *testing.T, poll entities.Poll) {
				assert.Equal(t, entities.ModeLimited, poll.Mode)
				assert.Equal(t, 3, poll.VoteLimit)
			},
		},
		{
			name: "zero limit allows every choice",
			args: []string{"limit", "0", "Q", "A", "B", "C"},
			check: func(t *testing.T, poll entities.Poll) {
				assert.Equal(t, 3, poll.VoteLimit)
			},
		},
		{
			name: "explicit mode keeps its limit",
			args: []string{"mode", "cumulative", "limit", "5", "Q", "A", "B"},
			check: func(t *testing.T, poll entities.Poll) {
				assert.Equal(t, entities.ModeCumulative, poll.Mode)
				assert.Equal(t, 5, poll.VoteLimit)
			},
		},
		{
			name: "flags",
			args: []string{"anonymous", "hidden", "NewOptions", "compact", "counts", "nopercentage", "summarize", "Q", "A", "B"},
			check: func(t *testing.T, poll entities.Poll) {
				assert.True(t, poll.Anonymous)
				assert.False(t, poll.ResultsVisible)
				assert.True(t, poll.AllowNewOptions)
				assert.True(t, poll.CompactButtons)
				assert.True(t, poll.ShowOptionVotes)
				assert.False(t, poll.ShowPercentage)
				assert.True(t, poll.Summarize)
				assert.Equal(t, "Q", poll.Name)
			},
		},
		{
			name: "percentage sort",
			args: []string{"percentage", "Q", "A", "B"},
			check: func(t *testing.T, poll entities.Poll) {
				assert.True(t, poll.SortByPercentage)
			},
		},
		{
			name: "percentage sort is ignored for doodles",
			args: []string{"mode", "doodle", "percentage", "Q", "Mon", "Tue"},
			check: func(t *testing.T, poll entities.Poll) {
				assert.Equal(t, entities.ModeDoodle, poll.Mode)
				assert.False(t, poll.SortByPercentage)
			},
		},
		{
			name: "due duration",
			args: []string{"due", "48h", "Q", "A", "B"},
			check: func(t *testing.T, poll entities.Poll) {
				require.NotNil(t, poll.DueDate)
				assert.Equal(t, now.Add(48*time.Hour), *poll.DueDate)
			},
		},
		{
			name: "due date",
			args: []string{"due", "2026-06-01T18:30", "Q", "A", "B"},
			check: func(t *testing.T, poll entities.Poll) {
				require.NotNil(t, poll.DueDate)
				assert.Equal(t, time.Date(2026, 6, 1, 18, 30, 0, 0, time.UTC), *poll.DueDate)
			},
		},
		{
			name: "option words are questions when nothing is left for the choices",
			args: []string{"anonymous", "A", "B"},
			check: func(t *testing.T, poll entities.Poll) {
				assert.Equal(t, "anonymous", poll.Name)
				assert.False(t, poll.Anonymous)
			},
		},
		{
			name: "markup is stripped",
			args: []string{"<b>Lunch</b>?", "Pizza <!channel>", "Sushi"},
			check: func(t *testing.T, poll entities.Poll) {
				assert.Equal(t, "Lunch?", poll.Name)
				assert.Equal(t, "Pizza", poll.Options[0].Name)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poll, err := ConfigurePoll(tt.args, "U1", now)
			require.NoError(t, err)
			tt.check(t, poll)
		})
	}
}

func TestConfigurePoll_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		err  string
	}{
		{"too few words", []string{"Q", "A"}, "a poll must have at least a title and two choices"},
		{"bad limit", []string{"limit", "two", "Q", "A", "B"}, `"two" is not a valid value for the max number of vote per participant`},
		{"limit leaves nothing", []string{"limit", "-2", "Q", "A", "B"}, "the limit leaves no vote to cast"},
		{"limited without limit", []string{"mode", "limited", "Q", "A", "B"}, "the limited mode needs a `limit`"},
		{"unknown mode", []string{"mode", "ranked", "Q", "A", "B"}, `"ranked" is not a known voting mode`},
		{"bad due date", []string{"due", "tomorrow", "Q", "A", "B"}, `"tomorrow" is not a valid due date`},
		{"empty question", []string{"<b></b>", "A", "B"}, "the question is empty"},
		{"empty choice", []string{"Q", "A", " "}, "choice 2 is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConfigurePoll(tt.args, "U1", testutil.Epoch)
			assert.EqualError(t, err, tt.err)
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Pizza &", CleanText("<b>Pizza</b> & <!channel>"))
	assert.Equal(t, "Fish 'n' chips", CleanText("  Fish 'n' chips "))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, `"Where to?" "Here" "There"`, Sanitize(`“Where to?” “Here” “There”`))
}

func TestCommand(t *testing.T) {
	f := setupBot(t)
	ctx := context.Background()
	command := func(user entities.User, text string) string {
		t.Helper()
		reply, err := f.bot.Command(ctx, CommandRequest{User: user, ChatID: "C1", InteractionID: "i1", Text: text})
		require.NoError(t, err)
		return reply
	}

	assert.Equal(t, helpMessage, command(alice, ""))
	assert.Equal(t, helpMessage, command(alice, "help"))
	assert.Equal(t, "No matching polls found.", command(alice, "list"))

	assert.Equal(t, "Your poll has been created. Use the buttons in your direct messages to manage it.", command(alice, `“Lunch today?” Pizza Sushi`))
	require.Len(t, f.transport.Sent(), 2)
	assert.Equal(t, "Your poll has been created. Use the buttons in your direct messages to manage it.", command(alice, `create mode doodle "Team dinner" Mon Tue`))

	list := command(alice, "list")
	lines := strings.Split(list, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "*Team dinner* (doodle)")
	assert.Contains(t, lines[1], "*Lunch today?* (single)")
	assert.Equal(t, lines[1], command(alice, "list lunch"))
	assert.Equal(t, "No matching polls found.", command(bob, "list"))

	assert.True(t, strings.HasPrefix(command(alice, `"Lunch A B`), "Sorry, "))
	assert.True(t, strings.HasPrefix(command(alice, "Lunch A"), "Sorry, a poll must have at least a title and two choices\n"))
	assert.Equal(t, "The due date must be in the future.", command(alice, "due 2020-01-01 Q A B"))

	assert.Equal(t, "Unknown command. Send `help` to see what I can do.", command(alice, "share"))
	assert.Equal(t, "Unknown command. Send `help` to see what I can do.", command(alice, "notify soon"))
	assert.Equal(t, "This link is not valid anymore.", command(bob, "start nope"))
}

func TestCommand_ShareAddAndNotify(t *testing.T) {
	f := setupBot(t)
	ctx := context.Background()
	due := testutil.Epoch.Add(72 * time.Hour)
	poll := f.create(t, func(p *entities.Poll) {
		p.AllowNewOptions = true
		p.DueDate = &due
	})
	id := strconv.FormatInt(poll.ID, 10)

	reply, err := f.bot.Command(ctx, CommandRequest{User: alice, ChatID: "C2", Text: "share " + id})
	require.NoError(t, err)
	assert.Equal(t, "The poll has been shared.", reply)
	sent := f.transport.Sent()
	assert.Equal(t, "C2", sent[len(sent)-1].ChatID)

	reply, err = f.bot.Command(ctx, CommandRequest{User: bob, ChatID: "C2", Text: "share " + id})
	require.NoError(t, err)
	assert.Equal(t, "Only the owner of this poll can do that", reply)

	reply, err = f.bot.Command(ctx, CommandRequest{User: bob, ChatID: "C2", Text: `add ` + id + ` Green salad`})
	require.NoError(t, err)
	assert.Equal(t, "Option added.", reply)
	options := f.reload(t, poll.ID).Options
	require.Len(t, options, 3)
	assert.Equal(t, "Green salad", options[2].Name)

	reply, err = f.bot.Command(ctx, CommandRequest{User: bob, ChatID: "C3", Text: "notify " + id})
	require.NoError(t, err)
	assert.Equal(t, "This chat will be reminded before the due date.", reply)
	notifications, err := f.repo.GetNotifications(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "C3", notifications[0].ChatID)
}
