package application

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/i18n"
	"github.com/mattn/go-shellwords"
	"github.com/microcosm-cc/bluemonday"
)

const (
	helpMessage string = "To start a poll, type this: `/paul [options] Question Choice1 Choice2 ...`\nA poll must have at least a title and two choices.\n:warning: Put you question and each choice between \"\" if they contain spaces.\nBefore the question, you can add options to configure the poll.\nThe available options are:\n- `mode X` to pick how people vote: single, block, limited, cumulative, count, doodle or priority. The default is single.\n- `limit X` to limit the number of votes per user. When X < 1, it's a synonym of `limit N+X` (where N is the number of choices).\n- `anonymous` to make the poll anonymous\n- `hidden` to hide the results until the poll is closed\n- `newoptions` to let everyone add choices\n- `compact` to use compact buttons\n- `percentage` to sort the choices by percentage\n- `nopercentage` to hide percentages\n- `counts` to show the vote counts on the buttons\n- `summarize` to only show a summary of the votes\n- `due YYYY-MM-DD[THH:MM]` or `due 48h` to close the poll automatically\n\nOther commands:\n- `list [search]` lists your polls\n- `share ID` posts one of your polls in this channel\n- `add ID Choice` adds a choice to a poll that accepts new ones\n- `notify ID` reminds this channel before the due date\n\nExamples:\n- `/paul Q A B C D E`: 1 vote per user\n- `/paul limit 2 Q A B C D E`: 2 votes per user\n- `/paul limit -2 Q A B C D E`: 3 votes per user\n- `/paul mode doodle due 2026-06-01 Q Mon Tue Wed`: yes/maybe/no per day until June 1st"
)

var textPolicy = bluemonday.StrictPolicy()

// CleanText strips markup, including platform mentions such as <!channel>,
// from user supplied poll text.
func CleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

var dueLayouts = []string{"2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

func parseDueDate(value string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(d), nil
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a valid due date", value)
}

// ConfigurePoll builds a poll from the words of a create command: options
// first, then the question and at least two choices.
func ConfigurePoll(args []string, ownerId string, now time.Time) (entities.Poll, error) {
	mode := entities.ModeSingle
	modeSet := false
	limit := 0
	limitSet := false
	var due *time.Time
	var flags []func(p *entities.Poll)

	flag := func(fn func(p *entities.Poll)) {
		flags = append(flags, fn)
	}

	optionFound := true
	for optionFound && len(args) > 0 {
		optionFound = false
		word := strings.ToLower(args[0])

		// An option is only read while a question and two choices remain.
		if len(args) >= 5 {
			switch word {
			case "limit":
				var err error
				limit, err = strconv.Atoi(args[1])
				if err != nil {
					return entities.Poll{}, fmt.Errorf("%q is not a valid value for the max number of vote per participant", args[1])
				}
				limitSet = true
				args = args[2:]
				optionFound = true
				continue
			case "mode":
				var err error
				mode, err = entities.ParseVotingMode(strings.ToLower(args[1]))
				if err != nil {
					return entities.Poll{}, err
				}
				modeSet = true
				args = args[2:]
				optionFound = true
				continue
			case "due":
				at, err := parseDueDate(args[1], now)
				if err != nil {
					return entities.Poll{}, err
				}
				due = &at
				args = args[2:]
				optionFound = true
				continue
			}
		}

		if len(args) >= 4 {
			optionFound = true
			switch word {
			case "anonymous":
				flag(func(p *entities.Poll) { p.MakeAnonymous() })
			case "hidden":
				flag(func(p *entities.Poll) { p.ResultsVisible = false })
			case "newoptions":
				flag(func(p *entities.Poll) { p.AllowNewOptions = true })
			case "compact":
				flag(func(p *entities.Poll) { p.CompactButtons = true })
			case "percentage":
				flag(func(p *entities.Poll) { p.SortByPercentage = true })
			case "nopercentage":
				flag(func(p *entities.Poll) { p.ShowPercentage = false })
			case "counts":
				flag(func(p *entities.Poll) { p.ShowOptionVotes = true })
			case "summarize":
				flag(func(p *entities.Poll) { p.Summarize = true })
			default:
				optionFound = false
			}
			if optionFound {
				args = args[1:]
			}
		}
	}

	if len(args) < 3 {
		return entities.Poll{}, fmt.Errorf("a poll must have at least a title and two choices")
	}

	title := CleanText(args[0])
	if title == "" {
		return entities.Poll{}, fmt.Errorf("the question is empty")
	}
	propositions := make([]string, len(args)-1)
	for i, arg := range args[1:] {
		propositions[i] = CleanText(arg)
		if propositions[i] == "" {
			return entities.Poll{}, fmt.Errorf("choice %d is empty", i+1)
		}
	}

	if limitSet {
		if limit < 1 {
			limit = len(propositions) + limit
		}
		if limit < 1 {
			return entities.Poll{}, fmt.Errorf("the limit leaves no vote to cast")
		}
		if !modeSet && limit > 1 {
			mode = entities.ModeLimited
		}
	}
	if mode.HasVoteLimit() && limit < 1 {
		return entities.Poll{}, fmt.Errorf("the %s mode needs a `limit`", mode)
	}

	poll := entities.NewPoll(title, propositions, ownerId)
	poll.Mode = mode
	poll.VoteLimit = limit
	poll.DueDate = due
	for _, fn := range flags {
		fn(&poll)
	}
	if !poll.Mode.SupportsPercentageSort() {
		poll.SortByPercentage = false
	}

	return poll, nil
}

type CommandRequest struct {
	User   entities.User
	ChatID string
	// InteractionID addresses replies that only the user sees.
	InteractionID string
	Text          string
}

// Command runs a text command and returns the reply for the user.
func (b *Bot) Command(ctx context.Context, req CommandRequest) (string, error) {
	req.User = b.withLocale(req.User)
	locale := req.User.Locale

	args, err := shellwords.Parse(Sanitize(req.Text))
	if err != nil {
		return fmt.Sprintf("Sorry, %s", err), nil
	}
	if len(args) == 0 {
		return helpMessage, nil
	}

	switch strings.ToLower(args[0]) {
	case "help":
		return helpMessage, nil
	case "create":
		return b.create(ctx, req, args[1:])
	case "list":
		return b.list(ctx, req.User, strings.Join(args[1:], " "))
	case "start":
		if len(args) != 2 {
			return i18n.T(locale, "command.invalid_link"), nil
		}
		return b.Start(ctx, StartRequest{User: req.User, InteractionID: req.InteractionID, Payload: args[1]})
	case "share", "notify", "add":
		if len(args) < 2 {
			return i18n.T(locale, "command.unknown"), nil
		}
		pollID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return i18n.T(locale, "command.unknown"), nil
		}
		switch strings.ToLower(args[0]) {
		case "share":
			return b.share(ctx, req.User, pollID, req.ChatID, "command.shared")
		case "notify":
			return b.subscribe(ctx, req.User, pollID, req.ChatID, "command.subscribed")
		default:
			return b.AddOption(ctx, req.User, pollID, strings.Join(args[2:], " "))
		}
	}
	return b.create(ctx, req, args)
}

func (b *Bot) create(ctx context.Context, req CommandRequest, args []string) (string, error) {
	poll, err := ConfigurePoll(args, req.User.ID, b.Clock.Now())
	if err != nil {
		return fmt.Sprintf("Sorry, %s\n%s", err.Error(), helpMessage), nil
	}

	_, err = b.CreatePoll(ctx, req.User, poll, req.ChatID)
	if errors.Is(err, ErrDueDateInPast) {
		return i18n.T(req.User.Locale, "command.invalid_due"), nil
	}
	if err != nil {
		return "", err
	}
	return i18n.T(req.User.Locale, "command.created"), nil
}

func (b *Bot) list(ctx context.Context, user entities.User, search string) (string, error) {
	polls, err := b.Repository.FindPollsByOwner(ctx, user.ID, strings.TrimSpace(search), inlineResultsLimit)
	if err != nil {
		return "", err
	}
	if len(polls) == 0 {
		return i18n.T(user.Locale, "command.no_results"), nil
	}

	lines := make([]string, len(polls))
	for i, poll := range polls {
		state := poll.Mode.String()
		if poll.Closed {
			state += ", " + strings.ToLower(i18n.T(user.Locale, "callback.closed"))
		}
		lines[i] = fmt.Sprintf("`%d` *%s* (%s)", poll.ID, poll.Name, state)
	}
	return strings.Join(lines, "\n"), nil
}

func Sanitize(str string) string {
	return strings.Replace(strings.Replace(str, "“", "\"", -1), "”", "\"", -1)
}
