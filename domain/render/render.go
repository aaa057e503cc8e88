// Package render turns a poll snapshot into the message shown by its mirrors.
//
// Render never touches the store. When a poll no longer fits in a message
// even after summarizing, the output asks the caller to mark the poll as
// permanently summarized.
package render

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/i18n"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/dustin/go-humanize"
)

// Limits bounds the body length in characters. Bodies above Summarize are
// summarized, bodies above Hard are replaced with a short notice.
type Limits struct {
	Hard      int
	Summarize int
}

// LimitsFor derives the summarize threshold from a transport message limit.
func LimitsFor(hard int) Limits {
	return Limits{Hard: hard, Summarize: hard - hard/4}
}

type Context struct {
	Now    time.Time
	Limits Limits
	// Kind selects the keyboard of the mirror being rendered.
	Kind entities.ReferenceKind
	// BotURL is the base of deep links. URL buttons are left out when empty.
	BotURL string
	// MaxRows is the most keyboard rows the platform shows, zero for no bound.
	MaxRows int
}

type Output struct {
	Message services.Message
	// PermanentlySummarize is set when the caller must persist the flag on the poll.
	PermanentlySummarize bool
}

// Render is deterministic: the same poll, votes and context always produce
// the same output.
func Render(poll entities.Poll, votes []entities.Vote, ctx Context) Output {
	tally := newTally(poll, votes)
	out := Output{Message: services.Message{Keyboard: keyboard(poll, tally, ctx)}}

	summarize := poll.Summarize || poll.PermanentlySummarized
	body := text(poll, tally, ctx, summarize)
	if !summarize && length(body) > ctx.Limits.Summarize {
		body = text(poll, tally, ctx, true)
	}
	if length(body) > ctx.Limits.Hard {
		body = tooLong(poll, ctx)
		out.PermanentlySummarize = !poll.PermanentlySummarized
	}

	out.Message.Body = body
	return out
}

// Deleted is the message written over every mirror of a deleted poll.
func Deleted(poll entities.Poll) services.Message {
	return services.Message{Body: i18n.T(poll.Locale, "poll.deleted")}
}

// DeepLinkURL builds the bot link that starts a conversation with payload.
func DeepLinkURL(botURL string, link entities.DeepLink) string {
	if botURL == "" {
		return ""
	}
	separator := "?"
	if strings.Contains(botURL, "?") {
		separator = "&"
	}
	return botURL + separator + "start=" + link.Encode()
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

func tooLong(poll entities.Poll, ctx Context) string {
	body := "*" + mdEscape(poll.Name) + "*\n\n" + i18n.T(poll.Locale, "poll.too_long")
	if length(body) <= ctx.Limits.Hard {
		return body
	}
	return string([]rune(body)[:ctx.Limits.Hard])
}

type optionTally struct {
	option entities.Option
	votes  []entities.Vote
	count  int
	score  int
	// doodle answers
	yes, maybe, no []entities.Vote
}

type tally struct {
	options []optionTally
	total   int
	voters  int
}

func newTally(poll entities.Poll, votes []entities.Vote) tally {
	byOption := make(map[int64]int, len(poll.Options))
	t := tally{options: make([]optionTally, len(poll.Options))}

	sorted := make([]entities.Option, len(poll.Options))
	copy(sorted, poll.Options)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for i, option := range sorted {
		t.options[i].option = option
		byOption[option.ID] = i
	}

	if poll.SortVotesByName {
		votes = append([]entities.Vote(nil), votes...)
		sort.SliceStable(votes, func(i, j int) bool {
			return strings.ToLower(voterName(votes[i])) < strings.ToLower(voterName(votes[j]))
		})
	}

	voters := map[string]bool{}
	n := len(poll.Options)
	for _, vote := range votes {
		i, ok := byOption[vote.OptionID]
		if !ok {
			continue
		}
		o := &t.options[i]
		voters[vote.UserID] = true

		switch poll.Mode {
		case entities.ModeDoodle:
			switch vote.Answer {
			case entities.AnswerYes:
				o.yes = append(o.yes, vote)
				o.count++
			case entities.AnswerMaybe:
				o.maybe = append(o.maybe, vote)
			case entities.AnswerNo:
				o.no = append(o.no, vote)
			}
		case entities.ModePriority:
			if p := vote.PriorityValue(); p >= 0 && p < n {
				o.score += n - 1 - p
			}
		default:
			o.votes = append(o.votes, vote)
			o.count += vote.Count
		}
		t.total += vote.Count
	}
	t.voters = len(voters)

	if poll.SortByPercentage && poll.Mode.SupportsPercentageSort() && !poll.ResultsHidden() {
		sort.SliceStable(t.options, func(i, j int) bool { return t.options[i].count > t.options[j].count })
	}
	return t
}

func (t tally) percentage(o optionTally) int {
	if t.total == 0 {
		return 0
	}
	return int(math.Round(float64(o.count) * 100 / float64(t.total)))
}

func text(poll entities.Poll, t tally, ctx Context, summarized bool) string {
	var b strings.Builder
	tr := func(key string, args ...interface{}) string { return i18n.T(poll.Locale, key, args...) }

	b.WriteString("*" + mdEscape(poll.Name) + "*\n")
	if poll.Description != "" {
		b.WriteString(mdEscape(poll.Description) + "\n")
	}
	b.WriteString("_" + tr("poll.mode."+poll.Mode.String()) + "_\n")

	if len(t.options) == 0 {
		b.WriteString("\n" + tr("poll.no_options") + "\n")
	}

	hidden := poll.ResultsHidden()
	symbols := GetSymbolsSource(len(t.options))
	formatter := GetVoteFormatter(poll)

	for i, o := range t.options {
		b.WriteString("\n")
		label := fmt.Sprintf("*%s* %s", symbols.ForIndex(i), mdEscape(o.option.Name))
		if o.option.Description != "" && !summarized {
			label += " (" + mdEscape(o.option.Description) + ")"
		}

		if hidden {
			b.WriteString(label + "\n")
			continue
		}

		switch poll.Mode {
		case entities.ModePriority:
			b.WriteString(label + "    `" + tr("poll.score", o.score) + "`\n")
			continue
		case entities.ModeDoodle:
			b.WriteString(fmt.Sprintf("%s    `%s %d %s %d %s %d`\n", label,
				doodleSymbols[entities.AnswerYes], len(o.yes),
				doodleSymbols[entities.AnswerMaybe], len(o.maybe),
				doodleSymbols[entities.AnswerNo], len(o.no)))
			if summarized {
				continue
			}
			for _, bucket := range []struct {
				answer entities.DoodleAnswer
				votes  []entities.Vote
			}{{entities.AnswerYes, o.yes}, {entities.AnswerMaybe, o.maybe}, {entities.AnswerNo, o.no}} {
				if len(bucket.votes) > 0 {
					b.WriteString(doodleSymbols[bucket.answer] + " " + joinVoters(bucket.votes, formatter) + "\n")
				}
			}
			continue
		}

		line := fmt.Sprintf("%s    `%d`", label, o.count)
		if poll.ShowPercentage {
			line += fmt.Sprintf(" %s %d%%", bar(t.percentage(o)), t.percentage(o))
		}
		b.WriteString(line + "\n")
		if !summarized && len(o.votes) > 0 {
			b.WriteString(joinVoters(o.votes, formatter) + "\n")
		}
	}

	var footer []string
	if poll.Closed {
		footer = append(footer, tr("poll.closed_marker"))
	}
	if hidden {
		footer = append(footer, tr("poll.hidden"))
	}
	if poll.Anonymous {
		footer = append(footer, ":bust_in_silhouette: "+tr("poll.anonymous"))
	}
	if poll.Mode.HasVoteLimit() && poll.VoteLimit > 0 {
		footer = append(footer, tr("poll.vote_limit", poll.VoteLimit))
	}
	if poll.DueDate != nil {
		footer = append(footer, tr("poll.due",
			poll.DueDate.UTC().Format("2006-01-02 15:04 UTC"),
			humanize.RelTime(*poll.DueDate, ctx.Now, "ago", "from now")))
	}
	switch {
	case t.voters == 1:
		footer = append(footer, tr("poll.voters_one"))
	case t.voters > 1:
		footer = append(footer, tr("poll.voters", t.voters))
	}
	if summarized && !hidden {
		footer = append(footer, tr("poll.summarized"))
	}

	if len(footer) > 0 {
		b.WriteString("\n" + strings.Join(footer, "\n"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func joinVoters(votes []entities.Vote, formatter VoteFormatter) string {
	voters := make([]string, len(votes))
	for i, vote := range votes {
		voters[i] = formatter(vote)
	}
	return strings.Join(voters, " ")
}

const barWidth = 10

func bar(percentage int) string {
	filled := percentage * barWidth / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

type VoteFormatter func(vote entities.Vote) string

func UserVoteFormatter(vote entities.Vote) string {
	name := mdEscape(voterName(vote))
	if vote.Count > 1 {
		return fmt.Sprintf("%s (%d)", name, vote.Count)
	}
	return name
}

func AnonymousVoteFormatter(vote entities.Vote) string {
	return ":thumbsup:"
}

func GetVoteFormatter(poll entities.Poll) VoteFormatter {
	if poll.Anonymous {
		return AnonymousVoteFormatter
	}
	return UserVoteFormatter
}

func voterName(vote entities.Vote) string {
	if vote.UserName != "" {
		return vote.UserName
	}
	return vote.UserID
}

var markdownEscaper = strings.NewReplacer(
	"&", "&amp;", "<", "&lt;", ">", "&gt;",
	"*", "\\*", "_", "\\_", "`", "\\`", "~", "\\~",
)

func mdEscape(s string) string {
	return markdownEscaper.Replace(s)
}
