package render

import (
	"fmt"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/i18n"
	"github.com/CedricFinance/paulpoll/domain/services"
)

var PropositionsEmojis = []string{
	":one:", ":two:", ":three:", ":four:", ":five:", ":six:", ":seven:", ":eight:", ":nine:",
}

var doodleSymbols = map[entities.DoodleAnswer]string{
	entities.AnswerYes:   "✅",
	entities.AnswerMaybe: "❔",
	entities.AnswerNo:    "❌",
}

type SymbolsSource interface {
	ForIndex(i int) string
}

type ArraySymbolsSource []string

func (a ArraySymbolsSource) ForIndex(i int) string {
	if i < len(a) {
		return a[i]
	}
	return fmt.Sprintf("%d", i+1)
}

type NumbersSymbolsSource struct{}

func (NumbersSymbolsSource) ForIndex(i int) string {
	return fmt.Sprintf("%d", i+1)
}

func GetSymbolsSource(options int) SymbolsSource {
	if options <= len(PropositionsEmojis) {
		return ArraySymbolsSource(PropositionsEmojis)
	}
	return NumbersSymbolsSource{}
}

const compactRowSize = 5

// keyboard lays out the buttons of a mirror. Closed polls keep only the
// auxiliary buttons. When the rows exceed ctx.MaxRows the auxiliary buttons
// share rows first, then the vote buttons are packed compactly.
func keyboard(poll entities.Poll, t tally, ctx Context) services.Keyboard {
	var votes services.Keyboard
	open := !poll.Closed && len(t.options) > 0
	if open {
		votes = voteRows(poll, t)
	}
	aux := auxiliaryRows(poll, ctx)
	if ctx.MaxRows <= 0 || len(votes)+len(aux) <= ctx.MaxRows {
		return append(votes, aux...)
	}

	aux = pack(aux)
	if open && len(votes)+len(aux) > ctx.MaxRows {
		votes = pack(compactVoteButtons(poll, t))
	}
	return append(votes, aux...)
}

// pack flattens rows and splits them again compactRowSize buttons wide.
func pack(rows services.Keyboard) services.Keyboard {
	var buttons []services.Button
	for _, row := range rows {
		buttons = append(buttons, row...)
	}
	var packed services.Keyboard
	for lower := 0; lower < len(buttons); lower += compactRowSize {
		upper := lower + compactRowSize
		if upper > len(buttons) {
			upper = len(buttons)
		}
		packed = append(packed, buttons[lower:upper])
	}
	return packed
}

// compactVoteButtons labels every vote button with its glyph and the option
// symbol only, all in a single row.
func compactVoteButtons(poll entities.Poll, t tally) services.Keyboard {
	symbols := GetSymbolsSource(len(t.options))
	var row []services.Button
	for i, o := range t.options {
		symbol := symbols.ForIndex(i)
		switch poll.Mode {
		case entities.ModeCumulative, entities.ModeCount:
			row = append(row,
				voteButton("➕"+symbol, o.option, entities.ActionYes),
				voteButton("➖"+symbol, o.option, entities.ActionNo),
			)
		case entities.ModeDoodle:
			row = append(row,
				voteButton(doodleSymbols[entities.AnswerYes]+symbol, o.option, entities.ActionYes),
				voteButton(doodleSymbols[entities.AnswerMaybe]+symbol, o.option, entities.ActionMaybe),
				voteButton(doodleSymbols[entities.AnswerNo]+symbol, o.option, entities.ActionNo),
			)
		case entities.ModePriority:
			row = append(row,
				voteButton("⬆️"+symbol, o.option, entities.ActionIncreasePriority),
				voteButton("⬇️"+symbol, o.option, entities.ActionDecreasePriority),
			)
		default:
			row = append(row, voteButton(symbol, o.option, entities.ActionVote))
		}
	}
	return services.Keyboard{row}
}

func voteButton(text string, option entities.Option, action entities.VoteAction) services.Button {
	return services.Button{
		Text: text,
		Kind: services.ButtonCallback,
		Data: entities.Callback{Type: entities.CallbackVote, Payload: option.ID, Action: action}.Encode(),
	}
}

func voteRows(poll entities.Poll, t tally) services.Keyboard {
	symbols := GetSymbolsSource(len(t.options))
	var rows services.Keyboard

	switch poll.Mode {
	case entities.ModeCumulative, entities.ModeCount:
		for i, o := range t.options {
			rows = append(rows, []services.Button{
				voteButton("➕ "+optionLabel(poll, symbols.ForIndex(i), o), o.option, entities.ActionYes),
				voteButton("➖", o.option, entities.ActionNo),
			})
		}
	case entities.ModeDoodle:
		for i, o := range t.options {
			rows = append(rows, []services.Button{
				voteButton(doodleSymbols[entities.AnswerYes]+" "+optionLabel(poll, symbols.ForIndex(i), o), o.option, entities.ActionYes),
				voteButton(doodleSymbols[entities.AnswerMaybe], o.option, entities.ActionMaybe),
				voteButton(doodleSymbols[entities.AnswerNo], o.option, entities.ActionNo),
			})
		}
	case entities.ModePriority:
		for i, o := range t.options {
			rows = append(rows, []services.Button{
				voteButton("⬆️ "+optionLabel(poll, symbols.ForIndex(i), o), o.option, entities.ActionIncreasePriority),
				voteButton("⬇️", o.option, entities.ActionDecreasePriority),
			})
		}
	default:
		if poll.CompactButtons {
			for lower := 0; lower < len(t.options); lower += compactRowSize {
				upper := lower + compactRowSize
				if upper > len(t.options) {
					upper = len(t.options)
				}
				row := make([]services.Button, 0, upper-lower)
				for i := lower; i < upper; i++ {
					row = append(row, voteButton(symbols.ForIndex(i), t.options[i].option, entities.ActionVote))
				}
				rows = append(rows, row)
			}
			break
		}
		for i, o := range t.options {
			rows = append(rows, []services.Button{
				voteButton(optionLabel(poll, symbols.ForIndex(i), o), o.option, entities.ActionVote),
			})
		}
	}
	return rows
}

// optionLabel carries the option count only when the poll shows it and the
// results are visible.
func optionLabel(poll entities.Poll, symbol string, o optionTally) string {
	label := symbol + " " + o.option.Name
	if poll.ShowOptionVotes && !poll.ResultsHidden() && poll.Mode.SupportsPercentageSort() {
		label += fmt.Sprintf(" (%d)", o.count)
	}
	return label
}

func auxiliaryRows(poll entities.Poll, ctx Context) services.Keyboard {
	tr := func(key string) string { return i18n.T(poll.Locale, key) }
	link := func(action entities.DeepLinkAction) string {
		return DeepLinkURL(ctx.BotURL, entities.DeepLink{UUID: poll.UUID, Action: action})
	}
	urlButton := func(key string, action entities.DeepLinkAction) []services.Button {
		if ctx.BotURL == "" {
			return nil
		}
		return []services.Button{{Text: tr(key), Kind: services.ButtonURL, Data: link(action)}}
	}
	callback := func(key string, kind entities.CallbackType) []services.Button {
		return []services.Button{{
			Text: tr(key),
			Kind: services.ButtonCallback,
			Data: entities.Callback{Type: kind, Payload: poll.ID}.Encode(),
		}}
	}

	var rows services.Keyboard
	add := func(row []services.Button) {
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	addOption := func() {
		if poll.AllowNewOptions && !poll.Closed {
			add(urlButton("keyboard.add_option", entities.DeepLinkNewOption))
		}
	}

	switch ctx.Kind {
	case entities.ReferenceAdmin:
		add(urlButton("keyboard.share", entities.DeepLinkSharePoll))
		addOption()
		if poll.Closed {
			if poll.ResultsVisible {
				add(callback("keyboard.reopen", entities.CallbackReopen))
			}
		} else {
			add(callback("keyboard.close", entities.CallbackClose))
		}
		if poll.DueDate != nil && !poll.Closed {
			add(callback("keyboard.subscribe", entities.CallbackSubscribe))
		}
		add(callback("keyboard.delete", entities.CallbackDelete))
	case entities.ReferencePrivateVote:
		add(urlButton("keyboard.share", entities.DeepLinkSharePoll))
		addOption()
	case entities.ReferenceInline:
		addOption()
		if poll.ResultsHidden() {
			break
		}
		add(urlButton("keyboard.results", entities.DeepLinkShowResults))
	}
	return rows
}
