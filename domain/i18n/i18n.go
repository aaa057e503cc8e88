// Package i18n holds the bot's user-visible strings.
package i18n

import (
	"fmt"
	"strings"
)

const DefaultLocale = "en"

var translations = map[string]map[string]string{
	"en": {
		"vote.registered":        "Vote registered",
		"vote.removed":           "Vote removed",
		"vote.changed":           "Vote changed",
		"vote.no_left":           "No votes left",
		"vote.votes_left":        "Vote registered, %d votes left",
		"vote.nothing_to_remove": "You have no vote to remove",
		"vote.answer_set":        "Answer set to %s",
		"vote.answer_unchanged":  "You already answered %s",
		"vote.priority_changed":  "Priority changed",
		"vote.priority_edge":     "This option cannot be moved further",
		"vote.unknown_action":    "This button does not work for this poll",

		"poll.closed":          "This poll is closed",
		"poll.deleted":         "This poll has been deleted",
		"poll.too_long":        "This poll is too long to be displayed. Close it or summarize it to see the results.",
		"poll.hidden":          "Results are hidden until the poll is closed.",
		"poll.anonymous":       "This poll is anonymous.",
		"poll.no_options":      "This poll has no options yet.",
		"poll.voters":          "%d users voted",
		"poll.voters_one":      "1 user voted",
		"poll.vote_limit":      "You can vote up to %d times.",
		"poll.due":             "Due %s (%s)",
		"poll.closed_marker":   "This poll has been closed.",
		"poll.summarized":      "Detailed votes are summarized.",
		"poll.score":           "score %d",
		"poll.votes_count":     "%d votes",
		"poll.mode.single":     "Single vote",
		"poll.mode.block":      "Vote for as many options as you like",
		"poll.mode.limited":    "Limited vote",
		"poll.mode.cumulative": "Cumulative vote",
		"poll.mode.count":      "Vote as often as you like",
		"poll.mode.doodle":     "Doodle",
		"poll.mode.priority":   "Priority vote",

		"doodle.yes":   "Yes",
		"doodle.maybe": "Maybe",
		"doodle.no":    "No",

		"keyboard.share":      "Share",
		"keyboard.close":      "Close poll",
		"keyboard.reopen":     "Reopen poll",
		"keyboard.delete":     "Delete",
		"keyboard.add_option": "Add option",
		"keyboard.results":    "Show results",
		"keyboard.vote":       "Vote privately",
		"keyboard.subscribe":  "Remind this chat",
		"keyboard.share_here": "Share here",

		"callback.closed":     "Poll closed",
		"callback.reopened":   "Poll reopened",
		"callback.deleted":    "Poll deleted",
		"callback.not_owner":  "Only the owner of this poll can do that",
		"callback.banned":     "You voted too often today. Please come back tomorrow.",
		"callback.error":      "An error occurred",
		"callback.subscribed": "This chat will be reminded before the due date",
		"callback.shared":     "Poll shared",

		"notification.reminder": "Reminder: the poll *%s* is due %s.",
		"notification.closed":   "The poll *%s* reached its due date and has been closed.",

		"command.created":        "Your poll has been created. Use the buttons in your direct messages to manage it.",
		"command.no_results":     "No matching polls found.",
		"command.shared":         "The poll has been shared.",
		"command.option_added":   "Option added.",
		"command.no_new_options": "This poll does not accept new options.",
		"command.new_option":     "Send `add %s <option>` to add an option to *%s*.",
		"command.invalid_link":   "This link is not valid anymore.",
		"command.subscribed":     "This chat will be reminded before the due date.",
		"command.no_due_date":    "This poll has no due date.",
		"command.share_hint":     "Use `share %d` in any channel to post *%s* there.",
		"command.invalid_due":    "The due date must be in the future.",
		"command.unknown":        "Unknown command. Send `help` to see what I can do.",
		"command.reopen_hidden":  "A poll with hidden results cannot be reopened.",
		"command.done":           "Done.",
	},
	"de": {
		"vote.registered":        "Stimme gezählt",
		"vote.removed":           "Stimme entfernt",
		"vote.changed":           "Stimme geändert",
		"vote.no_left":           "Keine Stimmen mehr übrig",
		"vote.votes_left":        "Stimme gezählt, noch %d Stimmen übrig",
		"vote.nothing_to_remove": "Du hast keine Stimme, die entfernt werden kann",
		"vote.answer_set":        "Antwort auf %s gesetzt",
		"vote.answer_unchanged":  "Du hast bereits mit %s geantwortet",
		"vote.priority_changed":  "Priorität geändert",
		"vote.priority_edge":     "Diese Option kann nicht weiter verschoben werden",

		"poll.closed":        "Diese Umfrage ist geschlossen",
		"poll.deleted":       "Diese Umfrage wurde gelöscht",
		"poll.too_long":      "Diese Umfrage ist zu lang für eine Anzeige. Schließe oder fasse sie zusammen, um die Ergebnisse zu sehen.",
		"poll.hidden":        "Die Ergebnisse sind bis zum Ende der Umfrage verborgen.",
		"poll.anonymous":     "Diese Umfrage ist anonym.",
		"poll.no_options":    "Diese Umfrage hat noch keine Optionen.",
		"poll.voters":        "%d Personen haben abgestimmt",
		"poll.voters_one":    "1 Person hat abgestimmt",
		"poll.vote_limit":    "Du kannst bis zu %d Mal abstimmen.",
		"poll.due":           "Fällig %s (%s)",
		"poll.closed_marker": "Diese Umfrage wurde geschlossen.",

		"doodle.yes":   "Ja",
		"doodle.maybe": "Vielleicht",
		"doodle.no":    "Nein",

		"keyboard.share":  "Teilen",
		"keyboard.close":  "Umfrage schließen",
		"keyboard.reopen": "Umfrage öffnen",
		"keyboard.delete": "Löschen",

		"callback.closed":     "Umfrage geschlossen",
		"callback.reopened":   "Umfrage wieder geöffnet",
		"callback.deleted":    "Umfrage gelöscht",
		"callback.not_owner":  "Nur die Person, die die Umfrage erstellt hat, kann das tun",
		"callback.banned":     "Du hast heute zu oft abgestimmt. Bitte komm morgen wieder.",
		"callback.error":      "Ein Fehler ist aufgetreten",
		"callback.subscribed": "Dieser Chat wird vor dem Enddatum erinnert",
		"callback.shared":     "Umfrage geteilt",

		"notification.reminder": "Erinnerung: die Umfrage *%s* endet %s.",
		"notification.closed":   "Die Umfrage *%s* hat ihr Enddatum erreicht und wurde geschlossen.",
	},
}

// T returns the translated string for key in locale, falling back to English
// and then to the key itself. Extra arguments are applied with fmt.Sprintf.
func T(locale, key string, args ...interface{}) string {
	format := lookup(locale, key)
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

func lookup(locale, key string) string {
	for _, candidate := range []string{locale, baseLocale(locale), DefaultLocale} {
		if m, ok := translations[candidate]; ok {
			if v, ok := m[key]; ok {
				return v
			}
		}
	}
	return key
}

func baseLocale(locale string) string {
	base, _, _ := strings.Cut(strings.ToLower(locale), "-")
	base, _, _ = strings.Cut(base, "_")
	return base
}

// Supported reports whether a catalogue exists for the locale's language.
func Supported(locale string) bool {
	_, ok := translations[baseLocale(locale)]
	return ok
}
