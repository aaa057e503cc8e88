package discordtransport

import (
	"unicode/utf8"

	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/bwmarrin/discordgo"
)

const (
	// MaxRows is the number of action rows Discord shows on a message.
	MaxRows          = 5
	maxButtonsPerRow = 5
	labelLimit       = 80
)

// Components packs a keyboard into action rows. Rows wider than five buttons
// are split and rows past the fifth are dropped, so keyboards are rendered
// within MaxRows beforehand.
func Components(keyboard services.Keyboard) []discordgo.MessageComponent {
	components := []discordgo.MessageComponent{}
	for _, row := range keyboard {
		for start := 0; start < len(row); start += maxButtonsPerRow {
			if len(components) == MaxRows {
				return components
			}
			end := start + maxButtonsPerRow
			if end > len(row) {
				end = len(row)
			}

			buttons := make([]discordgo.MessageComponent, 0, end-start)
			for _, button := range row[start:end] {
				buttons = append(buttons, component(button))
			}
			components = append(components, discordgo.ActionsRow{Components: buttons})
		}
	}
	return components
}

func component(button services.Button) discordgo.Button {
	label := truncate(button.Text, labelLimit)
	if button.Kind == services.ButtonURL {
		return discordgo.Button{Label: label, Style: discordgo.LinkButton, URL: button.Data}
	}
	return discordgo.Button{Label: label, Style: discordgo.SecondaryButton, CustomID: button.Data}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
