package slacktransport

import (
	"fmt"
	"unicode/utf8"

	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/slack-go/slack"
)

const (
	buttonTextLimit     = 75
	actionsElementLimit = 25
	// MaxRows leaves one of the 50 blocks of a message to the body.
	MaxRows = 49
)

// MsgOptions renders msg as a section block followed by one actions block
// per keyboard row. The body is also sent as notification text.
func MsgOptions(msg services.Message) []slack.MsgOption {
	return []slack.MsgOption{
		slack.MsgOptionText(msg.Body, false),
		slack.MsgOptionBlocks(Blocks(msg)...),
	}
}

func Blocks(msg services.Message) []slack.Block {
	blocks := make([]slack.Block, 0, 1+len(msg.Keyboard))
	if msg.Body != "" {
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, msg.Body, false, false), nil, nil))
	}

	for i, row := range msg.Keyboard {
		if len(row) > actionsElementLimit {
			row = row[:actionsElementLimit]
		}
		elements := make([]slack.BlockElement, 0, len(row))
		for j, button := range row {
			elements = append(elements, buttonElement(button, i, j))
		}
		if len(elements) > 0 {
			blocks = append(blocks, slack.NewActionBlock(fmt.Sprintf("row-%d", i), elements...))
		}
	}
	return blocks
}

func buttonElement(button services.Button, row, column int) *slack.ButtonBlockElement {
	text := slack.NewTextBlockObject(slack.PlainTextType, truncate(button.Text, buttonTextLimit), true, false)
	if button.Kind == services.ButtonURL {
		element := slack.NewButtonBlockElement(fmt.Sprintf("url-%d-%d", row, column), "", text)
		element.URL = button.Data
		return element
	}
	return slack.NewButtonBlockElement(button.Data, button.Data, text)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
