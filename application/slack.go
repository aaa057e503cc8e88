package application

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/i18n"
	"github.com/slack-go/slack"
)

func WriteError(w http.ResponseWriter, locale string) {
	WriteMessage(w, i18n.T(locale, "callback.error"))
}

func WriteMessage(w http.ResponseWriter, message string) {
	msg := slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         message,
	}

	WriteJSON(w, msg)
}

func WriteJSON(w http.ResponseWriter, d interface{}) {
	res, err := json.Marshal(d)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(res)
}

func ParseSlashCommand(r *http.Request) (slack.SlashCommand, error) {
	return slack.SlashCommandParse(r)
}

// verifyBody checks the request signature once the body has been consumed
// through the returned verifier.
func verifyBody(r *http.Request, signingSecret string) (*slack.SecretsVerifier, error) {
	verifier, err := slack.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(io.TeeReader(r.Body, &verifier))
	return &verifier, nil
}

func SecureParseSlashCommand(r *http.Request, signingSecret string) (slack.SlashCommand, error) {
	verifier, err := verifyBody(r, signingSecret)
	if err != nil {
		return slack.SlashCommand{}, err
	}

	slashCommand, err := slack.SlashCommandParse(r)
	if err != nil {
		return slack.SlashCommand{}, err
	}

	if err = verifier.Ensure(); err != nil {
		return slack.SlashCommand{}, err
	}

	return slashCommand, nil
}

// ParseInteraction decodes the payload field of an interactivity request.
func ParseInteraction(r *http.Request) (slack.InteractionCallback, error) {
	var callback slack.InteractionCallback
	if err := r.ParseForm(); err != nil {
		return callback, err
	}
	payload := r.PostForm.Get("payload")
	if payload == "" {
		return callback, fmt.Errorf("missing interaction payload")
	}
	if err := json.Unmarshal([]byte(payload), &callback); err != nil {
		return callback, fmt.Errorf("interaction payload: %w", err)
	}
	return callback, nil
}

func SecureParseInteraction(r *http.Request, signingSecret string) (slack.InteractionCallback, error) {
	verifier, err := verifyBody(r, signingSecret)
	if err != nil {
		return slack.InteractionCallback{}, err
	}

	callback, err := ParseInteraction(r)
	if err != nil {
		return slack.InteractionCallback{}, err
	}

	if err = verifier.Ensure(); err != nil {
		return slack.InteractionCallback{}, err
	}

	return callback, nil
}

// pressedButton returns the callback payload of the first button of a block
// action, false for link buttons and other interactions.
func pressedButton(callback slack.InteractionCallback) (string, bool) {
	if callback.Type != slack.InteractionTypeBlockActions {
		return "", false
	}
	for _, action := range callback.ActionCallback.BlockActions {
		if action == nil || action.Value == "" {
			continue
		}
		return action.Value, true
	}
	return "", false
}

// originOf addresses the message carrying the pressed button. Ephemeral
// messages cannot be edited and have no origin.
func originOf(callback slack.InteractionCallback) *entities.MessageHandle {
	if callback.Container.IsEphemeral {
		return nil
	}
	channel := callback.Container.ChannelID
	if channel == "" {
		channel = callback.Channel.ID
	}
	ts := callback.Container.MessageTs
	if ts == "" {
		ts = callback.Message.Timestamp
	}
	if channel == "" || ts == "" {
		return nil
	}
	return &entities.MessageHandle{ChatID: channel, MessageID: ts}
}
