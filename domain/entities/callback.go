package entities

import (
	"fmt"
	"strconv"
	"strings"
)

type CallbackType int

const (
	CallbackVote CallbackType = iota
	CallbackClose
	CallbackReopen
	CallbackDelete
	CallbackShare
	CallbackPickShare
	CallbackSubscribe
)

// Callback is the payload carried by an interactive button,
// encoded as <type>:<payload>:<action>.
type Callback struct {
	Type    CallbackType
	Payload int64
	Action  VoteAction
}

func (c Callback) Encode() string {
	return fmt.Sprintf("%d:%d:%d", c.Type, c.Payload, c.Action)
}

func ParseCallback(data string) (Callback, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return Callback{}, fmt.Errorf("%q is not a callback payload", data)
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil || kind < int(CallbackVote) || kind > int(CallbackSubscribe) {
		return Callback{}, fmt.Errorf("callback %q has an unknown type", data)
	}
	payload, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Callback{}, fmt.Errorf("callback %q: %w", data, err)
	}
	action, err := strconv.Atoi(parts[2])
	if err != nil || action < int(ActionVote) || action > int(ActionDecreasePriority) {
		return Callback{}, fmt.Errorf("callback %q has an unknown action", data)
	}
	return Callback{Type: CallbackType(kind), Payload: payload, Action: VoteAction(action)}, nil
}
