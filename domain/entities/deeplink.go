package entities

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type DeepLinkAction int

const (
	DeepLinkNewOption DeepLinkAction = iota
	DeepLinkShowResults
	DeepLinkSharePoll
	DeepLinkVote
)

// DeepLink is the start payload of a bot link: <uuid-without-hyphens>-<action>.
type DeepLink struct {
	UUID   uuid.UUID
	Action DeepLinkAction
}

func (d DeepLink) Encode() string {
	return strings.ReplaceAll(d.UUID.String(), "-", "") + "-" + strconv.Itoa(int(d.Action))
}

func ParseDeepLink(payload string) (DeepLink, error) {
	raw, action, found := strings.Cut(strings.TrimSpace(payload), "-")
	if !found {
		return DeepLink{}, fmt.Errorf("%q is not a deep link payload", payload)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return DeepLink{}, fmt.Errorf("deep link %q: %w", payload, err)
	}
	n, err := strconv.Atoi(action)
	if err != nil || n < int(DeepLinkNewOption) || n > int(DeepLinkVote) {
		return DeepLink{}, fmt.Errorf("deep link %q has an unknown action", payload)
	}
	return DeepLink{UUID: id, Action: DeepLinkAction(n)}, nil
}
