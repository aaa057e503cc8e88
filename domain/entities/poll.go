package entities

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type VotingMode int

const (
	ModeSingle VotingMode = iota
	ModeBlock
	ModeLimited
	ModeCumulative
	ModeCount
	ModeDoodle
	ModePriority
)

var votingModeNames = map[VotingMode]string{
	ModeSingle:     "single",
	ModeBlock:      "block",
	ModeLimited:    "limited",
	ModeCumulative: "cumulative",
	ModeCount:      "count",
	ModeDoodle:     "doodle",
	ModePriority:   "priority",
}

func (m VotingMode) String() string {
	if name, ok := votingModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseVotingMode maps a stored or user supplied mode name to its tag.
func ParseVotingMode(name string) (VotingMode, error) {
	for mode, n := range votingModeNames {
		if n == name {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("%q is not a known voting mode", name)
}

// IsCumulative reports whether votes carry a count that can be raised and lowered.
func (m VotingMode) IsCumulative() bool {
	return m == ModeCumulative || m == ModeCount
}

// HasVoteLimit reports whether Poll.VoteLimit bounds the votes of a single user.
func (m VotingMode) HasVoteLimit() bool {
	return m == ModeLimited || m == ModeCumulative
}

// SupportsPercentageSort is false for modes whose option order is positional.
func (m VotingMode) SupportsPercentageSort() bool {
	return m != ModeDoodle && m != ModePriority
}

var (
	ErrAnonymityIrreversible = errors.New("an anonymous poll cannot be made public again")
	ErrReopenHiddenResults   = errors.New("a poll with hidden results cannot be reopened")
)

type Poll struct {
	ID          int64
	UUID        uuid.UUID
	OwnerID     string
	Name        string
	Description string
	Locale      string
	Mode        VotingMode
	VoteLimit   int

	Created               bool
	Anonymous             bool
	ResultsVisible        bool
	AllowNewOptions       bool
	Closed                bool
	Deleted               bool
	Summarize             bool
	PermanentlySummarized bool
	CompactButtons        bool
	ShowPercentage        bool
	ShowOptionVotes       bool
	SortByPercentage      bool
	SortVotesByName       bool

	DueDate          *time.Time
	NextNotification *time.Time
	CreatedAt        time.Time

	Options []Option
}

type Option struct {
	ID          int64
	PollID      int64
	Index       int
	Name        string
	Description string
	IsDate      bool
}

func NewPoll(name string, options []string, ownerID string) Poll {
	poll := Poll{
		UUID:           uuid.New(),
		OwnerID:        ownerID,
		Name:           name,
		Locale:         "en",
		Mode:           ModeSingle,
		ResultsVisible: true,
		ShowPercentage: true,
		CreatedAt:      time.Now().UTC(),
	}
	for i, name := range options {
		poll.Options = append(poll.Options, Option{Index: i, Name: name})
	}
	return poll
}

func (p *Poll) IsOwner(userID string) bool {
	return p.OwnerID == userID
}

// ResultsHidden is true while no voter data may be shown.
func (p *Poll) ResultsHidden() bool {
	return !p.ResultsVisible && !p.Closed
}

func (p *Poll) MakeAnonymous() {
	p.Anonymous = true
}

// SetAnonymous refuses to turn an anonymous poll back into a public one.
func (p *Poll) SetAnonymous(anonymous bool) error {
	if p.Anonymous && !anonymous {
		return ErrAnonymityIrreversible
	}
	p.Anonymous = anonymous
	return nil
}

func (p *Poll) MarkPermanentlySummarized() {
	p.PermanentlySummarized = true
}

func (p *Poll) Close() {
	p.Closed = true
	p.NextNotification = nil
}

func (p *Poll) Reopen() error {
	if !p.ResultsVisible {
		return ErrReopenHiddenResults
	}
	p.Closed = false
	return nil
}

// SetDueDate stores the due date and points the reminder staircase at its
// first step after now.
func (p *Poll) SetDueDate(due time.Time, now time.Time) {
	due = due.UTC()
	p.DueDate = &due
	next := FirstNotification(due, now)
	p.NextNotification = &next
}

func (p *Poll) OptionByID(id int64) (Option, bool) {
	for _, option := range p.Options {
		if option.ID == id {
			return option, true
		}
	}
	return Option{}, false
}
