package entities

import (
	"fmt"
	"time"
)

type DoodleAnswer string

const (
	AnswerNone  DoodleAnswer = ""
	AnswerYes   DoodleAnswer = "yes"
	AnswerMaybe DoodleAnswer = "maybe"
	AnswerNo    DoodleAnswer = "no"
)

// PrioritySentinel is parked on a vote while its sibling takes its place.
const PrioritySentinel = -1

type VoteAction int

const (
	ActionVote VoteAction = iota
	ActionYes
	ActionNo
	ActionMaybe
	ActionIncreasePriority
	ActionDecreasePriority
)

func (a VoteAction) String() string {
	switch a {
	case ActionVote:
		return "vote"
	case ActionYes:
		return "yes"
	case ActionNo:
		return "no"
	case ActionMaybe:
		return "maybe"
	case ActionIncreasePriority:
		return "increase-priority"
	case ActionDecreasePriority:
		return "decrease-priority"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Answer maps the tri-state doodle actions to their stored answer.
func (a VoteAction) Answer() DoodleAnswer {
	switch a {
	case ActionYes:
		return AnswerYes
	case ActionMaybe:
		return AnswerMaybe
	case ActionNo:
		return AnswerNo
	}
	return AnswerNone
}

type Vote struct {
	ID        int64
	UserID    string
	UserName  string
	PollID    int64
	OptionID  int64
	Count     int
	Answer    DoodleAnswer
	Priority  *int
	CreatedAt time.Time
}

func NewVote(userID string, pollID int64, optionID int64) Vote {
	return Vote{
		UserID:    userID,
		PollID:    pollID,
		OptionID:  optionID,
		Count:     1,
		CreatedAt: time.Now().UTC(),
	}
}

func (v *Vote) SetPriority(priority int) {
	v.Priority = &priority
}

// PriorityValue returns the priority or -1 for votes that carry none.
func (v Vote) PriorityValue() int {
	if v.Priority == nil {
		return PrioritySentinel
	}
	return *v.Priority
}
