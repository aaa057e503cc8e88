package entities

import "time"

// Update is the single pending-refresh ticket of a poll.
type Update struct {
	ID           int64
	PollID       int64
	NextUpdateAt time.Time
	PendingCount int
	CreatedAt    time.Time
}

type Notification struct {
	ID     int64
	PollID int64
	ChatID string
	// NotifiedStep is the last reminder step delivered to the chat.
	NotifiedStep *time.Time
	CreatedAt    time.Time
}

// Notified reports whether the chat already got the reminder of step.
func (n Notification) Notified(step time.Time) bool {
	return n.NotifiedStep != nil && n.NotifiedStep.Equal(step)
}

var notificationSteps = []time.Duration{
	7 * 24 * time.Hour,
	24 * time.Hour,
	6 * time.Hour,
	0,
}

// FirstNotification returns the first reminder step that lies after now, or
// the due date itself when every earlier step is already in the past.
func FirstNotification(due time.Time, now time.Time) time.Time {
	for _, before := range notificationSteps {
		step := due.Add(-before)
		if step.After(now) {
			return step
		}
	}
	return due
}

// NextNotification advances the staircase due-7d, due-1d, due-6h, due from
// the step that just fired. The boolean is false once the due date fired.
func NextNotification(due time.Time, current time.Time) (time.Time, bool) {
	if !current.Before(due) {
		return time.Time{}, false
	}
	for _, before := range notificationSteps {
		step := due.Add(-before)
		if step.After(current) {
			return step, true
		}
	}
	return due, true
}
