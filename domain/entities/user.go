package entities

import "time"

type User struct {
	ID        string
	Name      string
	Locale    string
	CreatedAt time.Time
}

type StatisticField string

const (
	StatisticVotes        StatisticField = "votes"
	StatisticCallbacks    StatisticField = "callbacks"
	StatisticCreatedPolls StatisticField = "created_polls"
)

// DailyStatistic counts a user's activity for one UTC day.
type DailyStatistic struct {
	UserID       string
	Day          string
	Votes        int
	Callbacks    int
	CreatedPolls int
}

const dayLayout = "2006-01-02"

func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}
