package projector

import (
	"time"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/repository"
)

// SuccessRate is matches per like, in percent. Zero likes gives zero.
func SuccessRate(matches, likes int64) float64 {
	if likes <= 0 {
		return 0
	}
	return float64(matches) / float64(likes) * 100
}

// AvgPerDay is actions per distinct active day. Zero days gives zero.
func AvgPerDay(actions, activeDays int64) float64 {
	if activeDays <= 0 {
		return 0
	}
	return float64(actions) / float64(activeDays)
}

// OutcomeDelta is the day delta of n actions with outcome o.
func OutcomeDelta(o db.Outcome, n int64) repository.DayDelta {
	d := repository.DayDelta{Actions: n}
	switch o {
	case db.OutcomeLike:
		d.Likes = n
	case db.OutcomePass:
		d.Passes = n
	case db.OutcomeDislike:
		d.Dislikes = n
	}
	return d
}

// AddOutcome adds n to the activity total that tracks o.
func AddOutcome(a *db.UserActivity, o db.Outcome, n int64) {
	switch o {
	case db.OutcomeLike:
		a.TotalLikes += n
	case db.OutcomePass:
		a.TotalPasses += n
	case db.OutcomeDislike:
		a.TotalDislikes += n
	}
}

// AdvanceStreak folds one action day into the streak.
//
// The next calendar day extends the current streak, the same day leaves it, a
// later day after a gap restarts it at 1. Days before the last action day are
// ignored; reconciliation recomputes streaks from the full history.
func AdvanceStreak(a *db.UserActivity, day string) {
	switch {
	case a.LastActionDay == "":
		a.CurrentStreak = 1
		a.LastActionDay = day
	case day == a.LastActionDay || day < a.LastActionDay:
	case day == nextDay(a.LastActionDay):
		a.CurrentStreak++
		a.LastActionDay = day
	default:
		a.CurrentStreak = 1
		a.LastActionDay = day
	}
	if a.CurrentStreak > a.LongestStreak {
		a.LongestStreak = a.CurrentStreak
	}
}

// Streaks computes current and longest streak from sorted distinct days.
func Streaks(days []string) (current, longest int64) {
	for i, day := range days {
		if i > 0 && day == nextDay(days[i-1]) {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
	}
	return current, longest
}

func nextDay(day string) string {
	t, err := time.Parse(db.DayLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, 1).Format(db.DayLayout)
}
