package reconcile

import (
	"sort"
	"time"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/service/projector"
)

// Compute rebuilds userID's UserActivity and daily summary from the authoritative
// rows. It ignores rows that do not belong to the user and does not depend on
// input order. Version and UpdatedAt are left zero.
func Compute(userID string, actions []db.Action, matches []db.Match, sets []db.MatchSet) db.UserActivity {
	a := db.UserActivity{UserID: userID}
	days := map[string]repository.DayDelta{}

	for _, act := range actions {
		if act.ActorID != userID {
			continue
		}
		a.TotalActions++
		projector.AddOutcome(&a, act.Outcome, 1)
		day := db.DayOf(act.ActedAt)
		days[day] = days[day].Add(projector.OutcomeDelta(act.Outcome, 1))
	}
	for _, m := range matches {
		if !m.HasParticipant(userID) {
			continue
		}
		a.TotalMatches++
		day := db.DayOf(m.MatchedAt)
		days[day] = days[day].Add(repository.DayDelta{Matches: 1})
	}
	for _, s := range sets {
		if s.UserID != userID {
			continue
		}
		a.TotalViewTime += s.ViewTime
		d := repository.DayDelta{ViewTime: s.ViewTime}
		if s.Status == db.MatchSetCompleted {
			d.BatchesCompleted = 1
		}
		days[s.Date] = days[s.Date].Add(d)
	}

	keys := make([]string, 0, len(days))
	for day := range days {
		keys = append(keys, day)
	}
	sort.Strings(keys)

	var active []string
	for _, day := range keys {
		d := days[day]
		if d.IsZero() {
			continue
		}
		a.Days = append(a.Days, db.UserActivityDay{
			UserID:           userID,
			Day:              day,
			Actions:          d.Actions,
			Likes:            d.Likes,
			Passes:           d.Passes,
			Dislikes:         d.Dislikes,
			Matches:          d.Matches,
			ViewTime:         d.ViewTime,
			BatchesCompleted: d.BatchesCompleted,
		})
		if d.Actions > 0 {
			active = append(active, day)
		}
	}

	a.ActiveDays = int64(len(active))
	a.CurrentStreak, a.LongestStreak = projector.Streaks(active)
	if len(active) > 0 {
		a.LastActionDay = active[len(active)-1]
	}
	a.MatchSuccessRate = projector.SuccessRate(a.TotalMatches, a.TotalLikes)
	a.AvgActionsPerDay = projector.AvgPerDay(a.TotalActions, a.ActiveDays)
	return a
}

// ComputeMatches rebuilds userID's UserMatches and entries from matches and the
// projected messages of their conversations. prior supplies the seen flags, which
// only the user's own reads can set. Version and UpdatedAt are left zero.
func ComputeMatches(userID string, matches []db.Match, messages []db.Message, prior []db.UserMatchEntry) db.UserMatches {
	seen := make(map[string]bool, len(prior))
	for _, e := range prior {
		seen[e.MatchID] = e.Seen
	}

	type convStats struct {
		unread      int64
		hasMessaged bool
		lastAt      time.Time
		lastText    string
		lastID      string
	}
	stats := map[string]*convStats{}
	for _, msg := range messages {
		if !msg.Projected || (msg.SenderID != userID && msg.RecipientID != userID) {
			continue
		}
		s := stats[msg.ConversationID]
		if s == nil {
			s = &convStats{}
			stats[msg.ConversationID] = s
		}
		if msg.RecipientID == userID && msg.ReadAt == nil {
			s.unread++
		}
		if msg.SenderID == userID {
			s.hasMessaged = true
		}
		if msg.SentAt.After(s.lastAt) || (msg.SentAt.Equal(s.lastAt) && msg.ID > s.lastID) {
			s.lastAt, s.lastText, s.lastID = msg.SentAt, msg.Content, msg.ID
		}
	}

	um := db.UserMatches{UserID: userID}
	for _, m := range matches {
		if !m.HasParticipant(userID) {
			continue
		}
		e := db.UserMatchEntry{
			UserID:         userID,
			MatchID:        m.ID,
			OtherUserID:    m.Other(userID),
			ConversationID: m.ConversationID,
			MatchedAt:      m.MatchedAt,
			Status:         m.Status,
			Seen:           seen[m.ID] || m.Status == db.MatchUnmatched,
			MatchSetID:     m.MatchSetID,
		}
		if s := stats[m.ConversationID]; s != nil {
			e.UnreadCount = s.unread
			e.HasMessaged = s.hasMessaged
			if s.lastID != "" {
				at := s.lastAt
				e.LastMessageAt = &at
				e.LastMessageText = s.lastText
			}
		}

		um.TotalMatches++
		if m.Status == db.MatchActive {
			um.ActiveMatches++
			if !e.Seen {
				um.NewMatches++
			}
		}
		if e.HasMessaged {
			um.ConversationsStarted++
		}
		if um.LastMatchAt == nil || um.LastMatchAt.Before(m.MatchedAt) {
			at := m.MatchedAt
			um.LastMatchAt = &at
		}
		um.Entries = append(um.Entries, e)
	}

	sort.Slice(um.Entries, func(i, j int) bool { return um.Entries[i].MatchID < um.Entries[j].MatchID })
	return um
}
