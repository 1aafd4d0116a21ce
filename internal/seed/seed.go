// Package seed populates a database with a demo dataset by driving the real
// matching workflow, so every aggregate and outbox row is consistent.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/service/matching"
)

const algorithmVersion = "seed-v1"

type Options struct {
	Users      int
	Candidates int
	// Seed fixes the random choices; zero picks a time-based seed.
	Seed int64
	// Reset clears every table first.
	Reset bool
}

// Summary counts what was created.
type Summary struct {
	Users     int
	MatchSets int
	Actions   int
	Matches   int
	Messages  int
	Unmatched int
}

var openers = []string{
	"Hey! How's your week going?",
	"Salaam, nice to match with you",
	"I see you like hiking too",
	"Any good book recommendations?",
}

// Run creates a daily batch for each of user1..userN, acts on every candidate
// (about 60% likes) and guarantees a mutual like for every third pair. New
// matches get a short exchange of messages and every fifth one is unmatched.
func Run(ctx context.Context, core *matching.Core, opts Options) (*Summary, error) {
	if opts.Users < 2 {
		opts.Users = 20
	}
	if opts.Candidates <= 0 {
		opts.Candidates = 8
	}
	opts.Candidates = min(opts.Candidates, opts.Users-1)
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(opts.Seed))

	if opts.Reset {
		if err := db.Reset(core.App().DB); err != nil {
			return nil, err
		}
	}

	users := make([]string, opts.Users)
	for i := range users {
		users[i] = fmt.Sprintf("user%d", i+1)
	}
	date := core.App().Now().Format(db.DayLayout)

	sum := &Summary{Users: len(users)}
	pair := 0
	for _, userID := range users {
		candidates := pick(r, users, userID, opts.Candidates)
		set, err := core.Tracker.CreateBatch(ctx, userID, date, candidates, algorithmVersion)
		if err != nil {
			return sum, fmt.Errorf("create batch for %s: %w", userID, err)
		}
		sum.MatchSets++

		for _, c := range candidates {
			mutual := pair%3 == 0
			pair++

			if mutual {
				if err := sum.act(ctx, core, r, c.UserID, userID, db.OutcomeLike, ""); err != nil {
					return sum, err
				}
			}
			outcome := randomOutcome(r)
			if mutual {
				outcome = db.OutcomeLike
			}
			if err := sum.act(ctx, core, r, userID, c.UserID, outcome, set.ID); err != nil {
				return sum, err
			}
		}

		if err := core.Tracker.RecordViewTime(ctx, set.ID, int64(30+r.Intn(600))); err != nil {
			return sum, fmt.Errorf("record view time for %s: %w", userID, err)
		}
	}
	return sum, nil
}

func (s *Summary) act(
	ctx context.Context,
	core *matching.Core,
	r *rand.Rand,
	actorID, targetID string,
	outcome db.Outcome,
	batchID string,
) error {
	res, err := core.SubmitAction(ctx, actorID, targetID, outcome, batchID)
	if err != nil {
		return fmt.Errorf("submit %s %s->%s: %w", outcome, actorID, targetID, err)
	}
	s.Actions++
	if !res.Detection.Created {
		return nil
	}
	s.Matches++

	convID := res.Detection.Match.ConversationID
	from, to := actorID, targetID
	for i := range 1 + r.Intn(3) {
		content := openers[r.Intn(len(openers))]
		if i > 0 {
			content = fmt.Sprintf("Reply #%d", i)
		}
		if _, err := core.Conversations.SendMessage(ctx, convID, from, content); err != nil {
			return fmt.Errorf("send message in %s: %w", convID, err)
		}
		s.Messages++
		from, to = to, from
	}

	if s.Matches%5 == 0 {
		if _, err := core.Conversations.Unmatch(ctx, convID, targetID); err != nil {
			return fmt.Errorf("unmatch %s: %w", convID, err)
		}
		s.Unmatched++
	}
	return nil
}

// pick returns n distinct users other than self.
func pick(r *rand.Rand, users []string, self string, n int) []db.Candidate {
	out := make([]db.Candidate, 0, n)
	for _, i := range r.Perm(len(users)) {
		if len(out) == n {
			break
		}
		if users[i] == self {
			continue
		}
		out = append(out, db.Candidate{
			UserID: users[i],
			Score:  float64(r.Intn(1000)) / 1000,
			Reason: "seed",
		})
	}
	return out
}

func randomOutcome(r *rand.Rand) db.Outcome {
	switch n := r.Intn(10); {
	case n < 6:
		return db.OutcomeLike
	case n < 9:
		return db.OutcomePass
	default:
		return db.OutcomeDislike
	}
}
