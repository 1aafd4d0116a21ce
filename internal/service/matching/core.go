// Package matching wires the matching components together and exposes them as
// matching.v1.MatchingService.
package matching

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/safety"
	"github.com/oggyb/muzz-matching/internal/service/conversation"
	"github.com/oggyb/muzz-matching/internal/service/detector"
	"github.com/oggyb/muzz-matching/internal/service/ledger"
	"github.com/oggyb/muzz-matching/internal/service/matchset"
	"github.com/oggyb/muzz-matching/internal/service/projector"
	"github.com/oggyb/muzz-matching/internal/service/reconcile"
)

// Core holds one instance of every matching component, sharing an AppContext.
// The gRPC service, the workers and the CLI all go through it.
type Core struct {
	Tracker       *matchset.Tracker
	Ledger        *ledger.Ledger
	Detector      *detector.Detector
	Projector     *projector.Projector
	Conversations *conversation.Lifecycle
	Reconciler    *reconcile.Job

	appCtx *app.AppContext
	logger *slog.Logger
}

func NewCore(appCtx *app.AppContext) *Core {
	tracker := matchset.NewTracker(appCtx)
	proj := projector.New(appCtx)
	return &Core{
		Tracker:       tracker,
		Ledger:        ledger.New(appCtx, tracker),
		Detector:      detector.New(appCtx, tracker),
		Projector:     proj,
		Conversations: conversation.New(appCtx, proj),
		Reconciler:    reconcile.New(appCtx),
		appCtx:        appCtx,
		logger:        appCtx.Logger.With("component", "matching"),
	}
}

// App returns the shared AppContext.
func (c *Core) App() *app.AppContext { return c.appCtx }

// SubmitResult is what SubmitAction reports back to the caller.
type SubmitResult struct {
	Recorded  *ledger.Result
	Detection *detector.Detection
}

// SubmitAction records the action and runs the rest of the workflow inline:
// projection, reciprocity check and, for a new match, its projection.
//
// Only the ledger write and the detector decide the outcome. Projection
// failures are logged and left to the dispatcher and reconciliation.
func (c *Core) SubmitAction(ctx context.Context, actorID, targetID string, outcome db.Outcome, batchID string) (*SubmitResult, error) {
	res, err := c.Ledger.RecordAction(ctx, actorID, targetID, outcome, batchID)
	if err != nil {
		return nil, err
	}
	out := &SubmitResult{Recorded: res, Detection: &detector.Detection{}}
	if res.Stale {
		return out, nil
	}

	det, err := c.ReplayAction(ctx, res.Action)
	if err != nil {
		return nil, err
	}
	out.Detection = det
	return out, nil
}

// ReplayAction runs everything that follows a ledger write. It is idempotent, so
// the dispatcher uses it for actions whose request path never finished.
func (c *Core) ReplayAction(ctx context.Context, action *db.Action) (*detector.Detection, error) {
	if _, err := c.Projector.ProjectAction(ctx, action.ActorID, action.TargetID); err != nil {
		c.logger.Warn("action projection deferred",
			"actor", action.ActorID,
			"target", action.TargetID,
			"err", err,
		)
	}

	det, err := c.Detector.Evaluate(ctx, action)
	if err != nil {
		return nil, fmt.Errorf("evaluate match: %w", err)
	}
	if det.Created {
		if err := c.Projector.ProjectMatch(ctx, det.Match.ID); err != nil {
			// the match_created outbox event stays pending
			c.logger.Warn("match projection deferred", "match", det.Match.ID, "err", err)
		}
	}
	return det, nil
}

// Block records the block with the safety store and ends any conversation of the pair.
func (c *Core) Block(ctx context.Context, blockerID, blockedID, reason string) error {
	if blockerID == "" || blockedID == "" || blockerID == blockedID {
		return fmt.Errorf("block %q -> %q: %w", blockerID, blockedID, svcErr.ErrInvalidActionTarget)
	}
	blocker, ok := c.appCtx.Safety.(safety.Blocker)
	if !ok {
		return fmt.Errorf("safety collaborator %T cannot record blocks: %w", c.appCtx.Safety, svcErr.ErrInvalidArgument)
	}
	if err := blocker.Block(ctx, blockerID, blockedID, reason); err != nil {
		return err
	}
	return c.Conversations.EndForBlock(ctx, blockerID, blockedID)
}

// Unblock lifts blockerID's block. A match it ended stays ended.
func (c *Core) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == "" || blockedID == "" || blockerID == blockedID {
		return fmt.Errorf("unblock %q -> %q: %w", blockerID, blockedID, svcErr.ErrInvalidActionTarget)
	}
	blocker, ok := c.appCtx.Safety.(safety.Blocker)
	if !ok {
		return fmt.Errorf("safety collaborator %T cannot lift blocks: %w", c.appCtx.Safety, svcErr.ErrInvalidArgument)
	}
	return blocker.Unblock(ctx, blockerID, blockedID)
}
