package errors

import "errors"

// Domain errors of the matching core. Wrap them with fmt.Errorf("...: %w", err)
// and test with errors.Is; Map turns them into gRPC statuses.
var (
	// ErrInvalidActionTarget is returned for a self-action or an empty user id.
	ErrInvalidActionTarget = errors.New("invalid action target")
	// ErrAlreadyBlocked is returned when either user has an active block against the other.
	ErrAlreadyBlocked = errors.New("users are blocked")
	// ErrBatchAlreadyComplete protects actionsSubmitted <= len(candidates).
	ErrBatchAlreadyComplete = errors.New("match set already complete")
	// ErrConversationClosed is returned for messages sent after an unmatch.
	ErrConversationClosed = errors.New("conversation closed")
	// ErrAggregateNotFound means the row was never written. Readers treat it as empty.
	ErrAggregateNotFound = errors.New("aggregate not found")
	// ErrConcurrentWriteLost means an optimistic compare-and-set lost a race.
	// Callers retry the whole read-modify-write.
	ErrConcurrentWriteLost = errors.New("concurrent write lost")

	ErrNotParticipant  = errors.New("user is not a participant")
	ErrInvalidOutcome  = errors.New("invalid action outcome")
	ErrBatchInvariant  = errors.New("match set invariant violated")
	ErrInvalidArgument = errors.New("invalid argument")
)
