package domain

import "context"

// ProgressSnapshot is one cache entry as seen by the flush job.
type ProgressSnapshot struct {
	User  UserID
	Score int
}

// ProgressCache is the in-memory write-back cache of per-user message
// progress. Credits are fire-and-forget; reads are cache-only.
type ProgressCache interface {
	SubmitProgress(id UserID)
	MessageScoreForUser(id UserID) (int, bool)
	OverrideMessageScore(id UserID, value int)
	Decay(amount int)
	Snapshot() []ProgressSnapshot
	EvictIdle()
	RemoveUsers(ids map[UserID]struct{})
	MarkAwarded(id UserID)
	Unaward(id UserID)
}

// Awarder turns qualification decisions into role transitions. Implementations
// must be safe to call with the same user from multiple jobs in one tick.
type Awarder interface {
	Grant(ctx context.Context, id UserID)
	Strip(ctx context.Context, id UserID)
	// StripRemoved removes the role from a user whose storage record the decay
	// pass already deleted; it skips the storage re-check and commit.
	StripRemoved(ctx context.Context, id UserID)
	GrantVoice(ctx context.Context, id UserID)
	StripVoice(ctx context.Context, id UserID)
}
