package domain

import "context"

// EventContext carries what a follow notification needs to render a permalink
// to the triggering message.
type EventContext struct {
	GuildID   uint64
	ChannelID uint64
	MessageID uint64
}

// FollowRepository persists follow rules across restarts. The in-memory rule
// set in the throttle is the working copy; storage is only read at startup.
type FollowRepository interface {
	// LoadFollowRules streams every stored rule into cb.
	LoadFollowRules(ctx context.Context, cb func(owner, target UserID, intervalSeconds int)) error
	AddFollowRule(ctx context.Context, owner, target UserID, intervalSeconds int) error
	// RemoveFollowRule reports whether a rule existed.
	RemoveFollowRule(ctx context.Context, owner, target UserID) (bool, error)
	// FollowsForOwner returns the targets the owner currently follows.
	FollowsForOwner(ctx context.Context, owner UserID) ([]UserID, error)
}
