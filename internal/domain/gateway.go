package domain

import "context"

// RoleAssigner is the external role grant/revoke side effect. Supplied by the
// chat-gateway layer; failures must be returned, never swallowed, so the
// caller can avoid committing a flag for a role that was never applied.
type RoleAssigner interface {
	GrantRole(ctx context.Context, id UserID, reason string) error
	RevokeRole(ctx context.Context, id UserID, reason string) error
}

// Notifier delivers user-visible announcements (award transitions, follow
// alerts) through the chat gateway.
type Notifier interface {
	AnnounceAward(ctx context.Context, id UserID, msg string) error
	NotifyFollow(ctx context.Context, owner, target UserID, event EventContext) error
}
