package domain

import (
	"context"
	"time"
)

// UserID is a chat-platform snowflake. Stable and opaque; never recycled.
type UserID uint64

// User is the persisted per-user engagement record. Sanction fields are kept
// in the same struct as the scores because they share a lifecycle: a sanction
// resets the scores, and decay treats sanctioned records specially.
type User struct {
	ID                   UserID
	MessageScore         int
	TimeScore            int
	HasAward             bool
	IsMuted              bool
	IsBanned             bool
	SanctionedAt         *time.Time
	SanctionDelayPeriods int
}

// DecayResult reports the outcome of one storage-side decay pass.
type DecayResult struct {
	// StrippedAwardUsers held the award when their record bottomed out.
	StrippedAwardUsers map[UserID]struct{}
	// RemovedUsers had their record deleted (bottomed out or sanction expired).
	RemovedUsers map[UserID]struct{}
}

// UserRepository is the persistent store for engagement records. All
// read-modify-write operations on a single user are atomic against
// concurrent writers of that user.
type UserRepository interface {
	// MessageScore returns the stored message score, or 0 for unknown users.
	MessageScore(ctx context.Context, id UserID) (int, error)
	// TimeScore returns the stored time score, or 0 for unknown users.
	TimeScore(ctx context.Context, id UserID) (int, error)
	// User returns the full record for reporting, or ErrUserNotFound.
	User(ctx context.Context, id UserID) (*User, error)

	// UpsertMessageScore writes one cached score back (create if absent, else
	// update the score only). Reports whether the post-write state newly
	// satisfies the award predicate for a user not already holding the award.
	UpsertMessageScore(ctx context.Context, id UserID, score int) (newlyQualifies bool, err error)

	// AdvanceTimeScores increments the time score of every unawarded user
	// above the message gate and below the time ceiling, returning the users
	// whose new state satisfies the award predicate.
	AdvanceTimeScores(ctx context.Context) ([]UserID, error)

	// DecayMessageScores subtracts the decay magnitude from every unsanctioned
	// record, deleting records that would bottom out, and purges records
	// sanctioned longer than twice their mandated delay. Runs in one
	// transaction.
	DecayMessageScores(ctx context.Context) (DecayResult, error)

	HasAward(ctx context.Context, id UserID) (bool, error)
	SetAward(ctx context.Context, id UserID, has bool) error
	// AwardHolders returns the set of users currently holding the award.
	AwardHolders(ctx context.Context) (map[UserID]struct{}, error)

	ApplySanction(ctx context.Context, id UserID, kind SanctionKind, delayPeriods int) error
	ClearSanction(ctx context.Context, id UserID, kind SanctionKind) error

	OverrideTimeScore(ctx context.Context, id UserID, value int) error
	// ResetUser forgets a user entirely. Reports whether a record was removed.
	ResetUser(ctx context.Context, id UserID) (bool, error)
	// UserLeft clears the award flag when a member leaves the community.
	UserLeft(ctx context.Context, id UserID) error
}

// SanctionKind is a moderation action relayed from the moderation bot.
type SanctionKind int

const (
	SanctionWarn SanctionKind = iota
	SanctionMute
	SanctionUnmute
	SanctionBan
	SanctionUnban
)

func (k SanctionKind) String() string {
	switch k {
	case SanctionWarn:
		return "warn"
	case SanctionMute:
		return "mute"
	case SanctionUnmute:
		return "unmute"
	case SanctionBan:
		return "ban"
	case SanctionUnban:
		return "unban"
	default:
		return "unknown"
	}
}

// ParseSanctionKind maps a moderation-log action title to a kind.
func ParseSanctionKind(raw string) (SanctionKind, bool) {
	switch raw {
	case "WARN":
		return SanctionWarn, true
	case "MUTE":
		return SanctionMute, true
	case "UNMUTED":
		return SanctionUnmute, true
	case "BAN":
		return SanctionBan, true
	case "UNBAN":
		return SanctionUnban, true
	default:
		return 0, false
	}
}

// Penalty is one moderation action to apply to a user.
type Penalty struct {
	User UserID
	Kind SanctionKind
}
