package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/owdiscord/trakt/internal/domain"
)

// Thresholds is the qualification configuration the repository evaluates
// records against.
type Thresholds struct {
	MessageAward        int
	TimeAward           int
	TimeTrackingMessage int
	DecayMagnitude      int
	// TimeTickPeriod converts sanction delay periods into wall time for the
	// served-sentence purge.
	TimeTickPeriod time.Duration
}

// UserRepo implements domain.UserRepository backed by PostgreSQL.
type UserRepo struct {
	pool       *pgxpool.Pool
	thresholds Thresholds
}

func NewUserRepo(pool *pgxpool.Pool, thresholds Thresholds) *UserRepo {
	return &UserRepo{pool: pool, thresholds: thresholds}
}

func (r *UserRepo) qualifies(messageScore, timeScore int) bool {
	return messageScore >= r.thresholds.MessageAward && timeScore >= r.thresholds.TimeAward
}

// MessageScore returns the stored message score, or 0 for unknown users.
func (r *UserRepo) MessageScore(ctx context.Context, id domain.UserID) (int, error) {
	var score int
	err := r.pool.QueryRow(ctx,
		`SELECT message_score FROM users WHERE snowflake = $1`, int64(id)).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read message score: %w", err)
	}
	return score, nil
}

// TimeScore returns the stored time score, or 0 for unknown users.
func (r *UserRepo) TimeScore(ctx context.Context, id domain.UserID) (int, error) {
	var score int
	err := r.pool.QueryRow(ctx,
		`SELECT time_score FROM users WHERE snowflake = $1`, int64(id)).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read time score: %w", err)
	}
	return score, nil
}

// User returns the full record, or domain.ErrUserNotFound.
func (r *UserRepo) User(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var (
		u         domain.User
		snowflake int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT snowflake, message_score, time_score, has_award, is_muted, is_banned, sanctioned_at, sanction_delay_periods
		FROM users WHERE snowflake = $1
	`, int64(id)).Scan(&snowflake, &u.MessageScore, &u.TimeScore, &u.HasAward, &u.IsMuted, &u.IsBanned, &u.SanctionedAt, &u.SanctionDelayPeriods)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	u.ID = domain.UserID(snowflake)
	return &u, nil
}

// UpsertMessageScore writes a cached score back, creating the record on first
// contact. The insert-or-update and the qualification read happen in one
// statement, so the check sees exactly the post-write state.
func (r *UserRepo) UpsertMessageScore(ctx context.Context, id domain.UserID, score int) (bool, error) {
	var (
		hasAward     bool
		timeScore    int
		messageScore int
	)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (snowflake, message_score)
		VALUES ($1, $2)
		ON CONFLICT (snowflake) DO UPDATE SET message_score = EXCLUDED.message_score
		RETURNING has_award, time_score, message_score
	`, int64(id), score).Scan(&hasAward, &timeScore, &messageScore)
	if err != nil {
		return false, fmt.Errorf("failed to upsert message score: %w", err)
	}

	return !hasAward && r.qualifies(messageScore, timeScore), nil
}

// AdvanceTimeScores increments the time score of every unawarded user above
// the message gate and below the time ceiling, returning newly qualifying
// users. Sanctioned records are frozen.
func (r *UserRepo) AdvanceTimeScores(ctx context.Context) ([]domain.UserID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE users SET time_score = time_score + 1
		WHERE has_award = FALSE
		  AND sanctioned_at IS NULL
		  AND time_score < $1
		  AND message_score > $2
		RETURNING snowflake, message_score, time_score
	`, r.thresholds.TimeAward, r.thresholds.TimeTrackingMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to advance time scores: %w", err)
	}
	defer rows.Close()

	var qualified []domain.UserID
	for rows.Next() {
		var (
			snowflake    int64
			messageScore int
			timeScore    int
		)
		if err := rows.Scan(&snowflake, &messageScore, &timeScore); err != nil {
			return nil, fmt.Errorf("failed to scan advanced user: %w", err)
		}
		if r.qualifies(messageScore, timeScore) {
			qualified = append(qualified, domain.UserID(snowflake))
		}
	}
	return qualified, rows.Err()
}

// DecayMessageScores runs the daily decay pass in one transaction:
//  1. purge records sanctioned longer than twice their mandated delay
//  2. delete unsanctioned records the decay would bottom out
//  3. subtract the magnitude from the surviving unsanctioned records
func (r *UserRepo) DecayMessageScores(ctx context.Context) (domain.DecayResult, error) {
	result := domain.DecayResult{
		StrippedAwardUsers: make(map[domain.UserID]struct{}),
		RemovedUsers:       make(map[domain.UserID]struct{}),
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	collect := func(rows pgx.Rows) error {
		defer rows.Close()
		for rows.Next() {
			var (
				snowflake int64
				hasAward  bool
			)
			if err := rows.Scan(&snowflake, &hasAward); err != nil {
				return fmt.Errorf("failed to scan removed user: %w", err)
			}
			result.RemovedUsers[domain.UserID(snowflake)] = struct{}{}
			if hasAward {
				result.StrippedAwardUsers[domain.UserID(snowflake)] = struct{}{}
			}
		}
		return rows.Err()
	}

	// Served-sentence purge: the record has aged out, stop tracking it.
	rows, err := tx.Query(ctx, `
		DELETE FROM users
		WHERE sanctioned_at IS NOT NULL
		  AND sanctioned_at < now() - make_interval(secs => sanction_delay_periods * 2 * $1)
		RETURNING snowflake, has_award
	`, r.thresholds.TimeTickPeriod.Seconds())
	if err != nil {
		return result, fmt.Errorf("failed to purge expired sanctions: %w", err)
	}
	if err := collect(rows); err != nil {
		return result, err
	}

	rows, err = tx.Query(ctx, `
		DELETE FROM users
		WHERE sanctioned_at IS NULL AND message_score <= $1
		RETURNING snowflake, has_award
	`, r.thresholds.DecayMagnitude)
	if err != nil {
		return result, fmt.Errorf("failed to delete bottomed-out users: %w", err)
	}
	if err := collect(rows); err != nil {
		return result, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET message_score = message_score - $1
		WHERE sanctioned_at IS NULL
	`, r.thresholds.DecayMagnitude); err != nil {
		return result, fmt.Errorf("failed to decay message scores: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("failed to commit decay: %w", err)
	}
	return result, nil
}

func (r *UserRepo) HasAward(ctx context.Context, id domain.UserID) (bool, error) {
	var has bool
	err := r.pool.QueryRow(ctx,
		`SELECT has_award FROM users WHERE snowflake = $1`, int64(id)).Scan(&has)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read award flag: %w", err)
	}
	return has, nil
}

func (r *UserRepo) SetAward(ctx context.Context, id domain.UserID, has bool) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE users SET has_award = $2 WHERE snowflake = $1`, int64(id), has); err != nil {
		return fmt.Errorf("failed to set award flag: %w", err)
	}
	return nil
}

// AwardHolders returns the set of users currently holding the award.
func (r *UserRepo) AwardHolders(ctx context.Context) (map[domain.UserID]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT snowflake FROM users WHERE has_award = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("failed to load award holders: %w", err)
	}
	defer rows.Close()

	holders := make(map[domain.UserID]struct{})
	for rows.Next() {
		var snowflake int64
		if err := rows.Scan(&snowflake); err != nil {
			return nil, fmt.Errorf("failed to scan award holder: %w", err)
		}
		holders[domain.UserID(snowflake)] = struct{}{}
	}
	return holders, rows.Err()
}

// ApplySanction applies a moderation penalty. Warns set the time score back;
// mutes and bans additionally zero the message score, set the flag, and stamp
// the sanction start so decay freezes and the purge clock starts.
func (r *UserRepo) ApplySanction(ctx context.Context, id domain.UserID, kind domain.SanctionKind, delayPeriods int) error {
	var err error
	switch kind {
	case domain.SanctionWarn:
		_, err = r.pool.Exec(ctx, `
			INSERT INTO users (snowflake, message_score, time_score)
			VALUES ($1, 0, -$2)
			ON CONFLICT (snowflake) DO UPDATE SET time_score = users.time_score - $2
		`, int64(id), delayPeriods)
	case domain.SanctionMute:
		err = r.applyFreezingSanction(ctx, id, "is_muted", delayPeriods)
	case domain.SanctionBan:
		err = r.applyFreezingSanction(ctx, id, "is_banned", delayPeriods)
	default:
		return fmt.Errorf("sanction kind %s cannot be applied", kind)
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", kind, err)
	}
	return nil
}

func (r *UserRepo) applyFreezingSanction(ctx context.Context, id domain.UserID, flagColumn string, delayPeriods int) error {
	// flagColumn is a compile-time constant column name, never user input.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (snowflake, message_score, time_score, `+flagColumn+`, sanctioned_at, sanction_delay_periods)
		VALUES ($1, 0, -$2, TRUE, now(), $2)
		ON CONFLICT (snowflake) DO UPDATE SET
			message_score = 0,
			time_score = -$2,
			`+flagColumn+` = TRUE,
			sanctioned_at = now(),
			sanction_delay_periods = $2
	`, int64(id), delayPeriods)
	return err
}

// ClearSanction lifts a mute or ban. The sanction timestamp only clears once
// no freezing flag remains, so a muted-and-banned user stays frozen until
// both are lifted.
func (r *UserRepo) ClearSanction(ctx context.Context, id domain.UserID, kind domain.SanctionKind) error {
	var flagColumn, otherFlag string
	switch kind {
	case domain.SanctionUnmute:
		flagColumn, otherFlag = "is_muted", "is_banned"
	case domain.SanctionUnban:
		flagColumn, otherFlag = "is_banned", "is_muted"
	default:
		return fmt.Errorf("sanction kind %s cannot be cleared", kind)
	}

	// SET expressions see the pre-update row, so the CASE checks the flag not
	// being cleared here.
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET
			`+flagColumn+` = FALSE,
			sanctioned_at = CASE WHEN `+otherFlag+` THEN sanctioned_at ELSE NULL END,
			sanction_delay_periods = CASE WHEN `+otherFlag+` THEN sanction_delay_periods ELSE 0 END
		WHERE snowflake = $1
	`, int64(id))
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", kind, err)
	}
	return nil
}

func (r *UserRepo) OverrideTimeScore(ctx context.Context, id domain.UserID, value int) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO users (snowflake, message_score, time_score)
		VALUES ($1, 0, $2)
		ON CONFLICT (snowflake) DO UPDATE SET time_score = $2
	`, int64(id), value); err != nil {
		return fmt.Errorf("failed to override time score: %w", err)
	}
	return nil
}

// ResetUser forgets a user entirely. Reports whether a record existed.
func (r *UserRepo) ResetUser(ctx context.Context, id domain.UserID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE snowflake = $1`, int64(id))
	if err != nil {
		return false, fmt.Errorf("failed to reset user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UserLeft clears the award flag when a member leaves the community. Their
// scores remain; re-joining re-qualifies them on a later tick.
func (r *UserRepo) UserLeft(ctx context.Context, id domain.UserID) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE users SET has_award = FALSE WHERE snowflake = $1`, int64(id)); err != nil {
		return fmt.Errorf("failed to clear award on leave: %w", err)
	}
	return nil
}

// StartupSanityCheck repairs records older versions of the tracker wrote:
// scores far above the award ceiling are clamped, and freezing sanction flags
// without a timestamp get one now so the freeze and purge logic apply.
func (r *UserRepo) StartupSanityCheck(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `
		UPDATE users SET message_score = $1 WHERE message_score > $1 + 10
	`, r.thresholds.MessageAward); err != nil {
		return fmt.Errorf("failed to clamp message scores: %w", err)
	}

	if _, err := r.pool.Exec(ctx, `
		UPDATE users SET sanctioned_at = now()
		WHERE (is_muted OR is_banned) AND sanctioned_at IS NULL
	`); err != nil {
		return fmt.Errorf("failed to stamp legacy sanctions: %w", err)
	}

	return nil
}
