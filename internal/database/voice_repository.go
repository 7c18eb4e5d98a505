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

// VoiceThresholds is the voice qualification configuration: grant needs both
// rolling totals, strip triggers when the week total drops below half the
// week threshold.
type VoiceThresholds struct {
	Week  time.Duration
	Month time.Duration
}

// VoiceRepo implements domain.VoiceRepository backed by PostgreSQL. Rolling
// totals are recomputed from the per-day session rows on every tick rather
// than maintained incrementally, so a missed tick self-corrects.
type VoiceRepo struct {
	pool       *pgxpool.Pool
	thresholds VoiceThresholds
}

func NewVoiceRepo(pool *pgxpool.Pool, thresholds VoiceThresholds) *VoiceRepo {
	return &VoiceRepo{pool: pool, thresholds: thresholds}
}

// AddVoiceTime accumulates a finished session into today's row and the
// running summary totals.
func (r *VoiceRepo) AddVoiceTime(ctx context.Context, id domain.UserID, d time.Duration) error {
	seconds := int64(d.Seconds())

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `
		INSERT INTO voice_sessions (snowflake, session_date, duration_seconds)
		VALUES ($1, CURRENT_DATE, $2)
		ON CONFLICT (snowflake, session_date) DO UPDATE SET
			duration_seconds = voice_sessions.duration_seconds + $2
	`, int64(id), seconds); err != nil {
		return fmt.Errorf("failed to record voice session: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO voice_summary (snowflake, week_total, month_total)
		VALUES ($1, $2, $2)
		ON CONFLICT (snowflake) DO UPDATE SET
			week_total = voice_summary.week_total + $2,
			month_total = voice_summary.month_total + $2
	`, int64(id), seconds); err != nil {
		return fmt.Errorf("failed to update voice summary: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit voice time: %w", err)
	}
	return nil
}

// VoiceTick expires sessions older than the month window, recomputes every
// summary from the surviving rows, and returns grant/strip decisions. Runs in
// one transaction.
func (r *VoiceRepo) VoiceTick(ctx context.Context) (domain.VoiceTickResult, error) {
	var result domain.VoiceTickResult

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `
		DELETE FROM voice_sessions WHERE session_date < CURRENT_DATE - 30
	`); err != nil {
		return result, fmt.Errorf("failed to expire old voice sessions: %w", err)
	}

	// Recompute from scratch: zero everything, then apply the aggregates so
	// users without surviving sessions regress to zero.
	if _, err := tx.Exec(ctx, `
		UPDATE voice_summary SET week_total = 0, month_total = 0
	`); err != nil {
		return result, fmt.Errorf("failed to reset voice summaries: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO voice_summary (snowflake, week_total, month_total)
		SELECT snowflake,
		       COALESCE(SUM(duration_seconds) FILTER (WHERE session_date >= CURRENT_DATE - 7), 0),
		       SUM(duration_seconds)
		FROM voice_sessions
		GROUP BY snowflake
		ON CONFLICT (snowflake) DO UPDATE SET
			week_total = EXCLUDED.week_total,
			month_total = EXCLUDED.month_total
	`); err != nil {
		return result, fmt.Errorf("failed to apply voice totals: %w", err)
	}

	collect := func(query string, args ...any) ([]domain.UserID, error) {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var ids []domain.UserID
		for rows.Next() {
			var snowflake int64
			if err := rows.Scan(&snowflake); err != nil {
				return nil, err
			}
			ids = append(ids, domain.UserID(snowflake))
		}
		return ids, rows.Err()
	}

	weekSeconds := int64(r.thresholds.Week.Seconds())
	monthSeconds := int64(r.thresholds.Month.Seconds())

	result.Granted, err = collect(`
		SELECT snowflake FROM voice_summary
		WHERE has_award = FALSE AND week_total >= $1 AND month_total >= $2
	`, weekSeconds, monthSeconds)
	if err != nil {
		return result, fmt.Errorf("failed to find voice-qualified users: %w", err)
	}

	result.Stripped, err = collect(`
		SELECT snowflake FROM voice_summary
		WHERE has_award = TRUE AND week_total < $1
	`, weekSeconds/2)
	if err != nil {
		return result, fmt.Errorf("failed to find voice-regressed users: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("failed to commit voice tick: %w", err)
	}
	return result, nil
}

func (r *VoiceRepo) VoiceAward(ctx context.Context, id domain.UserID) (bool, error) {
	var has bool
	err := r.pool.QueryRow(ctx,
		`SELECT has_award FROM voice_summary WHERE snowflake = $1`, int64(id)).Scan(&has)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read voice award flag: %w", err)
	}
	return has, nil
}

func (r *VoiceRepo) SetVoiceAward(ctx context.Context, id domain.UserID, has bool) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO voice_summary (snowflake, has_award)
		VALUES ($1, $2)
		ON CONFLICT (snowflake) DO UPDATE SET has_award = $2
	`, int64(id), has); err != nil {
		return fmt.Errorf("failed to set voice award flag: %w", err)
	}
	return nil
}
