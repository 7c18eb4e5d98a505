package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/owdiscord/trakt/internal/domain"
)

// FollowRepo implements domain.FollowRepository backed by PostgreSQL.
type FollowRepo struct {
	pool *pgxpool.Pool
}

func NewFollowRepo(pool *pgxpool.Pool) *FollowRepo {
	return &FollowRepo{pool: pool}
}

// LoadFollowRules streams every stored rule into cb.
func (r *FollowRepo) LoadFollowRules(ctx context.Context, cb func(owner, target domain.UserID, intervalSeconds int)) error {
	rows, err := r.pool.Query(ctx, `SELECT owner, target, interval_seconds FROM follow_rules`)
	if err != nil {
		return fmt.Errorf("failed to load follow rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			owner, target   int64
			intervalSeconds int
		)
		if err := rows.Scan(&owner, &target, &intervalSeconds); err != nil {
			return fmt.Errorf("failed to scan follow rule: %w", err)
		}
		cb(domain.UserID(owner), domain.UserID(target), intervalSeconds)
	}
	return rows.Err()
}

// AddFollowRule inserts a rule, replacing the interval if the pair exists.
func (r *FollowRepo) AddFollowRule(ctx context.Context, owner, target domain.UserID, intervalSeconds int) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO follow_rules (owner, target, interval_seconds)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, target) DO UPDATE SET interval_seconds = $3
	`, int64(owner), int64(target), intervalSeconds); err != nil {
		return fmt.Errorf("failed to add follow rule: %w", err)
	}
	return nil
}

// RemoveFollowRule reports whether a rule existed.
func (r *FollowRepo) RemoveFollowRule(ctx context.Context, owner, target domain.UserID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM follow_rules WHERE owner = $1 AND target = $2`, int64(owner), int64(target))
	if err != nil {
		return false, fmt.Errorf("failed to remove follow rule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FollowsForOwner returns the targets the owner currently follows.
func (r *FollowRepo) FollowsForOwner(ctx context.Context, owner domain.UserID) ([]domain.UserID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT target FROM follow_rules WHERE owner = $1`, int64(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to list follows: %w", err)
	}
	defer rows.Close()

	var targets []domain.UserID
	for rows.Next() {
		var target int64
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan follow target: %w", err)
		}
		targets = append(targets, domain.UserID(target))
	}
	return targets, rows.Err()
}
