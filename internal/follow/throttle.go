// Package follow implements the per-target, per-subscriber notification
// throttle: at most one alert per rule per configured interval.
package follow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/owdiscord/trakt/internal/domain"
	"github.com/owdiscord/trakt/internal/metrics"
)

// rule is ARMED when the interval has elapsed since lastFired, otherwise in
// cool-down. A zero interval is always armed.
type rule struct {
	interval  time.Duration
	lastFired time.Time
}

// Throttle keeps the working copy of all follow rules in memory, keyed by
// target then owner. At most one rule exists per (owner, target) pair;
// re-following replaces the interval.
type Throttle struct {
	repo     domain.FollowRepository
	notifier domain.Notifier
	clock    clockwork.Clock

	mu    sync.Mutex
	rules map[domain.UserID]map[domain.UserID]rule
}

func NewThrottle(repo domain.FollowRepository, notifier domain.Notifier, clock clockwork.Clock) *Throttle {
	return &Throttle{
		repo:     repo,
		notifier: notifier,
		clock:    clock,
		rules:    make(map[domain.UserID]map[domain.UserID]rule),
	}
}

// Start loads persisted rules. Loaded rules are pre-armed: their lastFired is
// backdated a full interval so the first qualifying event always fires.
func (t *Throttle) Start(ctx context.Context) error {
	count := 0
	err := t.repo.LoadFollowRules(ctx, func(owner, target domain.UserID, intervalSeconds int) {
		t.arm(owner, target, intervalSeconds)
		count++
	})
	if err != nil {
		return fmt.Errorf("failed to load follow rules: %w", err)
	}
	slog.Info("Loaded follow rules", "count", count)
	return nil
}

func (t *Throttle) arm(owner, target domain.UserID, intervalSeconds int) {
	interval := time.Duration(intervalSeconds) * time.Second
	t.mu.Lock()
	byOwner, ok := t.rules[target]
	if !ok {
		byOwner = make(map[domain.UserID]rule)
		t.rules[target] = byOwner
	}
	byOwner[owner] = rule{interval: interval, lastFired: t.clock.Now().Add(-interval)}
	t.mu.Unlock()
}

// OnQualifyingEvent fires every armed rule for target and returns the owners
// notified. Rules still cooling down are skipped without error.
func (t *Throttle) OnQualifyingEvent(ctx context.Context, target domain.UserID, event domain.EventContext) []domain.UserID {
	now := t.clock.Now()

	t.mu.Lock()
	var fired []domain.UserID
	for owner, r := range t.rules[target] {
		if now.Sub(r.lastFired) < r.interval {
			continue
		}
		r.lastFired = now
		t.rules[target][owner] = r
		fired = append(fired, owner)
	}
	t.mu.Unlock()

	for _, owner := range fired {
		if err := t.notifier.NotifyFollow(ctx, owner, target, event); err != nil {
			slog.Error("Failed to deliver follow alert", "owner", uint64(owner), "target", uint64(target), "error", err)
			continue
		}
		metrics.FollowAlertsTotal.Inc()
	}
	return fired
}

// HandleFollow inserts or replaces a rule and persists it. The new rule is
// pre-armed to fire on the very next qualifying event.
func (t *Throttle) HandleFollow(ctx context.Context, owner, target domain.UserID, intervalSeconds int) error {
	if err := t.repo.AddFollowRule(ctx, owner, target, intervalSeconds); err != nil {
		return fmt.Errorf("failed to persist follow rule: %w", err)
	}
	t.arm(owner, target, intervalSeconds)
	return nil
}

// HandleUnfollow removes a rule. Returns domain.ErrFollowNotFound if no rule
// existed for the pair.
func (t *Throttle) HandleUnfollow(ctx context.Context, owner, target domain.UserID) error {
	removed, err := t.repo.RemoveFollowRule(ctx, owner, target)
	if err != nil {
		return fmt.Errorf("failed to remove follow rule: %w", err)
	}

	t.mu.Lock()
	if byOwner, ok := t.rules[target]; ok {
		if _, ok := byOwner[owner]; ok {
			removed = true
			delete(byOwner, owner)
			if len(byOwner) == 0 {
				delete(t.rules, target)
			}
		}
	}
	t.mu.Unlock()

	if !removed {
		return domain.ErrFollowNotFound
	}
	return nil
}

// Follows lists the targets the owner currently follows.
func (t *Throttle) Follows(ctx context.Context, owner domain.UserID) ([]domain.UserID, error) {
	return t.repo.FollowsForOwner(ctx, owner)
}
