package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/owdiscord/trakt/internal/domain"
	"github.com/owdiscord/trakt/internal/metrics"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// AwardCache is the slice of the progress cache the coordinator updates after
// a transition.
type AwardCache interface {
	MarkAwarded(id domain.UserID)
	Unaward(id domain.UserID)
}

// AwardCoordinator is the single place award transitions happen. Every
// nomination re-checks storage immediately before acting, so duplicate
// nominations from different jobs in the same tick collapse into one role
// call. The storage flag is only committed after the role side effect
// succeeds: a failed grant leaves the flag unset and a later tick retries
// naturally.
type AwardCoordinator struct {
	users     domain.UserRepository
	voice     domain.VoiceRepository
	roles     domain.RoleAssigner
	notifier  domain.Notifier
	cache     AwardCache
	trialMode bool

	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker
}

// NewAwardCoordinator creates the coordinator. In trial mode decisions are
// announced but neither roles nor storage flags change, so every later tick
// re-evaluates the same users.
func NewAwardCoordinator(users domain.UserRepository, voice domain.VoiceRepository, roles domain.RoleAssigner, notifier domain.Notifier, cache AwardCache, trialMode bool) *AwardCoordinator {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "role-assigner",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Role assigner circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	return &AwardCoordinator{
		users:     users,
		voice:     voice,
		roles:     roles,
		notifier:  notifier,
		cache:     cache,
		trialMode: trialMode,
		breaker:   breaker,
	}
}

func (a *AwardCoordinator) grantRole(ctx context.Context, id domain.UserID, reason string) error {
	_, err := a.breaker.Execute(func() (any, error) {
		return nil, a.roles.GrantRole(ctx, id, reason)
	})
	return err
}

func (a *AwardCoordinator) revokeRole(ctx context.Context, id domain.UserID, reason string) error {
	_, err := a.breaker.Execute(func() (any, error) {
		return nil, a.roles.RevokeRole(ctx, id, reason)
	})
	return err
}

// Grant awards the status role for message/time qualification. No-op if the
// user already holds the award.
func (a *AwardCoordinator) Grant(ctx context.Context, id domain.UserID) {
	a.do(id, "grant", func() error {
		has, err := a.users.HasAward(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to re-check award flag: %w", err)
		}
		if has {
			// Another job nominated this user first. Not an error.
			return nil
		}

		if a.trialMode {
			a.announce(ctx, id, "Would grant status for message activity (trial mode, no role change)")
			return nil
		}

		if err := a.grantRole(ctx, id, "Automatic status award"); err != nil {
			metrics.RoleCallFailuresTotal.Inc()
			return fmt.Errorf("failed to grant role: %w", err)
		}
		if err := a.users.SetAward(ctx, id, true); err != nil {
			return fmt.Errorf("failed to commit award flag: %w", err)
		}

		a.cache.MarkAwarded(id)
		metrics.AwardTransitionsTotal.WithLabelValues("message", "grant").Inc()
		a.announce(ctx, id, "Granted status for message activity")
		return nil
	})
}

// Strip removes the status role, mirroring Grant.
func (a *AwardCoordinator) Strip(ctx context.Context, id domain.UserID) {
	a.do(id, "strip", func() error {
		has, err := a.users.HasAward(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to re-check award flag: %w", err)
		}
		if !has {
			return nil
		}

		if a.trialMode {
			a.announce(ctx, id, "Would remove status (trial mode, no role change)")
			return nil
		}

		if err := a.revokeRole(ctx, id, "Automatic status strip"); err != nil {
			metrics.RoleCallFailuresTotal.Inc()
			return fmt.Errorf("failed to revoke role: %w", err)
		}
		if err := a.users.SetAward(ctx, id, false); err != nil {
			return fmt.Errorf("failed to commit award flag: %w", err)
		}

		a.cache.Unaward(id)
		metrics.AwardTransitionsTotal.WithLabelValues("message", "strip").Inc()
		a.announce(ctx, id, "Removed status due to inactivity")
		return nil
	})
}

// StripRemoved removes the role from a user whose storage record the decay
// pass already deleted. The record is gone, so there is no flag to re-check
// or commit; only the external side effect remains.
func (a *AwardCoordinator) StripRemoved(ctx context.Context, id domain.UserID) {
	a.do(id, "strip-removed", func() error {
		if a.trialMode {
			a.announce(ctx, id, "Would remove status after record expiry (trial mode, no role change)")
			return nil
		}

		if err := a.revokeRole(ctx, id, "Status expired with activity record"); err != nil {
			metrics.RoleCallFailuresTotal.Inc()
			return fmt.Errorf("failed to revoke role: %w", err)
		}

		a.cache.Unaward(id)
		metrics.AwardTransitionsTotal.WithLabelValues("message", "strip").Inc()
		a.announce(ctx, id, "Removed status, activity record expired")
		return nil
	})
}

// GrantVoice awards the status role for voice qualification, committing the
// voice summary flag instead of the message-path flag.
func (a *AwardCoordinator) GrantVoice(ctx context.Context, id domain.UserID) {
	a.do(id, "grant-voice", func() error {
		has, err := a.voice.VoiceAward(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to re-check voice award flag: %w", err)
		}
		if has {
			return nil
		}

		if a.trialMode {
			a.announce(ctx, id, "Would grant status for voice activity (trial mode, no role change)")
			return nil
		}

		if err := a.grantRole(ctx, id, "Automatic status award for voice activity"); err != nil {
			metrics.RoleCallFailuresTotal.Inc()
			return fmt.Errorf("failed to grant role: %w", err)
		}
		if err := a.voice.SetVoiceAward(ctx, id, true); err != nil {
			return fmt.Errorf("failed to commit voice award flag: %w", err)
		}

		metrics.AwardTransitionsTotal.WithLabelValues("voice", "grant").Inc()
		a.announce(ctx, id, "Granted status for voice activity")
		return nil
	})
}

// StripVoice removes the status role for voice inactivity.
func (a *AwardCoordinator) StripVoice(ctx context.Context, id domain.UserID) {
	a.do(id, "strip-voice", func() error {
		has, err := a.voice.VoiceAward(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to re-check voice award flag: %w", err)
		}
		if !has {
			return nil
		}

		if a.trialMode {
			a.announce(ctx, id, "Would remove status for voice inactivity (trial mode, no role change)")
			return nil
		}

		if err := a.revokeRole(ctx, id, "Automatic status strip for voice inactivity"); err != nil {
			metrics.RoleCallFailuresTotal.Inc()
			return fmt.Errorf("failed to revoke role: %w", err)
		}
		if err := a.voice.SetVoiceAward(ctx, id, false); err != nil {
			return fmt.Errorf("failed to commit voice award flag: %w", err)
		}

		metrics.AwardTransitionsTotal.WithLabelValues("voice", "strip").Inc()
		a.announce(ctx, id, "Removed status due to voice inactivity")
		return nil
	})
}

// do collapses concurrent nominations of the same user+direction and logs
// failures instead of propagating them: the storage flag was never set, so a
// later qualification re-check retries the transition.
func (a *AwardCoordinator) do(id domain.UserID, direction string, fn func() error) {
	key := fmt.Sprintf("%s:%d", direction, id)
	_, err, _ := a.group.Do(key, func() (any, error) {
		return nil, fn()
	})
	if err != nil {
		slog.Error("Award transition dropped", "user_id", uint64(id), "direction", direction, "error", err)
	}
}

func (a *AwardCoordinator) announce(ctx context.Context, id domain.UserID, msg string) {
	if err := a.notifier.AnnounceAward(ctx, id, msg); err != nil {
		slog.Warn("Failed to announce award transition", "user_id", uint64(id), "error", err)
	}
}
