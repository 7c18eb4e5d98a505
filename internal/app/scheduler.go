package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/owdiscord/trakt/internal/domain"
	"github.com/owdiscord/trakt/internal/metrics"
	"github.com/owdiscord/trakt/internal/platform/correlation"
)

// Periods drives the four reconciliation jobs.
type Periods struct {
	Flush     time.Duration
	TimeTick  time.Duration
	DecayTick time.Duration
	VoiceTick time.Duration
}

// Scheduler runs the four periodic reconciliation jobs against the cache and
// storage. Each job runs to completion before its own next firing; jobs may
// run concurrently with the credit-queue drain. All grant/strip decisions
// funnel through the award coordinator, never back into the event path.
type Scheduler struct {
	cache   domain.ProgressCache
	users   domain.UserRepository
	voice   domain.VoiceRepository
	awards  domain.Awarder
	clock   clockwork.Clock
	periods Periods

	decayMagnitude int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(cache domain.ProgressCache, users domain.UserRepository, voice domain.VoiceRepository, awards domain.Awarder, clock clockwork.Clock, periods Periods, decayMagnitude int) *Scheduler {
	return &Scheduler{
		cache:          cache,
		users:          users,
		voice:          voice,
		awards:         awards,
		clock:          clock,
		periods:        periods,
		decayMagnitude: decayMagnitude,
		stopCh:         make(chan struct{}),
	}
}

// Start launches the four job loops. They run until Stop or ctx cancellation;
// an in-flight tick always finishes before the loop exits.
func (s *Scheduler) Start(ctx context.Context) {
	s.runLoop(ctx, "flush", s.periods.Flush, s.flush)
	s.runLoop(ctx, "time_tick", s.periods.TimeTick, s.timeTick)
	s.runLoop(ctx, "decay_tick", s.periods.DecayTick, s.decayTick)
	s.runLoop(ctx, "voice_tick", s.periods.VoiceTick, s.voiceTick)
}

// Stop prevents further scheduling and waits for in-flight ticks.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, name string, period time.Duration, job func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := s.clock.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.Chan():
				tickCtx := correlation.WithID(ctx, correlation.NewID())
				job(tickCtx)
				metrics.JobRunsTotal.WithLabelValues(name, "ok").Inc()
			case <-s.stopCh:
				slog.Info("Scheduler job stopped", "job", name)
				return
			case <-ctx.Done():
				slog.Info("Scheduler job context cancelled", "job", name)
				return
			}
		}
	}()
}

// flush writes every cached score back to storage, emits grants for users
// whose post-write state newly qualifies, then evicts idle cache entries.
// Grant detection happens after the write, so a user crossing the threshold
// on this cycle is caught; one crossing between cycles is caught on the next.
func (s *Scheduler) flush(ctx context.Context) {
	start := s.clock.Now()
	snapshot := s.cache.Snapshot()

	var qualified []domain.UserID
	for _, entry := range snapshot {
		newlyQualifies, err := s.users.UpsertMessageScore(ctx, entry.User, entry.Score)
		if err != nil {
			metrics.StorageErrorsTotal.WithLabelValues("upsert_message_score").Inc()
			slog.Error("Flush: failed to write progress, skipping user", "user_id", uint64(entry.User), "error", err)
			continue
		}
		if newlyQualifies {
			qualified = append(qualified, entry.User)
		}
	}

	s.cache.EvictIdle()

	for _, id := range qualified {
		s.awards.Grant(ctx, id)
	}

	metrics.FlushDuration.Observe(s.clock.Since(start).Seconds())
	slog.Debug("Flush done", "entries", len(snapshot), "qualified", len(qualified))
}

// timeTick advances the secondary time score for unawarded users who already
// cleared the message gate, and grants users the advance qualified.
func (s *Scheduler) timeTick(ctx context.Context) {
	qualified, err := s.users.AdvanceTimeScores(ctx)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("advance_time_scores").Inc()
		slog.Error("Time tick failed", "error", err)
		return
	}

	for _, id := range qualified {
		s.awards.Grant(ctx, id)
	}
	slog.Info("Time tick done", "qualified", len(qualified))
}

// decayTick runs the storage decay pass, mirrors the removals into the cache,
// decays the surviving cache entries, and strips users whose deleted record
// held the award. Ordering: the storage transaction first (atomic subtract,
// delete, sanction purge), then the external role removals.
func (s *Scheduler) decayTick(ctx context.Context) {
	result, err := s.users.DecayMessageScores(ctx)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("decay_message_scores").Inc()
		slog.Error("Decay tick failed", "error", err)
		return
	}

	// Drop removed users from the cache before the next flush so a stale
	// in-memory score cannot resurrect a deleted record.
	s.cache.RemoveUsers(result.RemovedUsers)
	s.cache.Decay(s.decayMagnitude)

	for id := range result.StrippedAwardUsers {
		s.awards.StripRemoved(ctx, id)
	}
	slog.Info("Decay tick done", "removed", len(result.RemovedUsers), "stripped", len(result.StrippedAwardUsers))
}

// voiceTick rolls daily voice sessions into week/month totals and applies the
// voice qualification rules.
func (s *Scheduler) voiceTick(ctx context.Context) {
	result, err := s.voice.VoiceTick(ctx)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("voice_tick").Inc()
		slog.Error("Voice tick failed", "error", err)
		return
	}

	for _, id := range result.Granted {
		s.awards.GrantVoice(ctx, id)
	}
	for _, id := range result.Stripped {
		s.awards.StripVoice(ctx, id)
	}
	slog.Info("Voice tick done", "granted", len(result.Granted), "stripped", len(result.Stripped))
}
