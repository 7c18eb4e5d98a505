package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/owdiscord/trakt/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedulerFixture struct {
	scheduler *Scheduler
	cache     *mockCache
	users     *mockUserRepo
	voice     *mockVoiceRepo
	awards    *mockAwarder
	clock     *clockwork.FakeClock
}

func newSchedulerFixture(periods Periods) *schedulerFixture {
	cache := newMockCache()
	users := newMockUserRepo()
	voice := newMockVoiceRepo()
	awards := &mockAwarder{}
	clock := clockwork.NewFakeClock()
	return &schedulerFixture{
		scheduler: NewScheduler(cache, users, voice, awards, clock, periods, 28),
		cache:     cache,
		users:     users,
		voice:     voice,
		awards:    awards,
		clock:     clock,
	}
}

func defaultPeriods() Periods {
	return Periods{
		Flush:     10 * time.Second,
		TimeTick:  3 * time.Hour,
		DecayTick: 24 * time.Hour,
		VoiceTick: 24 * time.Hour,
	}
}

// --- Flush ---

func TestFlush_WritesSnapshotAndEvicts(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())
	f.cache.snapshot = []domain.ProgressSnapshot{{User: 1, Score: 5}, {User: 2, Score: 9}}

	f.scheduler.flush(context.Background())

	assert.ElementsMatch(t, []upsertCall{{user: 1, score: 5}, {user: 2, score: 9}}, f.users.getUpserts())
	assert.Equal(t, 1, f.cache.evictCalls)
	assert.Empty(t, f.awards.getGranted())
}

func TestFlush_GrantsNewlyQualified(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())
	f.cache.snapshot = []domain.ProgressSnapshot{{User: 1, Score: 560}, {User: 2, Score: 9}}
	f.users.upsertQualifies[1] = true

	f.scheduler.flush(context.Background())

	assert.Equal(t, []domain.UserID{1}, f.awards.getGranted())
}

func TestFlush_WriteErrorSkipsUserOnly(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())
	f.cache.snapshot = []domain.ProgressSnapshot{{User: 1, Score: 5}, {User: 2, Score: 9}}
	f.users.upsertErrFor[1] = errors.New("connection refused")
	f.users.upsertQualifies[2] = true

	f.scheduler.flush(context.Background())

	assert.Equal(t, []upsertCall{{user: 2, score: 9}}, f.users.getUpserts())
	assert.Equal(t, []domain.UserID{2}, f.awards.getGranted())
	assert.Equal(t, 1, f.cache.evictCalls)
}

// --- Time tick ---

func TestTimeTick_GrantsQualified(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())
	f.users.advanceQualified = []domain.UserID{3, 4}

	f.scheduler.timeTick(context.Background())

	assert.Equal(t, []domain.UserID{3, 4}, f.awards.getGranted())
}

func TestTimeTick_StorageErrorGrantsNothing(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())
	f.users.advanceErr = errors.New("connection refused")

	f.scheduler.timeTick(context.Background())

	assert.Empty(t, f.awards.getGranted())
}

// --- Decay tick ---

func TestDecayTick_RemovesThenDecaysThenStrips(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())
	f.users.decayResult = domain.DecayResult{
		RemovedUsers:       map[domain.UserID]struct{}{1: {}, 2: {}},
		StrippedAwardUsers: map[domain.UserID]struct{}{2: {}},
	}

	f.scheduler.decayTick(context.Background())

	require.Len(t, f.cache.removed, 1)
	assert.Equal(t, map[domain.UserID]struct{}{1: {}, 2: {}}, f.cache.removed[0])
	assert.Equal(t, []int{28}, f.cache.decayed)
	assert.Equal(t, []domain.UserID{2}, f.awards.getStrippedGone())
}

func TestDecayTick_StorageErrorTouchesNothing(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())
	f.users.decayErr = errors.New("connection refused")

	f.scheduler.decayTick(context.Background())

	assert.Empty(t, f.cache.removed)
	assert.Empty(t, f.cache.decayed)
	assert.Empty(t, f.awards.getStrippedGone())
}

// --- Voice tick ---

func TestVoiceTick_AppliesDecisions(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())
	f.voice.tickResult = domain.VoiceTickResult{
		Granted:  []domain.UserID{5},
		Stripped: []domain.UserID{6},
	}

	f.scheduler.voiceTick(context.Background())

	assert.Equal(t, []domain.UserID{5}, f.awards.grantedVoice)
	assert.Equal(t, []domain.UserID{6}, f.awards.strippedVoice)
}

func TestVoiceTick_StorageErrorTouchesNothing(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())
	f.voice.tickErr = errors.New("connection refused")

	f.scheduler.voiceTick(context.Background())

	assert.Empty(t, f.awards.grantedVoice)
	assert.Empty(t, f.awards.strippedVoice)
}

// --- Loop wiring ---

func TestScheduler_TickerFiresFlush(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())
	f.cache.snapshot = []domain.ProgressSnapshot{{User: 1, Score: 5}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.scheduler.Start(ctx)
	defer f.scheduler.Stop()

	// Wait for all four job loops to block on their tickers.
	f.clock.BlockUntilContext(ctx, 4) //nolint:errcheck
	f.clock.Advance(10 * time.Second)

	require.Eventually(t, func() bool {
		return len(f.users.getUpserts()) == 1
	}, 5*time.Second, time.Millisecond)
}

func TestScheduler_StopWaitsForLoops(t *testing.T) {
	f := newSchedulerFixture(defaultPeriods())

	f.scheduler.Start(context.Background())
	f.scheduler.Stop()

	// Idempotent.
	f.scheduler.Stop()
}
