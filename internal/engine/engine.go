package engine

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

// Repository is the subset of storage operations the cache needs: seeding a
// previously-unseen user and loading the award-holder skip set at startup.
type Repository interface {
	MessageScore(ctx context.Context, id domain.UserID) (int, error)
	AwardHolders(ctx context.Context) (map[domain.UserID]struct{}, error)
}

const creditQueueSize = 4096

// --- Command types ---

type cacheCmd interface{ cacheCmd() }

type cmdCredit struct {
	user domain.UserID
}

func (cmdCredit) cacheCmd() {}

type cmdOverride struct {
	user   domain.UserID
	value  int
	doneCh chan struct{}
}

func (cmdOverride) cacheCmd() {}

type cmdDecay struct {
	amount int
}

func (cmdDecay) cacheCmd() {}

type cmdStop struct {
	doneCh chan struct{}
}

func (cmdStop) cacheCmd() {}

// --- Cache ---

// progress is one cache-resident record. lastCredit only moves forward;
// entries idle past the message timeout are evicted by the flush job, at
// which point storage is the source of truth again.
type progress struct {
	score      int
	lastCredit time.Time
}

// Cache is the in-memory write-back cache of per-user message progress.
// Credits arrive on a buffered command channel drained by a single goroutine,
// so no two mutations of the same record interleave. The periodic jobs read
// and trim the map concurrently under the RWMutex.
type Cache struct {
	cmdCh   chan cacheCmd
	repo    Repository
	clock   clockwork.Clock
	timeout time.Duration
	ceiling int

	mu      sync.RWMutex
	pending map[domain.UserID]progress
	awarded map[domain.UserID]struct{}
}

// NewCache creates the progress cache. timeout is the per-user minimum
// interval between credits; ceiling is the message award threshold scores
// are clamped to.
func NewCache(repo Repository, clock clockwork.Clock, timeout time.Duration, ceiling int) *Cache {
	return &Cache{
		cmdCh:   make(chan cacheCmd, creditQueueSize),
		repo:    repo,
		clock:   clock,
		timeout: timeout,
		ceiling: ceiling,
		pending: make(map[domain.UserID]progress),
		awarded: make(map[domain.UserID]struct{}),
	}
}

// Start loads the award-holder skip set and begins draining the credit queue.
func (c *Cache) Start(ctx context.Context) error {
	holders, err := c.repo.AwardHolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load award holders: %w", err)
	}

	c.mu.Lock()
	c.awarded = holders
	c.mu.Unlock()

	go c.run()
	return nil
}

func (c *Cache) run() {
	ctx := context.Background()
	for cmd := range c.cmdCh {
		switch cc := cmd.(type) {
		case cmdCredit:
			c.handleCredit(ctx, cc.user)

		case cmdOverride:
			c.mu.Lock()
			c.pending[cc.user] = progress{score: cc.value, lastCredit: c.clock.Now()}
			metrics.CacheSize.Set(float64(len(c.pending)))
			c.mu.Unlock()
			close(cc.doneCh)

		case cmdDecay:
			c.mu.Lock()
			for id, p := range c.pending {
				p.score -= cc.amount
				c.pending[id] = p
			}
			c.mu.Unlock()

		case cmdStop:
			close(cc.doneCh)
			return
		}
	}
}

func (c *Cache) handleCredit(ctx context.Context, user domain.UserID) {
	c.mu.RLock()
	_, isAwarded := c.awarded[user]
	p, cached := c.pending[user]
	c.mu.RUnlock()

	if isAwarded {
		metrics.CreditsTotal.WithLabelValues("skipped_award").Inc()
		return
	}

	now := c.clock.Now()

	if cached {
		if now.Sub(p.lastCredit) < c.timeout {
			metrics.CreditsTotal.WithLabelValues("rate_limited").Inc()
			slog.Debug("Credit dropped, user in timeout", "user_id", uint64(user))
			return
		}
		p.score = min(p.score+1, c.ceiling)
		p.lastCredit = now

		c.mu.Lock()
		c.pending[user] = p
		c.mu.Unlock()

		metrics.CreditsTotal.WithLabelValues("applied").Inc()
		return
	}

	// A user we have not cached cannot have been in a rate-limit timeout, so
	// seed from storage and credit unconditionally.
	score, err := c.repo.MessageScore(ctx, user)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("message_score").Inc()
		slog.Error("Failed to seed progress from storage, credit lost", "user_id", uint64(user), "error", err)
		return
	}

	c.mu.Lock()
	c.pending[user] = progress{score: min(score+1, c.ceiling), lastCredit: now}
	metrics.CacheSize.Set(float64(len(c.pending)))
	c.mu.Unlock()

	metrics.CreditsTotal.WithLabelValues("seeded").Inc()
}

// --- Public API ---

// SubmitProgress enqueues a credit for the user. Never blocks; a saturated
// queue drops the credit (storage catches up on the user's next message).
func (c *Cache) SubmitProgress(id domain.UserID) {
	select {
	case c.cmdCh <- cmdCredit{user: id}:
	default:
		metrics.CreditsTotal.WithLabelValues("dropped_queue_full").Inc()
		slog.Warn("Credit queue saturated, dropping credit", "user_id", uint64(id))
	}
}

// MessageScoreForUser is a cache-only read. Absent users are not populated;
// the caller falls back to storage.
func (c *Cache) MessageScoreForUser(id domain.UserID) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pending[id]
	return p.score, ok
}

// OverrideMessageScore unconditionally sets the score and resets the
// rate-limit window. Returns once the override is visible to readers.
func (c *Cache) OverrideMessageScore(id domain.UserID, value int) {
	doneCh := make(chan struct{})
	c.cmdCh <- cmdOverride{user: id, value: value, doneCh: doneCh}
	<-doneCh
}

// Decay subtracts amount from every cached score. Scores may go negative in
// cache; the storage-side decay deletes the backing record independently.
func (c *Cache) Decay(amount int) {
	c.cmdCh <- cmdDecay{amount: amount}
}

// MarkAwarded adds a user to the skip set so further credits are ignored.
func (c *Cache) MarkAwarded(id domain.UserID) {
	c.mu.Lock()
	c.awarded[id] = struct{}{}
	delete(c.pending, id)
	c.mu.Unlock()
}

// Unaward removes a user from the skip set after a strip so they can accrue
// progress again.
func (c *Cache) Unaward(id domain.UserID) {
	c.mu.Lock()
	delete(c.awarded, id)
	c.mu.Unlock()
}

// Snapshot copies all cache-resident entries for the flush job.
func (c *Cache) Snapshot() []domain.ProgressSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make([]domain.ProgressSnapshot, 0, len(c.pending))
	for id, p := range c.pending {
		snap = append(snap, domain.ProgressSnapshot{User: id, Score: p.score})
	}
	return snap
}

// EvictIdle drops entries whose last credit is older than the message
// timeout. Safe: the user's next message re-seeds from storage, and the flush
// job has already written their score back.
func (c *Cache) EvictIdle() {
	now := c.clock.Now()
	c.mu.Lock()
	for id, p := range c.pending {
		if now.Sub(p.lastCredit) > c.timeout {
			delete(c.pending, id)
		}
	}
	metrics.CacheSize.Set(float64(len(c.pending)))
	c.mu.Unlock()
}

// RemoveUsers drops cache entries for users whose storage record the decay
// pass deleted, so a stale in-memory score cannot resurrect them via flush.
func (c *Cache) RemoveUsers(ids map[domain.UserID]struct{}) {
	c.mu.Lock()
	for id := range ids {
		delete(c.pending, id)
	}
	metrics.CacheSize.Set(float64(len(c.pending)))
	c.mu.Unlock()
}

// Stop drains queued commands and stops the worker.
func (c *Cache) Stop() {
	doneCh := make(chan struct{})
	c.cmdCh <- cmdStop{doneCh: doneCh}
	<-doneCh
}
