package app

import (
	"context"
	"log/slog"

	"github.com/owdiscord/trakt/internal/domain"
	"github.com/owdiscord/trakt/internal/metrics"
)

const sanctionQueueSize = 256

// DelayPeriods maps sanction kinds to the number of time-score periods the
// penalty sets a user back.
type DelayPeriods struct {
	Warn int
	Mute int
	Ban  int
}

// SanctionProcessor applies moderation penalties relayed from the moderation
// bot's log channel. Penalties arrive on a queue drained by one goroutine so
// storage writes per user stay ordered with respect to a single producer.
type SanctionProcessor struct {
	users  domain.UserRepository
	delays DelayPeriods

	penaltyCh chan domain.Penalty
	doneCh    chan struct{}
}

func NewSanctionProcessor(users domain.UserRepository, delays DelayPeriods) *SanctionProcessor {
	return &SanctionProcessor{
		users:     users,
		delays:    delays,
		penaltyCh: make(chan domain.Penalty, sanctionQueueSize),
		doneCh:    make(chan struct{}),
	}
}

// Start begins draining the penalty queue.
func (p *SanctionProcessor) Start() {
	go p.run()
}

// Submit enqueues a penalty. Never blocks the event layer; a saturated queue
// drops the penalty with a logged warning.
func (p *SanctionProcessor) Submit(penalty domain.Penalty) {
	select {
	case p.penaltyCh <- penalty:
	default:
		slog.Warn("Sanction queue saturated, dropping penalty", "user_id", uint64(penalty.User), "kind", penalty.Kind.String())
	}
}

// Stop closes the queue and waits for queued penalties to apply.
func (p *SanctionProcessor) Stop() {
	close(p.penaltyCh)
	<-p.doneCh
}

func (p *SanctionProcessor) run() {
	defer close(p.doneCh)
	ctx := context.Background()

	for penalty := range p.penaltyCh {
		var err error
		switch penalty.Kind {
		case domain.SanctionWarn:
			err = p.users.ApplySanction(ctx, penalty.User, penalty.Kind, p.delays.Warn)
		case domain.SanctionMute:
			err = p.users.ApplySanction(ctx, penalty.User, penalty.Kind, p.delays.Mute)
		case domain.SanctionBan:
			err = p.users.ApplySanction(ctx, penalty.User, penalty.Kind, p.delays.Ban)
		case domain.SanctionUnmute, domain.SanctionUnban:
			err = p.users.ClearSanction(ctx, penalty.User, penalty.Kind)
		default:
			slog.Warn("Unknown sanction kind, ignoring", "user_id", uint64(penalty.User))
			continue
		}

		if err != nil {
			metrics.StorageErrorsTotal.WithLabelValues("apply_sanction").Inc()
			slog.Error("Failed to apply sanction", "user_id", uint64(penalty.User), "kind", penalty.Kind.String(), "error", err)
			continue
		}

		metrics.SanctionsTotal.WithLabelValues(penalty.Kind.String()).Inc()
		slog.Info("Sanction applied", "user_id", uint64(penalty.User), "kind", penalty.Kind.String())
	}
}
