package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/owdiscord/trakt/internal/domain"
	"github.com/owdiscord/trakt/internal/metrics"
)

// VoiceTracker turns voice state changes into per-day session durations.
// A join stamps the session start; a leave accumulates the elapsed time into
// storage. Sessions spanning restarts are lost, consistent with the rest of
// the system's at-most-one-interval loss policy.
type VoiceTracker struct {
	voice domain.VoiceRepository
	clock clockwork.Clock

	mu       sync.Mutex
	sessions map[domain.UserID]time.Time
}

func NewVoiceTracker(voice domain.VoiceRepository, clock clockwork.Clock) *VoiceTracker {
	return &VoiceTracker{
		voice:    voice,
		clock:    clock,
		sessions: make(map[domain.UserID]time.Time),
	}
}

// OnVoiceState records a join or leave. Repeated joins (channel moves) keep
// the original session start.
func (v *VoiceTracker) OnVoiceState(ctx context.Context, id domain.UserID, inChannel bool) {
	if inChannel {
		v.mu.Lock()
		if _, ok := v.sessions[id]; !ok {
			v.sessions[id] = v.clock.Now()
		}
		v.mu.Unlock()
		return
	}

	v.mu.Lock()
	start, ok := v.sessions[id]
	delete(v.sessions, id)
	v.mu.Unlock()

	if !ok {
		return
	}

	if err := v.voice.AddVoiceTime(ctx, id, v.clock.Since(start)); err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("add_voice_time").Inc()
		slog.Error("Failed to record voice session", "user_id", uint64(id), "error", err)
	}
}
