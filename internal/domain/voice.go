package domain

import (
	"context"
	"time"
)

// VoiceTickResult reports one daily voice reconciliation pass.
type VoiceTickResult struct {
	// Granted newly satisfy both the week and month thresholds.
	Granted []UserID
	// Stripped held the voice award but fell below half the week threshold.
	Stripped []UserID
}

// VoiceRepository stores per-day voice session durations and the rolling
// week/month summaries derived from them.
type VoiceRepository interface {
	// AddVoiceTime accumulates a finished session into today's row and the
	// running summary totals.
	AddVoiceTime(ctx context.Context, id UserID, d time.Duration) error
	// VoiceTick expires sessions older than the month window, recomputes the
	// week/month totals from the remaining rows, and returns grant/strip
	// decisions.
	VoiceTick(ctx context.Context) (VoiceTickResult, error)
	VoiceAward(ctx context.Context, id UserID) (bool, error)
	SetVoiceAward(ctx context.Context, id UserID, has bool) error
}
