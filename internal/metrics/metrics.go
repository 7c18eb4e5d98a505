package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Progress cache metrics
var (
	// CreditsTotal tracks credit submissions by outcome (applied, rate_limited,
	// seeded, skipped_award, dropped_queue_full).
	CreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trakt_credits_total",
			Help: "Credit submissions by outcome",
		},
		[]string{"outcome"},
	)

	// CacheSize tracks the number of cache-resident progress records.
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trakt_progress_cache_size",
			Help: "Number of cache-resident progress records",
		},
	)
)

// Reconciliation job metrics
var (
	// JobRunsTotal tracks scheduled job executions by job and status.
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trakt_job_runs_total",
			Help: "Scheduled job executions by job and status",
		},
		[]string{"job", "status"},
	)

	// FlushDuration tracks flush job duration in seconds.
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trakt_flush_duration_seconds",
			Help:    "Flush job duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// StorageErrorsTotal tracks storage call failures by operation.
	StorageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trakt_storage_errors_total",
			Help: "Storage call failures by operation",
		},
		[]string{"operation"},
	)
)

// Award metrics
var (
	// AwardTransitionsTotal tracks grants and strips by source (message, voice)
	// and direction (grant, strip).
	AwardTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trakt_award_transitions_total",
			Help: "Award grants and strips by source and direction",
		},
		[]string{"source", "direction"},
	)

	// RoleCallFailuresTotal tracks failed role-assignment side effects.
	RoleCallFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trakt_role_call_failures_total",
			Help: "Failed role grant/revoke calls",
		},
	)
)

// Follow and sanction metrics
var (
	// FollowAlertsTotal tracks follow notifications fired.
	FollowAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trakt_follow_alerts_total",
			Help: "Follow notifications fired",
		},
	)

	// SanctionsTotal tracks moderation penalties applied by kind.
	SanctionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trakt_sanctions_total",
			Help: "Moderation penalties applied by kind",
		},
		[]string{"kind"},
	)
)
