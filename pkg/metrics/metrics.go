// Package metrics exposes Prometheus counters for both generation
// loops.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationAttempts counts generator calls per loop kind and
	// attempt outcome.
	GenerationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_generation_attempts_total",
			Help: "Total generation attempts per loop kind and outcome",
		},
		[]string{"loop", "outcome"},
	)

	// DangerousRejections counts transform scripts rejected by the
	// forbidden-pattern guard before execution.
	DangerousRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datachat_dangerous_rejections_total",
			Help: "Total transform scripts rejected for forbidden patterns",
		},
	)

	// LoopExhaustions counts loops that ran out of attempts without an
	// accepted result.
	LoopExhaustions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_loop_exhaustions_total",
			Help: "Total loops that exhausted all attempts",
		},
		[]string{"loop"},
	)

	// JudgeRejections counts answers the judge sent back for another
	// attempt.
	JudgeRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datachat_judge_rejections_total",
			Help: "Total answers rejected by the judge",
		},
	)
)

// Loop label values.
const (
	LoopTransform = "transform"
	LoopAnswer    = "answer"
)

// Outcome label values.
const (
	OutcomeAccepted = "accepted"
	OutcomeRetried  = "retried"
	OutcomeFailed   = "failed"
)
