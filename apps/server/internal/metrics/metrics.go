// Package metrics holds the process-wide prometheus collectors served at /metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pokerdice/match"
)

var (
	MatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pokerdice",
		Name:      "matches_created_total",
		Help:      "Matches created and started through the lobby.",
	})
	MatchesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pokerdice",
		Name:      "matches_active",
		Help:      "Match rooms currently running.",
	})
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pokerdice",
		Name:      "events_total",
		Help:      "Match events emitted, by type.",
	}, []string{"type"})
	Rejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pokerdice",
		Name:      "actions_rejected_total",
		Help:      "Player actions rejected by the engine, by reason.",
	}, []string{"reason"})
	SettlementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pokerdice",
		Name:      "settlement_failures_total",
		Help:      "Transitions aborted because the balance store failed.",
	})
	ActionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pokerdice",
		Name:      "action_duration_seconds",
		Help:      "Time spent applying an action inside a room, persistence included.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"action"})
)

// ObserveEvents counts every emitted event by its type.
func ObserveEvents(events []match.Event) {
	for _, e := range events {
		Events.WithLabelValues(string(e.Type)).Inc()
	}
}

// ObserveAction records latency and, for failures, the rejection reason.
func ObserveAction(action string, started time.Time, err error) {
	ActionLatency.WithLabelValues(action).Observe(time.Since(started).Seconds())
	if err == nil {
		return
	}
	if errors.Is(err, match.ErrSettlementFailed) || errors.Is(err, match.ErrInsufficientFunds) {
		SettlementFailures.Inc()
	}
	Rejected.WithLabelValues(Reason(err)).Inc()
}

// Reason maps an engine error to a low-cardinality label.
func Reason(err error) string {
	switch {
	case errors.Is(err, match.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, match.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, match.ErrTurnAlreadyFinished):
		return "turn_finished"
	case errors.Is(err, match.ErrRollLimitExceeded):
		return "roll_limit"
	case errors.Is(err, match.ErrMatchFinished):
		return "match_finished"
	case errors.Is(err, match.ErrNotFound):
		return "not_found"
	case errors.Is(err, match.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, match.ErrSettlementFailed):
		return "settlement"
	default:
		var ise match.InvalidStateError
		if errors.As(err, &ise) {
			return "invalid_state"
		}
		return "internal"
	}
}
