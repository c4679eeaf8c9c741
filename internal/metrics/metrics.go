// Package metrics exposes Prometheus counters for the change workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "optibot",
		Name:      "active_change_requests",
		Help:      "Number of change requests currently in flight",
	})

	RequestsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "optibot",
		Name:      "change_requests_expired_total",
		Help:      "Change requests discarded after idling past the timeout",
	})

	ChangesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "optibot",
		Name:      "changes_applied_total",
		Help:      "Resource patches successfully applied to the cluster",
	})

	ChangesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optibot",
		Name:      "changes_failed_total",
		Help:      "Change requests that reached a failed terminal state",
	}, []string{"stage"})

	ChangesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "optibot",
		Name:      "changes_cancelled_total",
		Help:      "Change requests cancelled by the user before applying",
	})

	ApplyConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "optibot",
		Name:      "apply_conflict_retries_total",
		Help:      "Automatic re-fetch and re-apply attempts after a patch conflict",
	})

	TicketsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optibot",
		Name:      "tickets_created_total",
		Help:      "Audit tickets recorded for applied changes",
	}, []string{"mode"}) // mode: real | placeholder

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "optibot",
		Name:      "notifications_failed_total",
		Help:      "Channel announcements that failed even after the plain-text retry",
	})

	JustificationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "optibot",
		Name:      "justification_fallbacks_total",
		Help:      "Justifications served from the deterministic template after a generation failure",
	})
)
