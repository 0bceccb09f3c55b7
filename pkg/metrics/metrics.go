// Package metrics defines the Prometheus instruments sift exposes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmailsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_emails_evaluated_total",
		Help: "Number of email snapshots the rule engine evaluated",
	})

	RuleMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sift_rule_matches_total",
		Help: "Number of times each rule matched an email",
	}, []string{"rule"})

	ActionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sift_actions_applied_total",
		Help: "Number of rule actions applied, by action type",
	}, []string{"action"})

	ApplyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_apply_failures_total",
		Help: "Number of emails whose action application failed",
	})

	VersionsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_versions_written_total",
		Help: "Number of new email versions recorded in the store",
	})

	MessagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_messages_fetched_total",
		Help: "Number of messages fetched from the mailbox",
	})
)
