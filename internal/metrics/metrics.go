// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_sessions_created_total",
		Help: "Payment sessions created, by challenge type.",
	}, []string{"challenge_type"})

	TerminalTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_terminal_transitions_total",
		Help: "Sessions reaching a terminal status, by status.",
	}, []string{"status"})

	FingerprintTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "challenge_fingerprint_timeouts_total",
		Help: "Fingerprint steps that timed out and proceeded to the challenge step.",
	})

	ProviderFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_provider_faults_total",
		Help: "Authentication provider call failures, by call.",
	}, []string{"call"})

	VerificationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_verification_results_total",
		Help: "Transaction integrity verification outcomes.",
	}, []string{"result"})

	EvidenceAttached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "challenge_evidence_attached_total",
		Help: "Completed-challenge evidence records pushed to the order service.",
	})
)
