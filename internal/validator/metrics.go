package validator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "bridge_validator"

// Metrics lives on a per-node registry so several nodes can share a process.
type Metrics struct {
	Registry *prometheus.Registry

	ClaimsAccepted     prometheus.Counter
	DepositsValidated  prometheus.Counter
	DepositsRejected   *prometheus.CounterVec
	BroadcastFailures  prometheus.Counter
	SignaturesProduced prometheus.Counter
	SigningFailures    prometheus.Counter
	MintsSubmitted     prometheus.Counter
	MintsFailed        prometheus.Counter
	QuorumWait         prometheus.Histogram
	PendingClaims      prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		ClaimsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "claims_accepted_total",
			Help:      "Mint claims added to the ledger.",
		}),
		DepositsValidated: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deposits_validated_total",
			Help:      "Deposits that passed the deposit gate.",
		}),
		DepositsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deposits_rejected_total",
			Help:      "Deposits failed by the deposit gate, by field.",
		}, []string{"field"}),
		BroadcastFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcast_failures_total",
			Help:      "Peer sends that failed after retries.",
		}),
		SignaturesProduced: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signatures_produced_total",
			Help:      "Joint signatures combined and recovered.",
		}),
		SigningFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signing_failures_total",
			Help:      "Signing rounds that ended without a signature.",
		}),
		MintsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mints_submitted_total",
			Help:      "Mint transactions sent by this node.",
		}),
		MintsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mints_failed_total",
			Help:      "Mints aborted by policy, proof or submission failures.",
		}),
		QuorumWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "quorum_wait_seconds",
			Help:      "Time spent waiting for partial signatures.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		PendingClaims: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_claims",
			Help:      "Claims waiting for their deposit to confirm.",
		}),
	}
}
