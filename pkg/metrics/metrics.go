// Package metrics records broker activity. Labels not known to a recorder are ignored.
package metrics

import "time"

// Label keys understood by the Prometheus recorder
const (
	LabelMethod  = "method"
	LabelOutcome = "outcome"
	LabelKind    = "kind"
)

// Request outcomes
const (
	OutcomeApproved    = "approved"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
	OutcomeUnsupported = "unsupported"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
