package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) RequestCompleted(route string, status int, duration time.Duration)          {}
func (n *NoopSink) UpstreamCallCompleted(service, statusClass string, duration time.Duration) {}
func (n *NoopSink) RateLimitWaited(service string, wait time.Duration)                        {}
func (n *NoopSink) TokenExchange(outcome string, attempts int)                                {}
func (n *NoopSink) WorkflowOutcome(workflow, outcome string)                                  {}

// OrNoop returns s, or a NoopSink when s is nil.
func OrNoop(s Sink) Sink {
	if s == nil {
		return NewNoopSink()
	}
	return s
}
