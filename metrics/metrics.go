// Package metrics accumulates per-call outcomes into session-level
// statistics. The accumulator is an append-only sink: no record is ever
// dropped, failed attempts included.
package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/policypal-ai/voicegraph/dispatch"
)

// Snapshot is a read-only view of accumulated metrics, safe to retain after
// the session ends.
type Snapshot struct {
	Records              []dispatch.CallRecord
	TranscriptionLatency time.Duration
	SynthesisLatency     time.Duration
	FallbackCount        int
	Errors               []string
}

// CallCount returns the number of records for the given kind, successes and
// failures alike.
func (s Snapshot) CallCount(kind dispatch.Kind) int {
	n := 0
	for _, rec := range s.Records {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}

// Accumulator aggregates call records for one session. It implements
// dispatch.Sink. A mutex rather than atomics keeps the ordered record list
// consistent with the running sums.
type Accumulator struct {
	mu            sync.Mutex
	records       []dispatch.CallRecord
	latencyByKind map[dispatch.Kind]time.Duration
	fallbackCount int
	errors        []string
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		latencyByKind: make(map[dispatch.Kind]time.Duration),
	}
}

// Record appends a call record and updates the running sums.
func (a *Accumulator) Record(rec dispatch.CallRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = append(a.records, rec)
	a.latencyByKind[rec.Kind] += rec.Latency
	if rec.FallbackTriggered {
		a.fallbackCount++
	}
}

// RecordError appends an unrecoverable-error descriptor.
func (a *Accumulator) RecordError(desc string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, desc)
}

// Snapshot returns a defensive copy of the accumulated state.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		Records:              slices.Clone(a.records),
		TranscriptionLatency: a.latencyByKind[dispatch.KindTranscription],
		SynthesisLatency:     a.latencyByKind[dispatch.KindSynthesis],
		FallbackCount:        a.fallbackCount,
		Errors:               slices.Clone(a.errors),
	}
}
