// Package dispatch implements the fallback chain used for degradable
// external capabilities. A Chain tries an ordered list of backends until one
// succeeds, recording a CallRecord for every attempt; callers never see a
// backend failure as anything but a value or a single ErrExhausted.
package dispatch

import (
	"context"
	"errors"
	"time"
)

// Kind identifies which degradable capability a call belongs to.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindSynthesis     Kind = "synthesis"
)

// Status is the outcome of a single backend attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// CallRecord is the immutable accounting record for one backend attempt.
// Kind-specific fields are zero when they do not apply: SegmentCount is
// transcription-only, OutputBytes is synthesis-only, and TextLength is the
// transcript length for transcription or the input length for synthesis.
type CallRecord struct {
	Backend           string
	Kind              Kind
	Turn              int
	Status            Status
	Latency           time.Duration
	SegmentCount      int
	TextLength        int
	OutputBytes       int
	FallbackTriggered bool
	ErrorKind         string
}

// Sink receives call records as they are produced. Records for failed
// attempts are diagnostic signal and are delivered exactly like successes.
type Sink interface {
	Record(rec CallRecord)
}

// ErrExhausted reports that every backend in a chain failed.
var ErrExhausted = errors.New("all backends failed")

// errorKind maps a backend error to the record's error classification.
func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CANCELLED"
	default:
		return "BACKEND_ERROR"
	}
}
