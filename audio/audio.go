// Package audio provides the capture, playback, and file collaborators for
// voice sessions: a silence-detecting recorder over a sample source, a
// player, and the segment store and archiver that persist a call's audio
// under a logs root.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// Recording-parameter defaults matching the capture pipeline's tuning.
const (
	DefaultSampleRate        = 16000
	DefaultMaxDuration       = 15 * time.Second
	DefaultSilenceDuration   = 2 * time.Second
	DefaultActivityThreshold = 500.0

	chunkInterval = 100 * time.Millisecond
)

// ErrNoSpeech reports that a recording window elapsed without any voice
// activity.
var ErrNoSpeech = errors.New("no speech detected")

// Source delivers mono 16-bit PCM samples in small chunks. ReadChunk blocks
// until n samples are available and returns io.EOF when the stream ends.
type Source interface {
	ReadChunk(ctx context.Context, n int) ([]int16, error)
}

// RecordParams tunes silence-detected capture. Zero fields take the package
// defaults.
type RecordParams struct {
	SampleRate        int
	MaxDuration       time.Duration
	SilenceDuration   time.Duration
	ActivityThreshold float64
}

func (p RecordParams) withDefaults() RecordParams {
	if p.SampleRate == 0 {
		p.SampleRate = DefaultSampleRate
	}
	if p.MaxDuration == 0 {
		p.MaxDuration = DefaultMaxDuration
	}
	if p.SilenceDuration == 0 {
		p.SilenceDuration = DefaultSilenceDuration
	}
	if p.ActivityThreshold == 0 {
		p.ActivityThreshold = DefaultActivityThreshold
	}
	return p
}

// Recorder captures one utterance from a Source, stopping once the speaker
// has been silent for the configured duration or the window elapses.
type Recorder struct {
	source Source
	params RecordParams
}

// NewRecorder creates a Recorder over source with the given parameters.
func NewRecorder(source Source, params RecordParams) *Recorder {
	return &Recorder{source: source, params: params.withDefaults()}
}

// Record reads chunks until silence follows speech, the window fills, or the
// source ends. Capture before the stop point is kept; a window with no voice
// activity at all returns ErrNoSpeech.
func (r *Recorder) Record(ctx context.Context) ([]int16, error) {
	chunkSamples := int(float64(r.params.SampleRate) * chunkInterval.Seconds())
	maxChunks := int(r.params.MaxDuration / chunkInterval)
	silenceChunks := int(r.params.SilenceDuration / chunkInterval)

	var recording []int16
	started := false
	silent := 0

	for i := 0; i < maxChunks; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := r.source.ReadChunk(ctx, chunkSamples)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read audio chunk: %w", err)
		}
		recording = append(recording, chunk...)

		if Active(chunk, r.params.ActivityThreshold) {
			started = true
			silent = 0
		} else if started {
			silent++
		}
		if started && silent > silenceChunks {
			break
		}
	}

	if !started {
		return nil, ErrNoSpeech
	}
	return recording, nil
}

// Active reports whether a chunk's RMS energy crosses the voice activity
// threshold.
func Active(chunk []int16, threshold float64) bool {
	return rms(chunk) > threshold
}

func rms(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, s := range chunk {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(chunk)))
}
