package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ExecCapture records one utterance by running an external command such as
// arecord or sox, with the output WAV path appended to the configured args.
type ExecCapture struct {
	command string
	args    []string
}

// NewExecCapture creates a capture that runs command with args plus the
// output file path.
func NewExecCapture(command string, args ...string) *ExecCapture {
	return &ExecCapture{command: command, args: args}
}

func (c *ExecCapture) Capture(ctx context.Context) ([]byte, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("voicegraph-capture-%d.wav", os.Getpid()))
	defer os.Remove(path)

	args := append(append([]string(nil), c.args...), path)
	cmd := exec.CommandContext(ctx, c.command, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("capture %s: %w: %s", c.command, err, out)
	}

	wav, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read captured audio: %w", err)
	}
	return wav, nil
}

// SourceCapture records through a Recorder over a PCM sample source and
// wraps the result as WAV, for in-process capture devices.
type SourceCapture struct {
	recorder   *Recorder
	sampleRate int
}

// NewSourceCapture creates a capture over source with params.
func NewSourceCapture(source Source, params RecordParams) *SourceCapture {
	params = params.withDefaults()
	return &SourceCapture{
		recorder:   NewRecorder(source, params),
		sampleRate: params.SampleRate,
	}
}

func (c *SourceCapture) Capture(ctx context.Context) ([]byte, error) {
	samples, err := c.recorder.Record(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeWAV(samples, c.sampleRate), nil
}
