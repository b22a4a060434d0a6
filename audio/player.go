package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Player plays synthesized audio back to the caller.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// ExecPlayer plays audio by handing a temp file to an external command such
// as aplay or afplay. The file path is appended to the configured args.
type ExecPlayer struct {
	command string
	args    []string
}

// NewExecPlayer creates a player that runs command with args plus the audio
// file path.
func NewExecPlayer(command string, args ...string) *ExecPlayer {
	return &ExecPlayer{command: command, args: args}
}

func (p *ExecPlayer) Play(ctx context.Context, wav []byte) error {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("voicegraph-play-%d.wav", os.Getpid()))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return fmt.Errorf("write playback file: %w", err)
	}
	defer os.Remove(path)

	args := append(append([]string(nil), p.args...), path)
	cmd := exec.CommandContext(ctx, p.command, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("playback %s: %w: %s", p.command, err, out)
	}
	return nil
}

// NoOpPlayer discards audio. Used when the session runs text-only or audio
// output is handled elsewhere, as in the HTTP server.
type NoOpPlayer struct{}

func (NoOpPlayer) Play(context.Context, []byte) error { return nil }
