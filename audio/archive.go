package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/policypal-ai/voicegraph/observability"
)

const (
	EventArchived      observability.EventType = "audio.session_archived"
	EventArchiveFailed observability.EventType = "audio.archive_failed"
)

// Archiver copies a finished session's audio segments into a per-session
// folder and writes its transcript alongside them. Archival is best effort:
// the caller logs failures but a call never fails because its archive did.
type Archiver struct {
	store    *Store
	observer observability.Observer
}

// NewArchiver creates an Archiver over store. A nil observer means no
// events.
func NewArchiver(store *Store, observer observability.Observer) *Archiver {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Archiver{store: store, observer: observer}
}

// Archive copies every stored segment for the session into
// <root>/<sessionID>/audio.
func (a *Archiver) Archive(ctx context.Context, sessionID string) error {
	dir := filepath.Join(a.store.Root(), sessionID, "audio")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return a.fail(ctx, sessionID, fmt.Errorf("create session dir: %w", err))
	}

	segments, err := a.store.Segments(sessionID)
	if err != nil {
		return a.fail(ctx, sessionID, err)
	}
	for _, src := range segments {
		if err := copyFile(src, filepath.Join(dir, filepath.Base(src))); err != nil {
			return a.fail(ctx, sessionID, err)
		}
	}

	a.observer.OnEvent(ctx, observability.Event{
		Type:      EventArchived,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "audio.archiver",
		Data: map[string]any{
			"session_id": sessionID,
			"segments":   len(segments),
		},
	})
	return nil
}

// WriteTranscript writes the session summary lines to
// <root>/<sessionID>/transcript.txt through a temp file and rename.
func (a *Archiver) WriteTranscript(sessionID string, lines []string) error {
	dir := filepath.Join(a.store.Root(), sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	path := filepath.Join(dir, "transcript.txt")

	tmp, err := os.CreateTemp(dir, "transcript.tmp-*")
	if err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if _, err := tmp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (a *Archiver) fail(ctx context.Context, sessionID string, err error) error {
	a.observer.OnEvent(ctx, observability.Event{
		Type:      EventArchiveFailed,
		Level:     observability.LevelError,
		Timestamp: time.Now(),
		Source:    "audio.archiver",
		Data: map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		},
	})
	return fmt.Errorf("archive session %s: %w", sessionID, err)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
