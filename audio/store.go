package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store persists per-turn audio segments under <root>/audio_segments, one
// WAV file per captured or synthesized utterance. File names carry the
// session id prefix so a session's segments can be enumerated later.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir, creating the segments directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "audio_segments"), 0o755); err != nil {
		return nil, fmt.Errorf("create segments dir: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the logs root the store writes under.
func (s *Store) Root() string { return s.root }

// SaveSegment writes one turn's audio and returns the file path. The write
// goes through a temp file and rename so readers never see partial segments.
func (s *Store) SaveSegment(sessionID string, seq int, role string, wav []byte) (string, error) {
	name := fmt.Sprintf("%s_turn%02d_%s.wav", sessionID, seq, role)
	path := filepath.Join(s.root, "audio_segments", name)

	tmp, err := os.CreateTemp(filepath.Dir(path), name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("save segment: %w", err)
	}
	if _, err := tmp.Write(wav); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save segment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save segment: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save segment: %w", err)
	}
	return path, nil
}

// Segments returns the paths of all stored segments for a session, in name
// order.
func (s *Store) Segments(sessionID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "audio_segments"))
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), sessionID+"_") {
			continue
		}
		paths = append(paths, filepath.Join(s.root, "audio_segments", e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Read returns the audio bytes of a stored segment by file name. Names are
// confined to the segments directory.
func (s *Store) Read(name string) ([]byte, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("read segment: invalid name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.root, "audio_segments", name))
	if err != nil {
		return nil, fmt.Errorf("read segment: %w", err)
	}
	return data, nil
}
