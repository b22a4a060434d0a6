// Package knowledge provides the in-process vector index behind retrieval:
// cosine-similarity search over embedded document chunks, with JSON file
// persistence so an ingested corpus survives restarts.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/policypal-ai/voicegraph/rag"
)

var (
	ErrLoadFailed = errors.New("index load failed")
	ErrSaveFailed = errors.New("index save failed")
)

// Document is one embedded chunk with its source metadata.
type Document struct {
	Text      string            `json:"text"`
	Source    map[string]string `json:"source,omitempty"`
	Embedding []float32         `json:"embedding"`
}

// Index is a flat cosine-similarity index. Writes happen at ingestion time;
// after startup it is read-mostly and safe for concurrent sessions.
type Index struct {
	mu   sync.RWMutex
	docs []Document
	path string
}

// NewIndex creates an empty in-memory index with no persistence.
func NewIndex() *Index {
	return &Index{}
}

// Open loads an index from path, or returns an empty index bound to path
// when the file does not exist yet.
func Open(path string) (*Index, error) {
	idx := &Index{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	if err := json.Unmarshal(data, &idx.docs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return idx, nil
}

// Add appends documents to the index.
func (x *Index) Add(docs ...Document) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs = append(x.docs, docs...)
}

// Count returns the number of indexed documents.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Search returns up to k hits ordered by descending cosine similarity.
func (x *Index) Search(_ context.Context, embedding []float32, k int) ([]rag.Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || len(x.docs) == 0 {
		return nil, nil
	}

	type scored struct {
		doc   Document
		score float64
	}

	candidates := make([]scored, 0, len(x.docs))
	for _, doc := range x.docs {
		score := cosine(embedding, doc.Embedding)
		if math.IsNaN(score) {
			continue
		}
		candidates = append(candidates, scored{doc: doc, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if k > len(candidates) {
		k = len(candidates)
	}

	hits := make([]rag.Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = rag.Hit{
			Text:   candidates[i].doc.Text,
			Source: candidates[i].doc.Source,
		}
	}
	return hits, nil
}

// Save persists the index to its bound path via an atomic temp-file rename.
func (x *Index) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.path == "" {
		return fmt.Errorf("%w: index has no path", ErrSaveFailed)
	}

	data, err := json.Marshal(x.docs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	dir := filepath.Dir(x.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := os.Rename(tmpName, x.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.NaN()
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
