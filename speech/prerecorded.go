package speech

import (
	"os"
	"path/filepath"
	"strings"
)

// Phrase maps a canned utterance to a pre-recorded audio file. Threshold is
// the minimum similarity ratio for a match; near-1.0 demands an exact phrase.
type Phrase struct {
	Text      string
	File      string
	Threshold float64
}

// DefaultPhrases is the canned-response table for responses the agent speaks
// often enough that re-synthesizing them is wasted latency.
var DefaultPhrases = []Phrase{
	{Text: "Hi, this is PolicyPal AI from ICICI Lombard Insurance. How can I help you today?", File: "greeting.wav", Threshold: 0.9},
	{Text: "I'm sorry, but I currently don't have that information.", File: "common/no_information.wav", Threshold: 0.8},
	{Text: "Let me check that for you.", File: "common/checking.wav", Threshold: 0.85},
	{Text: "Thank you for calling.", File: "common/thank_you.wav", Threshold: 0.85},
	{Text: "Is there anything else I can help you with?", File: "common/anything_else.wav", Threshold: 0.8},
	{Text: "Could you please rephrase that?", File: "common/please_rephrase.wav", Threshold: 0.85},
	{Text: "One moment please.", File: "common/one_moment.wav", Threshold: 0.85},
}

// Cache serves pre-recorded audio for phrases close enough to a canned
// response. It is an optional pre-check in front of the synthesis chain:
// a cache hit skips synthesis entirely and records no synthesis call.
type Cache struct {
	dir     string
	phrases []Phrase
}

// NewCache creates a Cache over audio files under dir. With no phrases
// given, DefaultPhrases apply.
func NewCache(dir string, phrases []Phrase) *Cache {
	if phrases == nil {
		phrases = DefaultPhrases
	}
	return &Cache{dir: dir, phrases: phrases}
}

// Lookup returns the audio for the best-matching canned phrase at or above
// its threshold, or false when no phrase qualifies or its file is missing.
func (c *Cache) Lookup(text string) ([]byte, bool) {
	best := -1
	bestScore := 0.0

	normalized := normalize(text)
	for i, p := range c.phrases {
		score := similarity(normalized, normalize(p.Text))
		if score >= p.Threshold && score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return nil, false
	}

	audio, err := os.ReadFile(filepath.Join(c.dir, filepath.FromSlash(c.phrases[best].File)))
	if err != nil {
		return nil, false
	}
	return audio, true
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// similarity is the classic matching-blocks ratio: 2*M/T, where M is the
// total length of recursively matched common substrings and T the combined
// length of both inputs. 1.0 means identical, 0.0 means nothing in common.
func similarity(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 1.0
	}
	matched := matchLen(a, b)
	return 2.0 * float64(matched) / float64(len(a)+len(b))
}

func matchLen(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchLen(a[:ai], b[:bi])
	total += matchLen(a[ai+size:], b[bi+size:])
	return total
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					ai = i - size
					bi = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return ai, bi, size
}
