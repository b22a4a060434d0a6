package knowledge

import "strings"

// Chunk defaults match the ingestion pipeline's splitter settings.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Chunk splits text into overlapping pieces of at most size characters,
// breaking on word boundaries. Overlap characters from the tail of each chunk
// seed the next one so sentences spanning a boundary stay retrievable.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Carry trailing words up to overlap characters into the next chunk.
		carried := []string{}
		carriedLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			wordLen := len(current[i]) + 1
			if carriedLen+wordLen > overlap {
				break
			}
			carried = append([]string{current[i]}, carried...)
			carriedLen += wordLen
		}
		current = carried
		currentLen = carriedLen
	}

	for _, word := range words {
		wordLen := len(word)
		if currentLen > 0 {
			wordLen++ // joining space
		}
		if currentLen+wordLen > size && len(current) > 0 {
			flush()
			if currentLen > 0 {
				wordLen = len(word) + 1
			} else {
				wordLen = len(word)
			}
		}
		current = append(current, word)
		currentLen += wordLen
	}

	if len(current) > 0 {
		last := strings.Join(current, " ")
		// Skip an all-overlap tail that is already covered by the previous chunk.
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], last) {
			chunks = append(chunks, last)
		}
	}

	return chunks
}
