package relay

import "strings"

const DefaultBatchSize = 5

// Batcher groups provider deltas so the client receives one chunk event per
// batch instead of one per token.
type Batcher struct {
	size  int
	parts []string
	total strings.Builder
}

func NewBatcher(size int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{size: size, parts: make([]string, 0, size)}
}

// Add records a delta and returns the joined batch once it is full. Empty
// deltas are ignored.
func (b *Batcher) Add(delta string) (string, bool) {
	if delta == "" {
		return "", false
	}
	b.total.WriteString(delta)
	b.parts = append(b.parts, delta)
	if len(b.parts) < b.size {
		return "", false
	}
	return b.Flush()
}

// Flush returns whatever is buffered
func (b *Batcher) Flush() (string, bool) {
	if len(b.parts) == 0 {
		return "", false
	}
	chunk := strings.Join(b.parts, "")
	b.parts = b.parts[:0]
	return chunk, true
}

// Text is everything added so far
func (b *Batcher) Text() string {
	return b.total.String()
}
