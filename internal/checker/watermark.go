package checker

import (
	"sync"

	"github.com/HyphaGroup/parker/internal/search"
)

// watermark tracks batches completed out of order and reports the end cursor
// of the longest gap-free prefix of completed sequence numbers.
type watermark struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]search.Cursor
	mark    search.Cursor
}

func newWatermark(start search.Cursor) *watermark {
	return &watermark{pending: make(map[uint64]search.Cursor), mark: start}
}

// complete records batch seq as checked and returns the current watermark.
func (w *watermark) complete(seq uint64, end search.Cursor) search.Cursor {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[seq] = end
	for {
		c, ok := w.pending[w.next]
		if !ok {
			break
		}
		delete(w.pending, w.next)
		w.mark = c
		w.next++
	}
	return w.mark
}
