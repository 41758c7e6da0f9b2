package store

// lruEntry is one snapshot of a key's access-sequence number pushed onto the
// heap at touch time. Entries go stale when the same key is touched again
// (the accessSeq map always holds the authoritative, latest sequence); a
// stale entry is simply skipped when popped, rather than removed eagerly.
type lruEntry struct {
	key string
	seq int64
}

// lruHeap is a container/heap min-heap ordered by access-sequence, so the
// least-recently-used key is always at the root.
type lruHeap []lruEntry

func (h lruHeap) Len() int            { return len(h) }
func (h lruHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h lruHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *lruHeap) Push(x any)         { *h = append(*h, x.(lruEntry)) }
func (h *lruHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
