package orderbook

import "container/list"

// seqHeap implements heap.Interface over the head of each crossing price
// level (oldest arrival on top). Matching pops the oldest eligible order
// across all levels and pushes that level's next order back in.
// Use container/heap package to manipulate this heap (Init, Push, Pop)
type seqHeap []*list.Element

func (h seqHeap) Len() int           { return len(h) }
func (h seqHeap) Less(i, j int) bool { return seqOf(h[i]) < seqOf(h[j]) }
func (h seqHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *seqHeap) Push(x interface{}) {
	*h = append(*h, x.(*list.Element))
}

func (h *seqHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

func seqOf(e *list.Element) uint64 {
	return e.Value.(*entry).seq
}
