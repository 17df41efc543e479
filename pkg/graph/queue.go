package graph

import "github.com/odvcencio/geograft/pkg/object"

type queueItem struct {
	id         object.ObjectID
	generation uint64
}

// generationHeap pops the highest generation first; ties go to the lower id
// so traversal order is deterministic.
type generationHeap []queueItem

func (h generationHeap) Len() int { return len(h) }

func (h generationHeap) Less(i, j int) bool {
	if h[i].generation == h[j].generation {
		return h[i].id.Compare(h[j].id) < 0
	}
	return h[i].generation > h[j].generation
}

func (h generationHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *generationHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *generationHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h generationHeap) Peek() (queueItem, bool) {
	if len(h) == 0 {
		return queueItem{}, false
	}
	return h[0], true
}
