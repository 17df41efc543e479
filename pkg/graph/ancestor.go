package graph

import (
	"container/heap"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/odvcencio/geograft/pkg/object"
)

const (
	DefaultMaxSteps = 1_000_000
	DefaultMaxDepth = 1_000_000
)

// Finder answers ancestry queries over a Database. Parent lists, generation
// numbers and merge bases are cached: commits are immutable, so a cached
// answer never goes stale. A Finder is safe for concurrent use.
type Finder struct {
	db       Database
	maxSteps int
	maxDepth int

	mu          sync.RWMutex
	parents     map[object.ObjectID][]object.ObjectID
	generations map[object.ObjectID]uint64
	bases       map[pairKey]pairEntry
}

type pairKey struct {
	left, right object.ObjectID
}

type pairEntry struct {
	base  object.ObjectID
	found bool
}

func canonicalPair(a, b object.ObjectID) pairKey {
	if a.Compare(b) <= 0 {
		return pairKey{left: a, right: b}
	}
	return pairKey{left: b, right: a}
}

// FinderOption configures a Finder.
type FinderOption func(*Finder)

// WithLimits bounds traversal work. Non-positive values keep the defaults.
func WithLimits(maxSteps, maxDepth int) FinderOption {
	return func(f *Finder) {
		if maxSteps > 0 {
			f.maxSteps = maxSteps
		}
		if maxDepth > 0 {
			f.maxDepth = maxDepth
		}
	}
}

// NewFinder returns a Finder reading from db.
func NewFinder(db Database, opts ...FinderOption) *Finder {
	f := &Finder{
		db:          db,
		maxSteps:    DefaultMaxSteps,
		maxDepth:    DefaultMaxDepth,
		parents:     make(map[object.ObjectID][]object.ObjectID),
		generations: make(map[object.ObjectID]uint64),
		bases:       make(map[pairKey]pairEntry),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindCommonAncestor returns the nearest common ancestor of a and b, or
// false when their histories are disjoint.
func FindCommonAncestor(ctx context.Context, db Database, a, b object.ObjectID) (object.ObjectID, bool, error) {
	return NewFinder(db).CommonAncestor(ctx, a, b)
}

func (f *Finder) stepsExceeded() error {
	return fmt.Errorf("graph: traversal exceeded maximum steps (%d)", f.maxSteps)
}

func (f *Finder) depthExceeded() error {
	return fmt.Errorf("graph: traversal exceeded maximum depth (%d)", f.maxDepth)
}

func (f *Finder) parentsOf(id object.ObjectID) ([]object.ObjectID, error) {
	f.mu.RLock()
	ps, ok := f.parents[id]
	f.mu.RUnlock()
	if ok {
		return ps, nil
	}
	ps, err := f.db.Parents(id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.parents[id] = ps
	f.mu.Unlock()
	return ps, nil
}

func (f *Finder) loadGeneration(id object.ObjectID) (uint64, bool) {
	f.mu.RLock()
	g, ok := f.generations[id]
	f.mu.RUnlock()
	return g, ok
}

func (f *Finder) storeGeneration(id object.ObjectID, g uint64) {
	f.mu.Lock()
	f.generations[id] = g
	f.mu.Unlock()
}

// Generation returns 1 for a root commit and 1 + the largest parent
// generation otherwise.
func (f *Finder) Generation(ctx context.Context, id object.ObjectID) (uint64, error) {
	if id.IsNull() {
		return 0, nil
	}
	if g, ok := f.loadGeneration(id); ok {
		return g, nil
	}

	type frame struct {
		id      object.ObjectID
		parents []object.ObjectID
		next    int
		max     uint64
	}
	visiting := make(map[object.ObjectID]bool)
	var stack []*frame
	push := func(id object.ObjectID) error {
		ps, err := f.parentsOf(id)
		if err != nil {
			return err
		}
		visiting[id] = true
		stack = append(stack, &frame{id: id, parents: ps})
		return nil
	}
	if err := push(id); err != nil {
		return 0, err
	}

	var result uint64
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		top := stack[len(stack)-1]
		if top.next < len(top.parents) {
			p := top.parents[top.next]
			top.next++
			if g, ok := f.loadGeneration(p); ok {
				top.max = max(top.max, g)
				continue
			}
			if visiting[p] {
				return 0, fmt.Errorf("graph: cycle detected at %s", p.Short())
			}
			if len(stack) >= f.maxDepth {
				return 0, f.depthExceeded()
			}
			if err := push(p); err != nil {
				return 0, err
			}
			continue
		}

		result = top.max + 1
		f.storeGeneration(top.id, result)
		delete(visiting, top.id)
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			below := stack[len(stack)-1]
			below.max = max(below.max, result)
		}
	}
	return result, nil
}

// IsAncestor reports whether ancestor is reachable from descendant. A
// commit is its own ancestor.
func (f *Finder) IsAncestor(ctx context.Context, ancestor, descendant object.ObjectID) (bool, error) {
	if ancestor.IsNull() || descendant.IsNull() {
		return false, nil
	}
	genA, err := f.Generation(ctx, ancestor)
	if err != nil {
		return false, err
	}
	genD, err := f.Generation(ctx, descendant)
	if err != nil {
		return false, err
	}
	return f.isAncestor(ctx, ancestor, descendant, genA, genD)
}

type bfsItem struct {
	id    object.ObjectID
	depth int
}

func (f *Finder) isAncestor(ctx context.Context, ancestor, descendant object.ObjectID, genAnc, genDesc uint64) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	if genAnc >= genDesc {
		return false, nil
	}

	visited := map[object.ObjectID]struct{}{descendant: {}}
	queue := []bfsItem{{id: descendant}}
	steps := 0
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		item := queue[0]
		queue = queue[1:]

		steps++
		if steps > f.maxSteps {
			return false, f.stepsExceeded()
		}
		if item.id == ancestor {
			return true, nil
		}
		ps, err := f.parentsOf(item.id)
		if err != nil {
			return false, err
		}
		for _, p := range ps {
			if _, seen := visited[p]; seen {
				continue
			}
			g, err := f.Generation(ctx, p)
			if err != nil {
				return false, err
			}
			// Nothing below the ancestor's generation can reach it.
			if g < genAnc {
				continue
			}
			if item.depth+1 > f.maxDepth {
				return false, f.depthExceeded()
			}
			visited[p] = struct{}{}
			queue = append(queue, bfsItem{id: p, depth: item.depth + 1})
		}
	}
	return false, nil
}

// CommonAncestor returns the common ancestor of a and b with the highest
// generation, ties broken by lowest id. It reports false when a and b share
// no history or either is null.
func (f *Finder) CommonAncestor(ctx context.Context, a, b object.ObjectID) (object.ObjectID, bool, error) {
	if a.IsNull() || b.IsNull() {
		return object.NullID, false, nil
	}
	if a == b {
		return a, true, nil
	}

	key := canonicalPair(a, b)
	f.mu.RLock()
	cached, ok := f.bases[key]
	f.mu.RUnlock()
	if ok {
		return cached.base, cached.found, nil
	}

	base, found, err := f.commonAncestor(ctx, a, b)
	if err != nil {
		return object.NullID, false, err
	}
	f.mu.Lock()
	f.bases[key] = pairEntry{base: base, found: found}
	f.mu.Unlock()
	return base, found, nil
}

func (f *Finder) commonAncestor(ctx context.Context, a, b object.ObjectID) (object.ObjectID, bool, error) {
	genA, err := f.Generation(ctx, a)
	if err != nil {
		return object.NullID, false, err
	}
	genB, err := f.Generation(ctx, b)
	if err != nil {
		return object.NullID, false, err
	}

	// Linear history: one side contains the other.
	lo, hi, genLo, genHi := a, b, genA, genB
	if genLo > genHi {
		lo, hi, genLo, genHi = b, a, genB, genA
	}
	contained, err := f.isAncestor(ctx, lo, hi, genLo, genHi)
	if err != nil {
		return object.NullID, false, err
	}
	if contained {
		return lo, true, nil
	}
	return f.prunedSearch(ctx, a, b, genA, genB)
}

// prunedSearch walks both histories from the highest generation down,
// alternating sides, and stops once neither frontier can beat the best
// common commit found so far.
func (f *Finder) prunedSearch(ctx context.Context, a, b object.ObjectID, genA, genB uint64) (object.ObjectID, bool, error) {
	visited := [2]map[object.ObjectID]int{{a: 0}, {b: 0}}
	queues := [2]generationHeap{{{id: a, generation: genA}}, {{id: b, generation: genB}}}
	heap.Init(&queues[0])
	heap.Init(&queues[1])

	var best object.ObjectID
	var bestGen uint64
	found := false
	consider := func(id object.ObjectID, g uint64) {
		switch {
		case !found, g > bestGen, g == bestGen && id.Compare(best) < 0:
			best, bestGen, found = id, g, true
		}
	}

	steps := 0
	for queues[0].Len() > 0 || queues[1].Len() > 0 {
		if err := ctx.Err(); err != nil {
			return object.NullID, false, err
		}
		if found {
			topA, okA := queues[0].Peek()
			topB, okB := queues[1].Peek()
			if (!okA || topA.generation < bestGen) && (!okB || topB.generation < bestGen) {
				break
			}
		}

		side := 1
		topA, okA := queues[0].Peek()
		topB, okB := queues[1].Peek()
		switch {
		case !okB:
			side = 0
		case !okA:
			side = 1
		case topA.generation > topB.generation:
			side = 0
		case topA.generation == topB.generation && topA.id.Compare(topB.id) <= 0:
			side = 0
		}
		other := 1 - side
		item := heap.Pop(&queues[side]).(queueItem)

		steps++
		if steps > f.maxSteps {
			return object.NullID, false, f.stepsExceeded()
		}
		if found && item.generation < bestGen {
			continue
		}
		depth := visited[side][item.id]
		if depth > f.maxDepth {
			return object.NullID, false, f.depthExceeded()
		}
		if _, seen := visited[other][item.id]; seen {
			consider(item.id, item.generation)
			continue
		}

		ps, err := f.parentsOf(item.id)
		if err != nil {
			return object.NullID, false, err
		}
		for _, p := range ps {
			if _, seen := visited[side][p]; seen {
				continue
			}
			g, err := f.Generation(ctx, p)
			if err != nil {
				return object.NullID, false, err
			}
			if found && g < bestGen {
				continue
			}
			visited[side][p] = depth + 1
			heap.Push(&queues[side], queueItem{id: p, generation: g})
			if _, seen := visited[other][p]; seen {
				consider(p, g)
			}
		}
	}
	return best, found, nil
}

// LinearRange returns the first-parent chain of until that is not reachable
// from since, oldest first. A null since returns the whole chain.
func (f *Finder) LinearRange(ctx context.Context, since, until object.ObjectID) ([]object.ObjectID, error) {
	var out []object.ObjectID
	cur := until
	for !cur.IsNull() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(out) >= f.maxSteps {
			return nil, f.stepsExceeded()
		}
		if !since.IsNull() {
			reached, err := f.IsAncestor(ctx, cur, since)
			if err != nil {
				return nil, err
			}
			if reached {
				break
			}
		}
		out = append(out, cur)
		ps, err := f.parentsOf(cur)
		if err != nil {
			return nil, err
		}
		if len(ps) == 0 {
			break
		}
		cur = ps[0]
	}
	slices.Reverse(out)
	return out, nil
}
