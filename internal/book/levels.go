package book

import "container/heap"

// priceHeap is a binary heap of prices, ordered so that Pop/heap[0]
// gives the best price for its side: descending for bids, ascending
// for asks. It is used as a lazy-deletion index alongside the
// levels.agg map — see levels.best. A price can appear more than once
// when its level is removed and re-created before the stale entry
// surfaces.
type priceHeap struct {
	prices []int32
	higher bool // true: max-heap (bids); false: min-heap (asks)
}

func (h priceHeap) Len() int { return len(h.prices) }

func (h priceHeap) Less(i, j int) bool {
	if h.higher {
		return h.prices[i] > h.prices[j]
	}
	return h.prices[i] < h.prices[j]
}

func (h priceHeap) Swap(i, j int) { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x interface{}) { h.prices = append(h.prices, x.(int32)) }

func (h *priceHeap) Pop() interface{} {
	old := h.prices
	n := len(old)
	v := old[n-1]
	h.prices = old[:n-1]
	return v
}

// levels holds one side (bids or asks) of a book: an aggregate
// quantity per price plus a heap ordering prices for O(log n) best
// lookup. Entries are removed from agg as soon as their aggregate
// reaches zero; the heap entry for a removed price is discarded lazily
// the next time it surfaces at the top, rather than searched for and
// removed eagerly.
type levels struct {
	agg  map[int32]uint32
	heap *priceHeap
}

func newLevels(higher bool) *levels {
	h := &priceHeap{higher: higher}
	heap.Init(h)
	return &levels{agg: make(map[int32]uint32), heap: h}
}

// add adds qty to the aggregate at price, creating the level (and
// pushing it onto the heap) if it did not already exist.
func (l *levels) add(price int32, qty uint32) {
	if _, exists := l.agg[price]; !exists {
		heap.Push(l.heap, price)
	}
	l.agg[price] += qty
}

// subtract removes qty from the aggregate at price. Returns an error
// if the level does not exist or qty exceeds its aggregate — both are
// invariant violations, never expected in correct operation.
func (l *levels) subtract(price int32, qty uint32) error {
	cur, ok := l.agg[price]
	if !ok || qty > cur {
		return fatalf(FatalUnderflow, 0, "subtract %d from level %d with aggregate %d (exists=%v)", qty, price, cur, ok)
	}
	if qty == cur {
		delete(l.agg, price)
		return nil
	}
	l.agg[price] = cur - qty
	return nil
}

// best returns the best (highest for bids, lowest for asks) price
// with a non-empty aggregate, discarding any stale heap entries left
// behind by levels whose aggregate already dropped to zero.
func (l *levels) best() (price int32, qty uint32, ok bool) {
	for l.heap.Len() > 0 {
		top := l.heap.prices[0]
		if q, exists := l.agg[top]; exists {
			return top, q, true
		}
		heap.Pop(l.heap)
	}
	return 0, 0, false
}
