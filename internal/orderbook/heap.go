package orderbook

import "github.com/shopspring/decimal"

// maxPriceHeap orders bid price levels so the highest price is always the
// root, giving O(1) best-bid peek and O(log n) insertion, mirroring the
// teacher's heap-based best-price tracking.
type maxPriceHeap []decimal.Decimal

func (h maxPriceHeap) Len() int            { return len(h) }
func (h maxPriceHeap) Less(i, j int) bool  { return h[i].GreaterThan(h[j]) }
func (h maxPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxPriceHeap) Push(x interface{}) { *h = append(*h, x.(decimal.Decimal)) }
func (h *maxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// minPriceHeap orders ask price levels so the lowest price is always the root.
type minPriceHeap []decimal.Decimal

func (h minPriceHeap) Len() int            { return len(h) }
func (h minPriceHeap) Less(i, j int) bool  { return h[i].LessThan(h[j]) }
func (h minPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minPriceHeap) Push(x interface{}) { *h = append(*h, x.(decimal.Decimal)) }
func (h *minPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
