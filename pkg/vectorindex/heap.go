package vectorindex

// candidate is a (node id, distance-to-query) pair used while
// traversing the NSW graph.
type candidate struct {
	id   string
	dist float64
}

// minCandidateHeap pops the closest candidate first; it drives the
// greedy frontier expansion in searchLayer.
type minCandidateHeap []candidate

func (h minCandidateHeap) Len() int            { return len(h) }
func (h minCandidateHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minCandidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minCandidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minCandidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxCandidateHeap pops the furthest candidate first; it bounds the
// result set to ef entries by evicting the worst one once full.
type maxCandidateHeap []candidate

func (h maxCandidateHeap) Len() int            { return len(h) }
func (h maxCandidateHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxCandidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxCandidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxCandidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
