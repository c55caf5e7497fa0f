package vectorindex

import (
	"container/heap"
	"sort"
)

// searchLayer performs a greedy best-first traversal of the single NSW
// layer starting from the index's entry point, expanding through
// per-node neighbor lists and keeping the ef closest nodes seen so
// far. It returns up to ef candidates sorted ascending by distance,
// excluding excludeID when set. This is the standard HNSW level-0
// search routine; the index only ever has one such layer.
func (idx *Index) searchLayer(query []float64, ef int, excludeID string) []candidate {
	if idx.entryPoint == "" || ef <= 0 {
		return nil
	}

	visited := map[string]bool{idx.entryPoint: true}
	entryDist := idx.distanceTo(query, idx.entryPoint)

	candidates := &minCandidateHeap{{idx.entryPoint, entryDist}}
	heap.Init(candidates)
	results := &maxCandidateHeap{{idx.entryPoint, entryDist}}
	heap.Init(results)

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candidate)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}

		for _, nid := range idx.nodes[c.id].neighbors {
			if visited[nid] {
				continue
			}
			visited[nid] = true

			d := idx.distanceTo(query, nid)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, candidate{nid, d})
				heap.Push(results, candidate{nid, d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}

	if excludeID == "" {
		return out
	}
	filtered := out[:0]
	for _, c := range out {
		if c.id != excludeID {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func (idx *Index) distanceTo(query []float64, id string) float64 {
	return cosineDistance(query, idx.nodes[id].entry.Vector)
}

// pruneNeighbors trims n's neighbor list back down to the frozen m
// closest entries after an insertion pushed it over budget.
func (idx *Index) pruneNeighbors(n *node) {
	m := idx.params.M
	if len(n.neighbors) <= m {
		return
	}

	type scored struct {
		id   string
		dist float64
	}
	list := make([]scored, len(n.neighbors))
	for i, id := range n.neighbors {
		list[i] = scored{id, cosineDistance(n.entry.Vector, idx.nodes[id].entry.Vector)}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].dist < list[j].dist })

	n.neighbors = n.neighbors[:0]
	for i := 0; i < m && i < len(list); i++ {
		n.neighbors = append(n.neighbors, list[i].id)
	}
}
