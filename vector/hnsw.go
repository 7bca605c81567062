package vector

import (
	"container/heap"
	"sync"
)

// candidate is one search result: a label and its distance to the query.
type candidate struct {
	label    uint64
	distance float64
}

// candidateHeap is a max-heap on distance, used to keep only the ef closest
// candidates seen so far during a bounded best-first search.
type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].distance > h[j].distance }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// hnswGraph is a single-layer proximity graph over label ids: each inserted
// node links to its M nearest already-inserted neighbors, found by a
// breadth-first walk from an entry point with a candidate list bounded by
// efConstruction. This is the single-layer core of hierarchical navigable
// small world graphs, without the multi-level skip structure — adequate
// approximate recall for an embedded engine without external ANN deps.
type hnswGraph struct {
	metric         Metric
	m              int
	efConstruction int

	mu         sync.Mutex
	efSearch   int
	vectors    map[uint64][]float32
	neighbors  map[uint64][]uint64
	tombstoned map[uint64]bool
	entryPoint uint64
	hasEntry   bool
}

func newHNSWGraph(metric Metric, m, efConstruction, efSearch int) *hnswGraph {
	return &hnswGraph{
		metric:         metric,
		m:              m,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		vectors:        make(map[uint64][]float32),
		neighbors:      make(map[uint64][]uint64),
		tombstoned:     make(map[uint64]bool),
	}
}

func (g *hnswGraph) setEfSearch(v int) {
	g.mu.Lock()
	g.efSearch = v
	g.mu.Unlock()
}

// insert adds label/vec to the graph, linking it to its M nearest
// neighbors found via a bounded-candidate search from the entry point.
func (g *hnswGraph) insert(label uint64, vec []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.vectors[label] = vec

	if !g.hasEntry {
		g.entryPoint = label
		g.hasEntry = true
		g.neighbors[label] = nil
		return
	}

	candidates := g.searchLayerLocked(vec, g.efConstruction, label)
	neighborCount := g.m
	if len(candidates) < neighborCount {
		neighborCount = len(candidates)
	}
	chosen := candidates[:neighborCount]

	links := make([]uint64, 0, len(chosen))
	for _, c := range chosen {
		links = append(links, c.label)
	}
	g.neighbors[label] = links

	for _, c := range chosen {
		g.neighbors[c.label] = g.pruneToM(append(g.neighbors[c.label], label), c.label)
	}
}

// pruneToM keeps only the m closest neighbors to node among its current
// neighbor list, used after inserting a new back-link.
func (g *hnswGraph) pruneToM(neighborLabels []uint64, node uint64) []uint64 {
	if len(neighborLabels) <= g.m {
		return neighborLabels
	}
	nodeVec := g.vectors[node]

	seen := make(map[uint64]struct{}, len(neighborLabels))
	unique := neighborLabels[:0]
	for _, n := range neighborLabels {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		unique = append(unique, n)
	}

	ranked := make([]candidate, 0, len(unique))
	for _, n := range unique {
		ranked = append(ranked, candidate{label: n, distance: g.metric.distance(nodeVec, g.vectors[n])})
	}
	sortCandidatesAsc(ranked)
	if len(ranked) > g.m {
		ranked = ranked[:g.m]
	}

	kept := make([]uint64, len(ranked))
	for i, c := range ranked {
		kept[i] = c.label
	}
	return kept
}

// searchLayerLocked visits every node reachable from the entry point,
// breadth-first, keeping the ef closest as candidates, and returns them
// sorted by ascending distance.
// excludeLabel, if non-zero, is skipped (used during insert to avoid a node
// appearing in its own candidate list before it has neighbors).
func (g *hnswGraph) searchLayerLocked(query []float32, ef int, excludeLabel uint64) []candidate {
	visited := map[uint64]struct{}{g.entryPoint: {}}
	entryDist := g.metric.distance(query, g.vectors[g.entryPoint])

	best := &candidateHeap{}
	heap.Init(best)
	if g.entryPoint != excludeLabel && !g.tombstoned[g.entryPoint] {
		heap.Push(best, candidate{label: g.entryPoint, distance: entryDist})
	}

	frontier := []candidate{{label: g.entryPoint, distance: entryDist}}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]

		for _, n := range g.neighbors[cur.label] {
			if _, ok := visited[n]; ok {
				continue
			}
			visited[n] = struct{}{}

			d := g.metric.distance(query, g.vectors[n])
			if n != excludeLabel && !g.tombstoned[n] {
				if best.Len() < ef {
					heap.Push(best, candidate{label: n, distance: d})
				} else if d < (*best)[0].distance {
					heap.Pop(best)
					heap.Push(best, candidate{label: n, distance: d})
				}
			}
			frontier = append(frontier, candidate{label: n, distance: d})
		}
	}

	result := make([]candidate, best.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(best).(candidate)
	}
	return result
}

// search returns up to k nearest non-tombstoned labels to query, using
// efSearch (or k if larger) as the candidate-list bound.
func (g *hnswGraph) search(query []float32, k int) []candidate {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.hasEntry {
		return nil
	}

	ef := g.efSearch
	if ef < k {
		ef = k
	}
	results := g.searchLayerLocked(query, ef, 0)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// remove tombstones a label so it is skipped during graph descent and
// filtered from future results, without touching its neighbor links.
func (g *hnswGraph) remove(label uint64) {
	g.mu.Lock()
	g.tombstoned[label] = true
	g.mu.Unlock()
}

func sortCandidatesAsc(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].distance < c[j-1].distance; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
