package graph

import (
	"container/heap"

	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/enginestatus"
	"github.com/evalgo/themisgo/keyschema"
)

// BFS performs a layer-by-layer traversal of the mirror starting at
// start, returning visited nodes in discovery order including start.
// max_depth=0 returns just [start].
func (idx *Index) BFS(kvHandle KV, start string, maxDepth int) ([]string, error) {
	if start == "" {
		return nil, enginestatus.Error(enginestatus.KindArgument, "graph: bfs start pk must not be empty").Err()
	}
	if maxDepth < 0 {
		return nil, enginestatus.Error(enginestatus.KindArgument, "graph: bfs max_depth must not be negative").Err()
	}

	visited := map[string]struct{}{start: {}}
	order := []string{start}
	frontier := []string{start}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, node := range frontier {
			adjs, err := idx.OutAdjacency(kvHandle, node)
			if err != nil {
				return nil, err
			}
			sortAdjacency(adjs)
			for _, a := range adjs {
				if _, seen := visited[a.PK]; seen {
					continue
				}
				visited[a.PK] = struct{}{}
				order = append(order, a.PK)
				next = append(next, a.PK)
			}
		}
		frontier = next
	}
	return order, nil
}

// PathResult is the outcome of a shortest-path search: the ordered node
// path from start to target, and its total edge-weight cost.
type PathResult struct {
	Path []string
	Cost float64
}

// Heuristic estimates the remaining cost from node to the search target;
// it must be admissible (never overestimate) for A* to return optimal
// paths.
type Heuristic func(node string) float64

// Dijkstra finds the minimum-weight path from start to target. Edge
// weight is the edge entity's _weight field (default 1.0).
func (idx *Index) Dijkstra(kvHandle KV, start, target string) (PathResult, error) {
	return idx.aStarSearch(kvHandle, start, target, func(string) float64 { return 0 })
}

// AStar is Dijkstra guided by a caller-supplied admissible heuristic.
// A nil heuristic behaves exactly like Dijkstra.
func (idx *Index) AStar(kvHandle KV, start, target string, heuristic Heuristic) (PathResult, error) {
	if heuristic == nil {
		heuristic = func(string) float64 { return 0 }
	}
	return idx.aStarSearch(kvHandle, start, target, heuristic)
}

type pqItem struct {
	node     string
	priority float64
	index    int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].priority < pq[j].priority }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

func (idx *Index) aStarSearch(kvHandle KV, start, target string, h Heuristic) (PathResult, error) {
	if start == "" || target == "" {
		return PathResult{}, enginestatus.Error(enginestatus.KindArgument, "graph: start and target must not be empty").Err()
	}

	dist := map[string]float64{start: 0}
	prev := map[string]string{}
	visited := map[string]struct{}{}

	pq := &priorityQueue{{node: start, priority: h(start)}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*pqItem)
		if _, done := visited[cur.node]; done {
			continue
		}
		visited[cur.node] = struct{}{}

		if cur.node == target {
			return PathResult{Path: reconstructPath(prev, start, target), Cost: dist[target]}, nil
		}

		adjs, err := idx.OutAdjacency(kvHandle, cur.node)
		if err != nil {
			return PathResult{}, err
		}
		for _, a := range adjs {
			weight, err := idx.edgeWeight(kvHandle, a.EdgeID)
			if err != nil {
				return PathResult{}, err
			}
			alt := dist[cur.node] + weight
			if existing, ok := dist[a.PK]; !ok || alt < existing {
				dist[a.PK] = alt
				prev[a.PK] = cur.node
				heap.Push(pq, &pqItem{node: a.PK, priority: alt + h(a.PK)})
			}
		}
	}

	return PathResult{}, enginestatus.Error(enginestatus.KindNotFound, "graph: no path from %q to %q", start, target).Err()
}

func reconstructPath(prev map[string]string, start, target string) []string {
	path := []string{target}
	cur := target
	for cur != start {
		p, ok := prev[cur]
		if !ok {
			break
		}
		path = append(path, p)
		cur = p
	}
	// reverse in place
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func (idx *Index) edgeWeight(kvHandle KV, edgeID string) (float64, error) {
	data, found, err := kvHandle.Get(keyschema.GraphEdge(edgeID))
	if err != nil {
		return 0, err
	}
	if !found {
		return entity.DefaultEdgeWeight, nil
	}
	e, err := entity.Deserialize(edgeID, data)
	if err != nil {
		return 0, err
	}
	return e.Weight(), nil
}
