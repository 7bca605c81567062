package graph

import (
	"container/heap"
	"strings"

	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/enginestatus"
	"github.com/evalgo/themisgo/keyschema"
)

// EdgeInfo describes one persisted edge for time-range queries.
type EdgeInfo struct {
	EdgeID    string
	From      string
	To        string
	ValidFrom *int64
	ValidTo   *int64
}

// edgeValidAt reports whether an edge (read from its graph:edge:id row)
// is valid at timestamp t. A bound that is absent is unbounded on that
// side, per the temporal filtering rule.
func edgeValidAt(e *entity.Entity, t int64) bool {
	if vf, ok := e.ValidFrom(); ok && vf > t {
		return false
	}
	if vt, ok := e.ValidTo(); ok && vt < t {
		return false
	}
	return true
}

// BFSAtTime is BFS restricted to edges valid at timestamp t.
func (idx *Index) BFSAtTime(kvHandle KV, start string, t int64, maxDepth int) ([]string, error) {
	if start == "" {
		return nil, enginestatus.Error(enginestatus.KindArgument, "graph: bfs_at_time start pk must not be empty").Err()
	}
	if maxDepth < 0 {
		return nil, enginestatus.Error(enginestatus.KindArgument, "graph: bfs_at_time max_depth must not be negative").Err()
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
				valid, err := idx.edgeValidAtByID(kvHandle, a.EdgeID, t)
				if err != nil {
					return nil, err
				}
				if !valid {
					continue
				}
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

// DijkstraAtTime is Dijkstra restricted to edges valid at timestamp t.
func (idx *Index) DijkstraAtTime(kvHandle KV, start, target string, t int64) (PathResult, error) {
	if start == "" || target == "" {
		return PathResult{}, enginestatus.Error(enginestatus.KindArgument, "graph: start and target must not be empty").Err()
	}

	dist := map[string]float64{start: 0}
	prev := map[string]string{}
	visited := map[string]struct{}{}

	pq := &priorityQueue{{node: start, priority: 0}}
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
			e, found, err := idx.edgeAt(kvHandle, a.EdgeID)
			if err != nil {
				return PathResult{}, err
			}
			if found && !edgeValidAt(e, t) {
				continue
			}
			weight := entity.DefaultEdgeWeight
			if found {
				weight = e.Weight()
			}
			alt := dist[cur.node] + weight
			if existing, ok := dist[a.PK]; !ok || alt < existing {
				dist[a.PK] = alt
				prev[a.PK] = cur.node
				heap.Push(pq, &pqItem{node: a.PK, priority: alt})
			}
		}
	}

	return PathResult{}, enginestatus.Error(enginestatus.KindNotFound, "graph: no path from %q to %q at time %d", start, target, t).Err()
}

func (idx *Index) edgeAt(kvHandle KV, edgeID string) (*entity.Entity, bool, error) {
	data, found, err := kvHandle.Get(keyschema.GraphEdge(edgeID))
	if err != nil || !found {
		return nil, false, err
	}
	e, err := entity.Deserialize(edgeID, data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (idx *Index) edgeValidAtByID(kvHandle KV, edgeID string, t int64) (bool, error) {
	e, found, err := idx.edgeAt(kvHandle, edgeID)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return edgeValidAt(e, t), nil
}

// EdgesInTimeRange scans every persisted edge and returns those whose
// [valid_from, valid_to] overlaps [lo, hi] (default) or, if
// requireFullContainment is set, is fully contained within it.
func (idx *Index) EdgesInTimeRange(kvHandle KV, lo, hi int64, requireFullContainment bool) ([]EdgeInfo, error) {
	var infos []EdgeInfo
	var scanErr error
	err := kvHandle.ScanPrefix(keyschema.GraphEdgePrefix(), func(key string, value []byte) bool {
		edgeID := strings.TrimPrefix(key, keyschema.GraphEdgePrefix())
		e, derr := entity.Deserialize(edgeID, value)
		if derr != nil {
			scanErr = derr
			return false
		}
		if info, ok := matchTimeRange(e, lo, hi, requireFullContainment); ok {
			infos = append(infos, info)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return infos, scanErr
}

// OutEdgesInTimeRange is EdgesInTimeRange restricted to edges sourced
// from fromPK.
func (idx *Index) OutEdgesInTimeRange(kvHandle KV, fromPK string, lo, hi int64, requireFullContainment bool) ([]EdgeInfo, error) {
	adjs, err := idx.OutAdjacency(kvHandle, fromPK)
	if err != nil {
		return nil, err
	}

	var infos []EdgeInfo
	for _, a := range adjs {
		e, found, err := idx.edgeAt(kvHandle, a.EdgeID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if info, ok := matchTimeRange(e, lo, hi, requireFullContainment); ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func matchTimeRange(e *entity.Entity, lo, hi int64, requireFullContainment bool) (EdgeInfo, bool) {
	vf, hasVF := e.ValidFrom()
	vt, hasVT := e.ValidTo()

	info := EdgeInfo{EdgeID: e.EdgeID(), From: e.From(), To: e.To()}
	if hasVF {
		v := vf
		info.ValidFrom = &v
	}
	if hasVT {
		v := vt
		info.ValidTo = &v
	}

	effectiveFrom, effectiveTo := lo, hi
	if hasVF {
		effectiveFrom = vf
	}
	if hasVT {
		effectiveTo = vt
	}

	if requireFullContainment {
		if effectiveFrom >= lo && effectiveTo <= hi {
			return info, true
		}
		return EdgeInfo{}, false
	}

	// Overlap: the edge's effective interval intersects [lo, hi].
	if effectiveFrom <= hi && effectiveTo >= lo {
		return info, true
	}
	return EdgeInfo{}, false
}
