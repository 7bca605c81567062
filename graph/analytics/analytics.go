// Package analytics provides read-only graph analysis algorithms layered
// on top of a graph.Index's adjacency accessors, restricted to a
// caller-supplied node set rather than a full-keyspace scan.
package analytics

import (
	"sort"

	"github.com/evalgo/themisgo/enginestatus"
	"github.com/evalgo/themisgo/graph"
)

// DegreeResult holds one node's in/out/total degree.
type DegreeResult struct {
	InDegree    int
	OutDegree   int
	TotalDegree int
}

// DegreeCentrality returns in-degree, out-degree, and total degree for
// every pk in nodePKs, counting only edges to/from other members of the
// supplied set.
func DegreeCentrality(g *graph.Index, kvHandle graph.KV, nodePKs []string) (map[string]DegreeResult, error) {
	if len(nodePKs) == 0 {
		return nil, enginestatus.Error(enginestatus.KindArgument, "analytics: degree_centrality requires at least one node").Err()
	}

	member := make(map[string]struct{}, len(nodePKs))
	for _, pk := range nodePKs {
		member[pk] = struct{}{}
	}

	results := make(map[string]DegreeResult, len(nodePKs))
	for _, pk := range nodePKs {
		out, err := g.OutNeighbors(kvHandle, pk)
		if err != nil {
			return nil, err
		}
		in, err := g.InNeighbors(kvHandle, pk)
		if err != nil {
			return nil, err
		}

		outDeg := countMembers(out, member)
		inDeg := countMembers(in, member)
		results[pk] = DegreeResult{InDegree: inDeg, OutDegree: outDeg, TotalDegree: inDeg + outDeg}
	}
	return results, nil
}

func countMembers(pks []string, member map[string]struct{}) int {
	count := 0
	for _, pk := range pks {
		if _, ok := member[pk]; ok {
			count++
		}
	}
	return count
}

// PageRank computes importance scores via power-iteration PageRank,
// restricted to nodePKs (edges leaving the set contribute no rank back
// into it). Converges when the L1 delta between iterations drops below
// tolerance, or after maxIterations.
func PageRank(g *graph.Index, kvHandle graph.KV, nodePKs []string, damping float64, maxIterations int, tolerance float64) (map[string]float64, error) {
	if len(nodePKs) == 0 {
		return nil, enginestatus.Error(enginestatus.KindArgument, "analytics: page_rank requires at least one node").Err()
	}
	if damping < 0 || damping > 1 {
		return nil, enginestatus.Error(enginestatus.KindArgument, "analytics: damping must be within [0,1], got %v", damping).Err()
	}

	nodes := append([]string(nil), nodePKs...)
	sort.Strings(nodes)
	member := make(map[string]struct{}, len(nodes))
	for _, pk := range nodes {
		member[pk] = struct{}{}
	}

	outEdges := make(map[string][]string, len(nodes))
	outDegree := make(map[string]int, len(nodes))
	for _, pk := range nodes {
		out, err := g.OutNeighbors(kvHandle, pk)
		if err != nil {
			return nil, err
		}
		var restricted []string
		for _, to := range out {
			if _, ok := member[to]; ok {
				restricted = append(restricted, to)
			}
		}
		outEdges[pk] = restricted
		outDegree[pk] = len(restricted)
	}

	n := float64(len(nodes))
	scores := make(map[string]float64, len(nodes))
	for _, pk := range nodes {
		scores[pk] = 1.0 / n
	}

	for iter := 0; iter < maxIterations; iter++ {
		next := make(map[string]float64, len(nodes))
		danglingMass := 0.0
		for _, pk := range nodes {
			if outDegree[pk] == 0 {
				danglingMass += scores[pk]
			}
		}

		base := (1 - damping) / n
		redistributed := damping * danglingMass / n
		for _, pk := range nodes {
			next[pk] = base + redistributed
		}

		for _, pk := range nodes {
			if outDegree[pk] == 0 {
				continue
			}
			share := damping * scores[pk] / float64(outDegree[pk])
			for _, to := range outEdges[pk] {
				next[to] += share
			}
		}

		delta := 0.0
		for _, pk := range nodes {
			diff := next[pk] - scores[pk]
			if diff < 0 {
				diff = -diff
			}
			delta += diff
		}
		scores = next
		if delta < tolerance {
			break
		}
	}

	return scores, nil
}
