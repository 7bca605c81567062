package graph

import "github.com/evalgo/themisgo/enginestatus"

// HasCycle reports whether the subgraph induced by nodes (following only
// outgoing edges among members of nodes) contains a cycle. Uses
// depth-first search with recursion-stack detection.
func (idx *Index) HasCycle(kvHandle KV, nodes []string) (bool, error) {
	member := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		member[n] = struct{}{}
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(node string) (bool, error)
	visit = func(node string) (bool, error) {
		visited[node] = true
		onStack[node] = true

		adjs, err := idx.OutAdjacency(kvHandle, node)
		if err != nil {
			return false, err
		}
		for _, a := range adjs {
			if _, ok := member[a.PK]; !ok {
				continue
			}
			if !visited[a.PK] {
				cyclic, err := visit(a.PK)
				if err != nil {
					return false, err
				}
				if cyclic {
					return true, nil
				}
			} else if onStack[a.PK] {
				return true, nil
			}
		}

		onStack[node] = false
		return false, nil
	}

	for _, n := range nodes {
		if !visited[n] {
			cyclic, err := visit(n)
			if err != nil {
				return false, err
			}
			if cyclic {
				return true, nil
			}
		}
	}
	return false, nil
}

// TopologicalOrder returns nodes ordered so that every edge among them
// (following the index's outgoing adjacency) points from an earlier
// position to a later one, using Kahn's algorithm. Returns an error if
// the induced subgraph contains a cycle.
func (idx *Index) TopologicalOrder(kvHandle KV, nodes []string) ([]string, error) {
	member := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		member[n] = struct{}{}
	}

	inDegree := make(map[string]int, len(nodes))
	adjacency := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		inDegree[n] = 0
	}

	for _, n := range nodes {
		adjs, err := idx.OutAdjacency(kvHandle, n)
		if err != nil {
			return nil, err
		}
		for _, a := range adjs {
			if _, ok := member[a.PK]; !ok {
				continue
			}
			adjacency[n] = append(adjacency[n], a.PK)
			inDegree[a.PK]++
		}
	}

	var queue []string
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		for _, next := range adjacency[cur] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, enginestatus.Error(enginestatus.KindIntegrity, "graph: cycle detected among the given nodes").Err()
	}
	return order, nil
}
