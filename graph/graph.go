// Package graph is the directed graph index (C5): adjacency over edges
// with a persistent representation under the graph:out/graph:in prefixes
// and an in-memory mirror for O(degree) neighbor and traversal queries.
package graph

import (
	"sort"
	"strings"
	"sync"

	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/enginestatus"
	"github.com/evalgo/themisgo/keyschema"
	"github.com/evalgo/themisgo/kv"
)

// Adjacency pairs an edge id with the neighbor reached through it.
type Adjacency struct {
	EdgeID string
	PK     string
}

// KV is the subset of the key-value surface the graph index needs.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	ScanPrefix(prefix string, visit kv.Visitor) error
}

// SagaRegistrar lets transaction-enrolled edge mutations register a
// compensating action that undoes the in-memory mirror update if the
// enclosing transaction's KV commit later fails.
type SagaRegistrar interface {
	AddStep(name string, compensate func() error)
}

// Index is the adjacency manager: the in-memory mirror plus the
// operations that keep it consistent with persistent graph:out/graph:in
// entries.
type Index struct {
	mu     sync.Mutex
	out    map[string][]Adjacency // fromPK -> [(edgeID, toPK)]
	in     map[string][]Adjacency // toPK -> [(edgeID, fromPK)]
	loaded bool
}

// New constructs an empty, unloaded index. Call RebuildTopology to
// populate the mirror from persistent state before relying on mirror-only
// reads, or let it fall back to scans lazily.
func New() *Index {
	return &Index{out: make(map[string][]Adjacency), in: make(map[string][]Adjacency)}
}

// RebuildTopology scans every persistent graph:out:* and graph:in:*
// key and repopulates the in-memory maps. Idempotent.
func (idx *Index) RebuildTopology(kvHandle KV) error {
	out := make(map[string][]Adjacency)
	in := make(map[string][]Adjacency)

	err := kvHandle.ScanPrefix("graph:out:", func(key string, value []byte) bool {
		rest := strings.TrimPrefix(key, "graph:out:")
		sep := strings.Index(rest, keyschema.Separator)
		if sep == -1 {
			return true
		}
		fromPK, edgeID := rest[:sep], rest[sep+1:]
		out[fromPK] = append(out[fromPK], Adjacency{EdgeID: edgeID, PK: string(value)})
		return true
	})
	if err != nil {
		return err
	}

	err = kvHandle.ScanPrefix("graph:in:", func(key string, value []byte) bool {
		rest := strings.TrimPrefix(key, "graph:in:")
		sep := strings.Index(rest, keyschema.Separator)
		if sep == -1 {
			return true
		}
		toPK, edgeID := rest[:sep], rest[sep+1:]
		in[toPK] = append(in[toPK], Adjacency{EdgeID: edgeID, PK: string(value)})
		return true
	})
	if err != nil {
		return err
	}

	idx.mu.Lock()
	idx.out = out
	idx.in = in
	idx.loaded = true
	idx.mu.Unlock()
	return nil
}

// AddEdge writes both adjacency keys and updates the mirror. The edge
// entity must carry id, _from, and _to fields.
func (idx *Index) AddEdge(kvHandle KV, edge *entity.Entity) error {
	if !edge.IsEdge() {
		return enginestatus.Error(enginestatus.KindArgument,
			"graph: edge entity must have id, _from, and _to fields").Err()
	}

	edgeID, from, to := edge.EdgeID(), edge.From(), edge.To()

	if err := kvHandle.Put(keyschema.GraphOut(from, edgeID), []byte(to)); err != nil {
		return err
	}
	if err := kvHandle.Put(keyschema.GraphIn(to, edgeID), []byte(from)); err != nil {
		return err
	}

	idx.addToMirror(edgeID, from, to)
	return nil
}

// AddEdgeEnrolled is AddEdge for a transaction-enrolled caller: the KV
// writes go through kvHandle (expected to be the transaction), the mirror
// update happens inline, and a compensating step is registered with saga
// so a failed commit can undo the mirror change.
func (idx *Index) AddEdgeEnrolled(kvHandle KV, saga SagaRegistrar, edge *entity.Entity) error {
	if err := idx.AddEdge(kvHandle, edge); err != nil {
		return err
	}
	edgeID, from, to := edge.EdgeID(), edge.From(), edge.To()
	saga.AddStep("graph.add_edge:"+edgeID, func() error {
		idx.removeFromMirror(edgeID, from, to)
		return nil
	})
	return nil
}

// DeleteEdge resolves the edge's endpoints from the mirror (falling back
// to a persistent lookup) and removes both adjacency keys plus the
// mirror entries.
func (idx *Index) DeleteEdge(kvHandle KV, edgeID string) error {
	from, to, found, err := idx.resolveEdgeEndpoints(kvHandle, edgeID)
	if err != nil {
		return err
	}
	if !found {
		return enginestatus.Error(enginestatus.KindNotFound, "graph: edge %q not found", edgeID).Err()
	}

	if err := kvHandle.Delete(keyschema.GraphOut(from, edgeID)); err != nil {
		return err
	}
	if err := kvHandle.Delete(keyschema.GraphIn(to, edgeID)); err != nil {
		return err
	}

	idx.removeFromMirror(edgeID, from, to)
	return nil
}

// DeleteEdgeEnrolled is DeleteEdge for a transaction-enrolled caller,
// registering a compensating re-insert into the mirror.
func (idx *Index) DeleteEdgeEnrolled(kvHandle KV, saga SagaRegistrar, edgeID string) error {
	from, to, found, err := idx.resolveEdgeEndpoints(kvHandle, edgeID)
	if err != nil {
		return err
	}
	if !found {
		return enginestatus.Error(enginestatus.KindNotFound, "graph: edge %q not found", edgeID).Err()
	}

	if err := idx.DeleteEdge(kvHandle, edgeID); err != nil {
		return err
	}
	saga.AddStep("graph.delete_edge:"+edgeID, func() error {
		idx.addToMirror(edgeID, from, to)
		return nil
	})
	return nil
}

func (idx *Index) resolveEdgeEndpoints(kvHandle KV, edgeID string) (from, to string, found bool, err error) {
	idx.mu.Lock()
	for fromPK, adjs := range idx.out {
		for _, a := range adjs {
			if a.EdgeID == edgeID {
				from, to, found = fromPK, a.PK, true
				break
			}
		}
		if found {
			break
		}
	}
	idx.mu.Unlock()
	if found {
		return from, to, true, nil
	}

	data, ok, err := kvHandle.Get(keyschema.GraphEdge(edgeID))
	if err != nil || !ok {
		return "", "", false, err
	}
	e, err := entity.Deserialize(edgeID, data)
	if err != nil {
		return "", "", false, err
	}
	return e.From(), e.To(), true, nil
}

func (idx *Index) addToMirror(edgeID, from, to string) {
	idx.mu.Lock()
	idx.out[from] = append(idx.out[from], Adjacency{EdgeID: edgeID, PK: to})
	idx.in[to] = append(idx.in[to], Adjacency{EdgeID: edgeID, PK: from})
	idx.mu.Unlock()
}

func (idx *Index) removeFromMirror(edgeID, from, to string) {
	idx.mu.Lock()
	idx.out[from] = removeAdjacency(idx.out[from], edgeID)
	idx.in[to] = removeAdjacency(idx.in[to], edgeID)
	idx.mu.Unlock()
}

func removeAdjacency(list []Adjacency, edgeID string) []Adjacency {
	out := list[:0]
	for _, a := range list {
		if a.EdgeID != edgeID {
			out = append(out, a)
		}
	}
	return out
}

// OutNeighbors returns the PKs reachable by one outgoing edge from pk.
func (idx *Index) OutNeighbors(kvHandle KV, pk string) ([]string, error) {
	adjs, err := idx.OutAdjacency(kvHandle, pk)
	if err != nil {
		return nil, err
	}
	pks := make([]string, len(adjs))
	for i, a := range adjs {
		pks[i] = a.PK
	}
	return pks, nil
}

// InNeighbors returns the PKs that reach pk by one incoming edge.
func (idx *Index) InNeighbors(kvHandle KV, pk string) ([]string, error) {
	adjs, err := idx.InAdjacency(kvHandle, pk)
	if err != nil {
		return nil, err
	}
	pks := make([]string, len(adjs))
	for i, a := range adjs {
		pks[i] = a.PK
	}
	return pks, nil
}

// OutAdjacency returns the (edgeID, toPK) pairs for pk's outgoing edges,
// reading the mirror if loaded, else falling back to a prefix scan.
func (idx *Index) OutAdjacency(kvHandle KV, pk string) ([]Adjacency, error) {
	idx.mu.Lock()
	loaded := idx.loaded
	if loaded {
		cp := append([]Adjacency(nil), idx.out[pk]...)
		idx.mu.Unlock()
		return cp, nil
	}
	idx.mu.Unlock()

	var adjs []Adjacency
	err := kvHandle.ScanPrefix(keyschema.GraphOutPrefix(pk), func(key string, value []byte) bool {
		adjs = append(adjs, Adjacency{EdgeID: keyschema.ExtractPK(key), PK: string(value)})
		return true
	})
	return adjs, err
}

// InAdjacency is OutAdjacency for incoming edges.
func (idx *Index) InAdjacency(kvHandle KV, pk string) ([]Adjacency, error) {
	idx.mu.Lock()
	loaded := idx.loaded
	if loaded {
		cp := append([]Adjacency(nil), idx.in[pk]...)
		idx.mu.Unlock()
		return cp, nil
	}
	idx.mu.Unlock()

	var adjs []Adjacency
	err := kvHandle.ScanPrefix(keyschema.GraphInPrefix(pk), func(key string, value []byte) bool {
		adjs = append(adjs, Adjacency{EdgeID: keyschema.ExtractPK(key), PK: string(value)})
		return true
	})
	return adjs, err
}

// NodeCount and EdgeCount report mirror size, for diagnostics; both
// require the mirror to have been loaded via RebuildTopology.
func (idx *Index) NodeCount() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	seen := make(map[string]struct{}, len(idx.out)+len(idx.in))
	for pk := range idx.out {
		seen[pk] = struct{}{}
	}
	for pk := range idx.in {
		seen[pk] = struct{}{}
	}
	return len(seen)
}

func (idx *Index) EdgeCount() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	count := 0
	for _, adjs := range idx.out {
		count += len(adjs)
	}
	return count
}

func sortAdjacency(adjs []Adjacency) {
	sort.Slice(adjs, func(i, j int) bool { return adjs[i].PK < adjs[j].PK })
}
