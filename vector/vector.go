// Package vector is the approximate-nearest-neighbor index (C6): a
// per-namespace bijection between primary keys and label ids, a vector
// cache, and an optional hand-rolled proximity-graph ANN structure with a
// brute-force fallback.
package vector

import (
	"sort"
	"sync"

	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/enginestatus"
	"github.com/evalgo/themisgo/keyschema"
)

// Config describes one vector namespace's dimension, distance metric, and
// ANN construction parameters.
type Config struct {
	Dimension      int
	Metric         Metric
	M              int
	EfConstruction int
	EfSearch       int
	PersistDir     string
	AutoSave       bool
}

// DefaultConfig returns sane defaults for a namespace of the given
// dimension: L2 distance, M=16, efConstruction=200, efSearch=64.
func DefaultConfig(dimension int) Config {
	return Config{
		Dimension:      dimension,
		Metric:         MetricL2,
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
	}
}

func (c Config) equivalent(other Config) bool {
	return c.Dimension == other.Dimension &&
		c.Metric == other.Metric &&
		c.M == other.M &&
		c.EfConstruction == other.EfConstruction &&
		c.PersistDir == other.PersistDir &&
		c.AutoSave == other.AutoSave
}

// KV is the key-value surface a vector namespace persists entities
// through; satisfied by both *kv.Store and *kv.Transaction.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// SagaRegistrar lets transaction-enrolled vector mutations register a
// compensating action against the cache/ANN structure.
type SagaRegistrar interface {
	AddStep(name string, compensate func() error)
}

// Match is one k-nearest-neighbor result.
type Match struct {
	PK       string
	Distance float64
}

type namespace struct {
	cfg Config

	mu        sync.Mutex
	pkToLabel map[string]uint64
	labelToPK map[uint64]string
	cache     map[string][]float32
	nextLabel uint64
	graph     *hnswGraph
}

// Manager owns every configured vector namespace.
type Manager struct {
	mu         sync.Mutex
	namespaces map[string]*namespace
}

// NewManager constructs an empty manager with no configured namespaces.
func NewManager() *Manager {
	return &Manager{namespaces: make(map[string]*namespace)}
}

// Init installs namespace's configuration. A second call with an identical
// configuration is a no-op; a call with a differing configuration for an
// already-initialized namespace is an argument error (the namespace must be
// dropped and recreated to change its shape).
func (mgr *Manager) Init(ns string, cfg Config) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if existing, ok := mgr.namespaces[ns]; ok {
		if existing.cfg.equivalent(cfg) {
			return nil
		}
		return enginestatus.Error(enginestatus.KindArgument,
			"vector: namespace %q already initialized with a different configuration", ns).Err()
	}

	mgr.namespaces[ns] = &namespace{
		cfg:       cfg,
		pkToLabel: make(map[string]uint64),
		labelToPK: make(map[uint64]string),
		cache:     make(map[string][]float32),
		nextLabel: 1,
		graph:     newHNSWGraph(cfg.Metric, cfg.M, cfg.EfConstruction, cfg.EfSearch),
	}
	return nil
}

func (mgr *Manager) namespaceFor(ns string) (*namespace, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	n, ok := mgr.namespaces[ns]
	if !ok {
		return nil, enginestatus.Error(enginestatus.KindArgument, "vector: namespace %q not initialized", ns).Err()
	}
	return n, nil
}

func extractVector(e *entity.Entity, field string) ([]float32, error) {
	v, ok := e.Get(field)
	if !ok {
		return nil, enginestatus.Error(enginestatus.KindArgument, "vector: entity %q has no field %q", e.PK, field).Err()
	}
	if v.Kind != entity.KindVector {
		return nil, enginestatus.Error(enginestatus.KindArgument, "vector: field %q on entity %q is not a vector", field, e.PK).Err()
	}
	return v.Vec, nil
}

// AddEntity reads the float-vector field from e, rejects on dimension
// mismatch, assigns a fresh label id, inserts into the cache and the ANN
// structure, and persists e under the namespace's key.
func (mgr *Manager) AddEntity(kvHandle KV, ns string, e *entity.Entity, vectorField string) error {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return err
	}

	vec, err := extractVector(e, vectorField)
	if err != nil {
		return err
	}
	if len(vec) != n.cfg.Dimension {
		return enginestatus.Error(enginestatus.KindArgument,
			"vector: entity %q vector has dimension %d, namespace %q expects %d", e.PK, len(vec), ns, n.cfg.Dimension).Err()
	}

	data, err := entity.Serialize(e)
	if err != nil {
		return err
	}
	if err := kvHandle.Put(keyschema.Vector(ns, e.PK), data); err != nil {
		return err
	}

	n.mu.Lock()
	if _, exists := n.pkToLabel[e.PK]; exists {
		n.mu.Unlock()
		return enginestatus.Error(enginestatus.KindConflict, "vector: pk %q already exists in namespace %q", e.PK, ns).Err()
	}
	label := n.nextLabel
	n.nextLabel++
	n.pkToLabel[e.PK] = label
	n.labelToPK[label] = e.PK
	n.cache[e.PK] = vec
	n.mu.Unlock()

	n.graph.insert(label, vec)
	return nil
}

// AddEntityEnrolled is AddEntity for a transaction-enrolled caller: the KV
// write goes through kvHandle, the cache/ANN mutation happens inline, and a
// compensating removal is registered with saga.
func (mgr *Manager) AddEntityEnrolled(kvHandle KV, saga SagaRegistrar, ns string, e *entity.Entity, vectorField string) error {
	if err := mgr.AddEntity(kvHandle, ns, e, vectorField); err != nil {
		return err
	}
	pk := e.PK
	saga.AddStep("vector.add_entity:"+ns+":"+pk, func() error {
		return mgr.RemoveByPK(kvHandle, ns, pk)
	})
	return nil
}

// UpdateEntity replaces the vector for an existing pk, reusing its label
// id, and re-persists the entity.
func (mgr *Manager) UpdateEntity(kvHandle KV, ns string, e *entity.Entity, vectorField string) error {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return err
	}

	vec, err := extractVector(e, vectorField)
	if err != nil {
		return err
	}
	if len(vec) != n.cfg.Dimension {
		return enginestatus.Error(enginestatus.KindArgument,
			"vector: entity %q vector has dimension %d, namespace %q expects %d", e.PK, len(vec), ns, n.cfg.Dimension).Err()
	}

	n.mu.Lock()
	label, exists := n.pkToLabel[e.PK]
	if !exists {
		n.mu.Unlock()
		return enginestatus.Error(enginestatus.KindNotFound, "vector: pk %q not found in namespace %q", e.PK, ns).Err()
	}
	previous := n.cache[e.PK]
	n.cache[e.PK] = vec
	n.mu.Unlock()

	data, err := entity.Serialize(e)
	if err != nil {
		return err
	}
	if err := kvHandle.Put(keyschema.Vector(ns, e.PK), data); err != nil {
		return err
	}

	// The ANN structure does not support in-place neighbor re-weighting
	// cheaply; re-inserting under the same label keeps the cache and graph
	// in sync at the cost of leaving stale (but harmless) neighbor links
	// from the vector's old position, cleaned up by a future compact().
	n.graph.insert(label, vec)
	_ = previous
	return nil
}

// UpdateEntityEnrolled is UpdateEntity for a transaction-enrolled caller,
// capturing the pre-image from the namespace's cache so a failed commit can
// restore it exactly.
func (mgr *Manager) UpdateEntityEnrolled(kvHandle KV, saga SagaRegistrar, ns string, e *entity.Entity, vectorField string) error {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return err
	}
	n.mu.Lock()
	label, exists := n.pkToLabel[e.PK]
	previous := append([]float32(nil), n.cache[e.PK]...)
	n.mu.Unlock()
	if !exists {
		return enginestatus.Error(enginestatus.KindNotFound, "vector: pk %q not found in namespace %q", e.PK, ns).Err()
	}

	if err := mgr.UpdateEntity(kvHandle, ns, e, vectorField); err != nil {
		return err
	}

	saga.AddStep("vector.update_entity:"+ns+":"+e.PK, func() error {
		n.mu.Lock()
		n.cache[e.PK] = previous
		n.mu.Unlock()
		n.graph.insert(label, previous)
		return nil
	})
	return nil
}

// RemoveByPK deletes the persistent entity, evicts it from the cache, and
// tombstones its label in the ANN structure.
func (mgr *Manager) RemoveByPK(kvHandle KV, ns, pk string) error {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return err
	}

	n.mu.Lock()
	label, exists := n.pkToLabel[pk]
	if !exists {
		n.mu.Unlock()
		return enginestatus.Error(enginestatus.KindNotFound, "vector: pk %q not found in namespace %q", pk, ns).Err()
	}
	delete(n.pkToLabel, pk)
	delete(n.labelToPK, label)
	delete(n.cache, pk)
	n.mu.Unlock()

	if err := kvHandle.Delete(keyschema.Vector(ns, pk)); err != nil {
		return err
	}
	n.graph.remove(label)
	return nil
}

// RemoveByPKEnrolled is RemoveByPK for a transaction-enrolled caller,
// registering a compensating re-insert if the enclosing commit fails.
func (mgr *Manager) RemoveByPKEnrolled(kvHandle KV, saga SagaRegistrar, ns, pk string) error {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return err
	}
	n.mu.Lock()
	label, exists := n.pkToLabel[pk]
	vec := append([]float32(nil), n.cache[pk]...)
	n.mu.Unlock()
	if !exists {
		return enginestatus.Error(enginestatus.KindNotFound, "vector: pk %q not found in namespace %q", pk, ns).Err()
	}

	if err := mgr.RemoveByPK(kvHandle, ns, pk); err != nil {
		return err
	}

	saga.AddStep("vector.remove_by_pk:"+ns+":"+pk, func() error {
		n.mu.Lock()
		n.pkToLabel[pk] = label
		n.labelToPK[label] = pk
		n.cache[pk] = vec
		n.mu.Unlock()
		n.graph.mu.Lock()
		delete(n.graph.tombstoned, label)
		n.graph.mu.Unlock()
		return nil
	})
	return nil
}

// SearchKNN returns up to k nearest neighbors of query. If whitelist is
// non-empty, the search is brute force restricted to those PKs; otherwise
// it uses the ANN structure, which yields no matches while it has no
// entries (e.g. Init with no inserts yet). Results are
// sorted ascending by distance, ties broken by PK ascending.
func (mgr *Manager) SearchKNN(ns string, query []float32, k int, whitelist []string) ([]Match, error) {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, enginestatus.Error(enginestatus.KindArgument, "vector: k must be positive, got %d", k).Err()
	}
	if len(query) != n.cfg.Dimension {
		return nil, enginestatus.Error(enginestatus.KindArgument,
			"vector: query has dimension %d, namespace %q expects %d", len(query), ns, n.cfg.Dimension).Err()
	}

	if len(whitelist) > 0 {
		return n.bruteForce(query, k, whitelist), nil
	}

	results := n.graph.search(query, k)
	matches := make([]Match, 0, len(results))
	n.mu.Lock()
	for _, r := range results {
		pk, ok := n.labelToPK[r.label]
		if !ok {
			continue
		}
		matches = append(matches, Match{PK: pk, Distance: r.distance})
	}
	n.mu.Unlock()

	sortMatches(matches)
	return matches, nil
}

func (n *namespace) bruteForce(query []float32, k int, whitelist []string) []Match {
	n.mu.Lock()
	matches := make([]Match, 0, len(whitelist))
	for _, pk := range whitelist {
		vec, ok := n.cache[pk]
		if !ok {
			continue
		}
		matches = append(matches, Match{PK: pk, Distance: n.cfg.Metric.distance(query, vec)})
	}
	n.mu.Unlock()

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].PK < matches[j].PK
	})
}

// SetEfSearch mutates the per-query candidate-list depth at runtime.
func (mgr *Manager) SetEfSearch(ns string, v int) error {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return err
	}
	n.graph.setEfSearch(v)
	return nil
}

// Stats reports population size for diagnostics.
type Stats struct {
	Dimension int
	Count     int
}

func (mgr *Manager) Stats(ns string) (Stats, error) {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return Stats{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{Dimension: n.cfg.Dimension, Count: len(n.pkToLabel)}, nil
}

// Compact rebuilds the ANN structure from the non-tombstoned cache,
// reclaiming the bookkeeping cost of accumulated tombstones. It does not
// change search results: removed PKs never reappear with or without it.
func (mgr *Manager) Compact(ns string) error {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return err
	}

	n.mu.Lock()
	pks := make([]string, 0, len(n.pkToLabel))
	for pk := range n.pkToLabel {
		pks = append(pks, pk)
	}
	sort.Strings(pks)
	vecs := make(map[string][]float32, len(pks))
	for _, pk := range pks {
		vecs[pk] = n.cache[pk]
	}
	cfg := n.cfg
	n.mu.Unlock()

	fresh := newHNSWGraph(cfg.Metric, cfg.M, cfg.EfConstruction, cfg.EfSearch)
	newLabels := make(map[string]uint64, len(pks))
	var next uint64 = 1
	for _, pk := range pks {
		fresh.insert(next, vecs[pk])
		newLabels[pk] = next
		next++
	}

	n.mu.Lock()
	n.graph = fresh
	n.pkToLabel = make(map[string]uint64, len(newLabels))
	n.labelToPK = make(map[uint64]string, len(newLabels))
	for pk, label := range newLabels {
		n.pkToLabel[pk] = label
		n.labelToPK[label] = pk
	}
	n.nextLabel = next
	n.mu.Unlock()
	return nil
}
