package vector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/evalgo/themisgo/enginestatus"
)

const (
	annFileName    = "ann.bin"
	labelsFileName = "labels.txt"
	metaFileName   = "meta.json"
)

type metaFile struct {
	Namespace      string `json:"namespace"`
	Dimension      int    `json:"dimension"`
	Metric         string `json:"metric"`
	M              int    `json:"m"`
	EfConstruction int    `json:"ef_construction"`
	EfSearch       int    `json:"ef_search"`
}

// SaveIndex persists ns's ANN structure, pk/label bijection, and metadata
// to dir: ann.bin (binary graph dump), labels.txt (pk<TAB>label per line),
// meta.json (namespace, dimension, metric, M, ef_construction, ef_search).
func (mgr *Manager) SaveIndex(ns, dir string) error {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vector: create save directory: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := writeANNDump(filepath.Join(dir, annFileName), n.graph); err != nil {
		return err
	}
	if err := writeLabels(filepath.Join(dir, labelsFileName), n.pkToLabel); err != nil {
		return err
	}

	meta := metaFile{
		Namespace:      ns,
		Dimension:      n.cfg.Dimension,
		Metric:         n.cfg.Metric.String(),
		M:              n.cfg.M,
		EfConstruction: n.cfg.EfConstruction,
		EfSearch:       n.cfg.EfSearch,
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("vector: marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), metaBytes, 0o644); err != nil {
		return fmt.Errorf("vector: write metadata: %w", err)
	}
	return nil
}

func writeANNDump(path string, g *hnswGraph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vector: create ann dump: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	writeU64 := func(v uint64) error { return binary.Write(w, binary.LittleEndian, v) }
	writeU32 := func(v uint32) error { return binary.Write(w, binary.LittleEndian, v) }
	writeBool := func(v bool) error {
		b := byte(0)
		if v {
			b = 1
		}
		return w.WriteByte(b)
	}

	if err := writeBool(g.hasEntry); err != nil {
		return err
	}
	if err := writeU64(g.entryPoint); err != nil {
		return err
	}
	if err := writeU64(uint64(len(g.vectors))); err != nil {
		return err
	}

	for label, vec := range g.vectors {
		if err := writeU64(label); err != nil {
			return err
		}
		if err := writeBool(g.tombstoned[label]); err != nil {
			return err
		}
		if err := writeU32(uint32(len(vec))); err != nil {
			return err
		}
		for _, f32 := range vec {
			if err := binary.Write(w, binary.LittleEndian, f32); err != nil {
				return err
			}
		}
		neighbors := g.neighbors[label]
		if err := writeU32(uint32(len(neighbors))); err != nil {
			return err
		}
		for _, nb := range neighbors {
			if err := writeU64(nb); err != nil {
				return err
			}
		}
	}

	return w.Flush()
}

func readANNDump(path string, metric Metric, m, efConstruction, efSearch int) (*hnswGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vector: open ann dump: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	g := newHNSWGraph(metric, m, efConstruction, efSearch)

	var hasEntryByte byte
	if hasEntryByte, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("vector: read entry flag: %w", err)
	}
	g.hasEntry = hasEntryByte != 0

	if err := binary.Read(r, binary.LittleEndian, &g.entryPoint); err != nil {
		return nil, fmt.Errorf("vector: read entry point: %w", err)
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("vector: read node count: %w", err)
	}

	for i := uint64(0); i < count; i++ {
		var label uint64
		if err := binary.Read(r, binary.LittleEndian, &label); err != nil {
			return nil, fmt.Errorf("vector: read label: %w", err)
		}
		tombstoneByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("vector: read tombstone flag: %w", err)
		}

		var vecLen uint32
		if err := binary.Read(r, binary.LittleEndian, &vecLen); err != nil {
			return nil, fmt.Errorf("vector: read vector length: %w", err)
		}
		vec := make([]float32, vecLen)
		for j := range vec {
			if err := binary.Read(r, binary.LittleEndian, &vec[j]); err != nil {
				return nil, fmt.Errorf("vector: read vector element: %w", err)
			}
		}

		var neighborCount uint32
		if err := binary.Read(r, binary.LittleEndian, &neighborCount); err != nil {
			return nil, fmt.Errorf("vector: read neighbor count: %w", err)
		}
		neighbors := make([]uint64, neighborCount)
		for j := range neighbors {
			if err := binary.Read(r, binary.LittleEndian, &neighbors[j]); err != nil {
				return nil, fmt.Errorf("vector: read neighbor: %w", err)
			}
		}

		g.vectors[label] = vec
		g.neighbors[label] = neighbors
		if tombstoneByte != 0 {
			g.tombstoned[label] = true
		}
	}

	return g, nil
}

func writeLabels(path string, pkToLabel map[string]uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vector: create labels file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for pk, label := range pkToLabel {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", pk, label); err != nil {
			return err
		}
	}
	return w.Flush()
}

func readLabels(path string) (map[string]uint64, map[uint64]string, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("vector: open labels file: %w", err)
	}
	defer f.Close()

	pkToLabel := make(map[string]uint64)
	labelToPK := make(map[uint64]string)
	var maxLabel uint64

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, nil, 0, enginestatus.Error(enginestatus.KindIntegrity, "vector: malformed labels line %q", line).Err()
		}
		label, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, nil, 0, enginestatus.Error(enginestatus.KindIntegrity, "vector: malformed label in line %q", line).Err()
		}
		pkToLabel[parts[0]] = label
		labelToPK[label] = parts[0]
		if label > maxLabel {
			maxLabel = label
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, 0, fmt.Errorf("vector: scan labels file: %w", err)
	}
	return pkToLabel, labelToPK, maxLabel, nil
}

// LoadIndex restores a namespace's ANN structure, bijection, and cache from
// a directory previously written by SaveIndex. The namespace must already
// be Init'd; LoadIndex only restores population, not configuration.
func (mgr *Manager) LoadIndex(ns, dir string) error {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return err
	}

	metaBytes, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return fmt.Errorf("vector: read metadata: %w", err)
	}
	var meta metaFile
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("vector: unmarshal metadata: %w", err)
	}
	if meta.Dimension != n.cfg.Dimension {
		return enginestatus.Error(enginestatus.KindIntegrity,
			"vector: saved index dimension %d does not match namespace %q dimension %d", meta.Dimension, ns, n.cfg.Dimension).Err()
	}

	pkToLabel, labelToPK, maxLabel, err := readLabels(filepath.Join(dir, labelsFileName))
	if err != nil {
		return err
	}

	n.mu.Lock()
	graph, err := readANNDump(filepath.Join(dir, annFileName), n.cfg.Metric, n.cfg.M, n.cfg.EfConstruction, n.cfg.EfSearch)
	if err != nil {
		n.mu.Unlock()
		return err
	}

	cache := make(map[string][]float32, len(pkToLabel))
	for pk, label := range pkToLabel {
		cache[pk] = graph.vectors[label]
	}

	n.graph = graph
	n.pkToLabel = pkToLabel
	n.labelToPK = labelToPK
	n.cache = cache
	n.nextLabel = maxLabel + 1
	n.mu.Unlock()
	return nil
}

// Shutdown saves ns's index to its configured PersistDir if AutoSave is on.
// It is a no-op if AutoSave is false or PersistDir is empty.
func (mgr *Manager) Shutdown(ns string) error {
	n, err := mgr.namespaceFor(ns)
	if err != nil {
		return err
	}
	if !n.cfg.AutoSave || n.cfg.PersistDir == "" {
		return nil
	}
	return mgr.SaveIndex(ns, n.cfg.PersistDir)
}
