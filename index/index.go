package index

import (
	"sort"
	"strings"

	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/enginestatus"
	"github.com/evalgo/themisgo/keyschema"
	"github.com/evalgo/themisgo/kv"
)

// KV is the subset of the key-value surface the index coordinator needs.
// Both a bare store handle and an open transaction satisfy it, so every
// operation here works identically standalone or enrolled in a caller's
// transaction.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	ScanPrefix(prefix string, visit kv.Visitor) error
}

// Stats reports diagnostic information about one index.
type Stats struct {
	Kind       Kind
	EntryCount int
}

// Put synchronizes the index entries for table's indexed columns with
// entity's current field values, deleting any stale entries left over
// from the entity's previous values. The previous row is read from kvHandle
// before entity's caller overwrites it, so Put must be called before (or
// as part of) the same transaction's write of the primary row.
func Put(kvHandle KV, table string, e *entity.Entity) error {
	defs, err := ListCatalog(kvHandle, table)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return nil
	}

	old, hasOld, err := readEntity(kvHandle, table, e.PK)
	if err != nil {
		return err
	}

	for _, def := range defs {
		newValue, newOK := extractValue(def, e)
		var oldValue string
		var oldOK bool
		if hasOld {
			oldValue, oldOK = extractValue(def, old)
		}

		if oldOK && (!newOK || oldValue != newValue) {
			if err := removeEntries(kvHandle, def, oldValue, e.PK); err != nil {
				return err
			}
		}
		if newOK && (!oldOK || oldValue != newValue) {
			if err := writeEntries(kvHandle, def, newValue, e.PK); err != nil {
				return err
			}
		}
	}
	return nil
}

// Erase deletes every index entry for pk's current row in table. The row
// itself must still be readable through kvHandle when Erase is called.
func Erase(kvHandle KV, table, pk string) error {
	defs, err := ListCatalog(kvHandle, table)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return nil
	}

	old, hasOld, err := readEntity(kvHandle, table, pk)
	if err != nil || !hasOld {
		return err
	}

	for _, def := range defs {
		value, ok := extractValue(def, old)
		if !ok {
			continue
		}
		if err := removeEntries(kvHandle, def, value, pk); err != nil {
			return err
		}
	}
	return nil
}

// ScanKeysEqual returns the primary keys indexed under an exact value, in
// lexicographic order of the index key (which, since the pk is the key's
// trailing segment, is PK-ascending for a fixed value).
func ScanKeysEqual(kvHandle KV, table, column, value string) ([]string, error) {
	var pks []string
	err := kvHandle.ScanPrefix(keyschema.SecondaryIndexPrefix(table, column, value), func(key string, _ []byte) bool {
		pks = append(pks, keyschema.ExtractPK(key))
		return true
	})
	return pks, err
}

// ScanKeysRange returns the primary keys indexed under [lo, hi], with
// inclusive or exclusive endpoints per the inclusive argument, in
// lexicographic order of the encoded value.
func ScanKeysRange(kvHandle KV, table, column, lo, hi string, inclusive bool) ([]string, error) {
	var pks []string
	err := kvHandle.ScanPrefix(keyschema.SecondaryIndexColumnPrefix(table, column), func(key string, _ []byte) bool {
		rest := strings.TrimPrefix(key, keyschema.SecondaryIndexColumnPrefix(table, column))
		sepIdx := strings.LastIndex(rest, keyschema.Separator)
		if sepIdx == -1 {
			return true
		}
		value := rest[:sepIdx]
		if value < lo || value > hi {
			if value > hi {
				return false
			}
			return true
		}
		if !inclusive && (value == lo || value == hi) {
			return true
		}
		pks = append(pks, rest[sepIdx+1:])
		return true
	})
	return pks, err
}

// StatsFor computes diagnostic counters for one index by scanning its
// entries.
func StatsFor(kvHandle KV, table, column string) (Stats, error) {
	def, found, err := GetCatalog(kvHandle, table, column)
	if err != nil {
		return Stats{}, err
	}
	if !found {
		return Stats{}, nil
	}

	count := 0
	err = kvHandle.ScanPrefix(keyschema.SecondaryIndexColumnPrefix(table, column), func(string, []byte) bool {
		count++
		return true
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{Kind: def.Kind, EntryCount: count}, nil
}

// Rebuild drops and recomputes every entry for one index by scanning every
// row in table.
func Rebuild(kvHandle KV, table, column string) error {
	def, found, err := GetCatalog(kvHandle, table, column)
	if err != nil {
		return err
	}
	if !found {
		return enginestatus.Error(enginestatus.KindNotFound, "index: no definition for %s/%s", table, column).Err()
	}

	if err := dropAllEntries(kvHandle, def); err != nil {
		return err
	}

	var entities []*entity.Entity
	prefix := table + keyschema.Separator
	var scanErr error
	err = kvHandle.ScanPrefix(prefix, func(key string, value []byte) bool {
		pk := keyschema.ExtractPK(key)
		e, derr := entity.Deserialize(pk, value)
		if derr != nil {
			scanErr = derr
			return false
		}
		entities = append(entities, e)
		return true
	})
	if err != nil {
		return err
	}
	if scanErr != nil {
		return scanErr
	}

	for _, e := range entities {
		value, ok := extractValue(def, e)
		if !ok {
			continue
		}
		if err := writeEntries(kvHandle, def, value, e.PK); err != nil {
			return err
		}
	}
	return nil
}

// ReindexTable rebuilds every index registered for table.
func ReindexTable(kvHandle KV, table string) error {
	defs, err := ListCatalog(kvHandle, table)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := Rebuild(kvHandle, table, def.Column); err != nil {
			return err
		}
	}
	return nil
}

func readEntity(kvHandle KV, table, pk string) (*entity.Entity, bool, error) {
	data, found, err := kvHandle.Get(keyschema.Entity(table, pk))
	if err != nil || !found {
		return nil, false, err
	}
	e, err := entity.Deserialize(pk, data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// extractValue computes the indexable string for one definition against
// one entity. Full text indexing extracts the raw field value (tokenized
// separately by the caller); all other kinds extract the field's rendered
// string. A sparse-missing or absent field reports ok=false.
func extractValue(def Definition, e *entity.Entity) (string, bool) {
	if def.Kind == KindComposite {
		parts := make([]string, 0, len(def.Columns))
		for _, col := range def.Columns {
			v, ok := e.Get(col)
			if !ok {
				return "", false
			}
			parts = append(parts, v.AsString())
		}
		return strings.Join(parts, compositeSep), true
	}

	v, ok := e.Get(def.Column)
	if !ok {
		return "", false
	}
	return v.AsString(), true
}

func writeEntries(kvHandle KV, def Definition, value, pk string) error {
	if def.Kind == KindFullText {
		return writeFullTextEntries(kvHandle, def, value, pk)
	}
	if def.Unique {
		existing, err := ScanKeysEqual(kvHandle, def.Table, def.Column, value)
		if err != nil {
			return err
		}
		for _, existingPK := range existing {
			if existingPK != pk {
				return enginestatus.Error(enginestatus.KindConflict,
					"index: unique index %s/%s already has a row for value %q", def.Table, def.Column, value).Err()
			}
		}
	}
	return kvHandle.Put(keyschema.SecondaryIndex(def.Table, def.Column, value, pk), nil)
}

func removeEntries(kvHandle KV, def Definition, value, pk string) error {
	if def.Kind == KindFullText {
		return removeFullTextEntries(kvHandle, def, value, pk)
	}
	return kvHandle.Delete(keyschema.SecondaryIndex(def.Table, def.Column, value, pk))
}

func dropAllEntries(kvHandle KV, def Definition) error {
	var keys []string
	err := kvHandle.ScanPrefix(keyschema.SecondaryIndexColumnPrefix(def.Table, def.Column), func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return err
	}
	if def.Kind == KindFullText {
		err = kvHandle.ScanPrefix(docLenPrefix(def.Table, def.Column), func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		})
		if err != nil {
			return err
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := kvHandle.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
