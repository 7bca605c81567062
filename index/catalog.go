// Package index is the secondary index coordinator (C4): it maintains
// regular, range, sparse, composite, and full-text index entries derived
// from entity field values, keeping them consistent with the primary rows
// on every put/erase and answering equality, range, and scored full-text
// lookups without scanning primary entities.
package index

import (
	"encoding/binary"
	"strings"

	"github.com/evalgo/themisgo/enginestatus"
	"github.com/evalgo/themisgo/keyschema"
)

// compositeSep joins the component values of a composite index so the
// concatenation cannot be confused for a different combination of column
// values; it must not appear in ordinary field values.
const compositeSep = "\x1f"

// Kind selects how an index maintains and answers lookups for a column.
type Kind uint8

const (
	// KindRegular writes one idx entry per (column, value, pk); the unique
	// flag on the definition rejects a second pk for the same value.
	KindRegular Kind = iota + 1
	// KindRange is shape-identical to KindRegular; range scans rely on the
	// caller having encoded values so lexicographic order matches the
	// intended numeric or temporal order.
	KindRange
	// KindSparse is shape-identical to KindRegular but is explicit about
	// skipping entities where the column is absent — regular and range
	// indexes already skip an absent column, so this kind exists for
	// callers that want to document the intent.
	KindSparse
	// KindComposite indexes the concatenation of Definition.Columns.
	KindComposite
	// KindFullText tokenizes the column's string value and writes one
	// posting per token, with a term frequency for BM25 scoring.
	KindFullText
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindRange:
		return "range"
	case KindSparse:
		return "sparse"
	case KindComposite:
		return "composite"
	case KindFullText:
		return "fulltext"
	default:
		return "unknown"
	}
}

// FullTextOptions configures how a KindFullText index tokenizes values at
// both write time and query time. It is ignored for every other Kind.
type FullTextOptions struct {
	// Language selects the stopword set and stemming rules Tokenize
	// applies. "en" is the only language with a non-empty stopword set and
	// a stemmer today; other languages still fold case and split on
	// non-alphanumeric runes, just without stopword removal or stemming.
	Language string
	// Stemming enables suffix-stripping so inflected forms ("explores",
	// "exploration") collapse onto a common token ("explor").
	Stemming bool
	// StopWords enables dropping Language's stopword set from the token
	// stream.
	StopWords bool
}

// Definition is a durable catalog entry describing one index.
type Definition struct {
	Table    string
	Column   string // the catalog lookup key; for composite, the "+"-joined column list
	Kind     Kind
	Unique   bool
	Columns  []string // populated for KindComposite; nil otherwise
	FullText FullTextOptions
}

// defaultFullTextOptions is applied to a KindFullText index created without
// an explicit FullTextOptions argument: English stopword removal, no
// stemming.
func defaultFullTextOptions() FullTextOptions {
	return FullTextOptions{Language: "en", StopWords: true}
}

// CreateIndex installs a catalog entry for (table, column). Re-issuing an
// identical definition is a no-op; issuing a conflicting one overwrites
// the catalog entry but does not itself touch existing index entries —
// call Rebuild to repopulate them under the new definition. opts configures
// tokenization for kind == KindFullText and is ignored otherwise; omitting
// it on a full-text index falls back to defaultFullTextOptions.
func CreateIndex(kvHandle KV, table, column string, unique bool, kind Kind, opts ...FullTextOptions) error {
	def := Definition{Table: table, Column: column, Kind: kind, Unique: unique}
	if kind == KindComposite {
		def.Columns = strings.Split(column, "+")
	}
	if kind == KindFullText {
		if len(opts) > 0 {
			def.FullText = opts[0]
		} else {
			def.FullText = defaultFullTextOptions()
		}
	}

	existing, found, err := GetCatalog(kvHandle, table, column)
	if err != nil {
		return err
	}
	if found && existing.Kind == kind && existing.Unique == unique && existing.FullText == def.FullText {
		return nil
	}

	return kvHandle.Put(keyschema.IndexCatalog(table, column), encodeDefinition(def))
}

// DropIndex removes the catalog entry. It does not delete existing index
// entries; callers that want that must also erase the old entries (for
// example by dropping and recreating the table, or a future sweep).
func DropIndex(kvHandle KV, table, column string) error {
	return kvHandle.Delete(keyschema.IndexCatalog(table, column))
}

// GetCatalog looks up the definition for (table, column).
func GetCatalog(kvHandle KV, table, column string) (Definition, bool, error) {
	data, found, err := kvHandle.Get(keyschema.IndexCatalog(table, column))
	if err != nil {
		return Definition{}, false, err
	}
	if !found {
		return Definition{}, false, nil
	}
	def, err := decodeDefinition(table, column, data)
	if err != nil {
		return Definition{}, false, err
	}
	return def, true, nil
}

// ListCatalog returns every index definition registered for a table.
func ListCatalog(kvHandle KV, table string) ([]Definition, error) {
	var defs []Definition
	var scanErr error
	err := kvHandle.ScanPrefix(keyschema.IndexCatalogTablePrefix(table), func(key string, value []byte) bool {
		column := strings.TrimPrefix(key, keyschema.IndexCatalogTablePrefix(table))
		def, err := decodeDefinition(table, column, value)
		if err != nil {
			scanErr = err
			return false
		}
		defs = append(defs, def)
		return true
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return defs, nil
}

// encodeDefinition lays out a catalog entry as:
//
//	byte 0:   Kind
//	byte 1:   Unique (0/1)
//	byte 2:   FullText.Stemming (0/1)
//	byte 3:   FullText.StopWords (0/1)
//	bytes 4-5: uint16 length of FullText.Language
//	remaining: FullText.Language bytes
//
// The FullText.* bytes are written for every Kind (not just KindFullText)
// so decodeDefinition has one fixed layout to parse; they are simply unused
// when Kind != KindFullText.
func encodeDefinition(def Definition) []byte {
	unique := byte(0)
	if def.Unique {
		unique = 1
	}
	stemming := byte(0)
	if def.FullText.Stemming {
		stemming = 1
	}
	stopWords := byte(0)
	if def.FullText.StopWords {
		stopWords = 1
	}

	lang := []byte(def.FullText.Language)
	buf := make([]byte, 6+len(lang))
	buf[0] = byte(def.Kind)
	buf[1] = unique
	buf[2] = stemming
	buf[3] = stopWords
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(lang)))
	copy(buf[6:], lang)
	return buf
}

func decodeDefinition(table, column string, data []byte) (Definition, error) {
	if len(data) < 2 {
		return Definition{}, enginestatus.Error(enginestatus.KindIntegrity,
			"index: malformed catalog entry for %s/%s", table, column).Err()
	}
	def := Definition{
		Table:  table,
		Column: column,
		Kind:   Kind(data[0]),
		Unique: data[1] != 0,
	}
	if def.Kind == KindComposite {
		def.Columns = strings.Split(column, "+")
	}
	if len(data) >= 6 {
		langLen := int(binary.LittleEndian.Uint16(data[4:6]))
		language := ""
		if len(data) >= 6+langLen {
			language = string(data[6 : 6+langLen])
		}
		def.FullText = FullTextOptions{
			Language:  language,
			Stemming:  data[2] != 0,
			StopWords: data[3] != 0,
		}
	}
	return def, nil
}
