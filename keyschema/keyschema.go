// Package keyschema is the single authority for the byte-string key formats
// the storage engine uses across its key-value keyspace. Every other
// component builds and parses keys exclusively through this package so the
// on-disk shape in one place.
package keyschema

import "strings"

// Separator joins every key segment. It is never escaped, so callers must
// not allow it inside a primary key, table name, column name, or edge id —
// the caller owns that guarantee, the same way the source specification
// leaves numeric-order formatting to callers of range scans.
const Separator = ":"

// Reserved top-level prefixes.
const (
	prefixIndex       = "idx"
	prefixIndexCatalog = "idx_catalog"
	prefixGraphOut    = "graph:out"
	prefixGraphIn     = "graph:in"
	prefixGraphEdge   = "graph:edge"
	prefixChunk       = "chunk"
	prefixContent     = "content"
)

// KeyType classifies a key string by its prefix shape.
type KeyType int

const (
	// KeyTypeRelational covers plain entity rows: table:pk.
	KeyTypeRelational KeyType = iota
	// KeyTypeSecondaryIndex covers idx:table:column:value:pk.
	KeyTypeSecondaryIndex
	// KeyTypeGraphOut covers graph:out:from_pk:edge_id.
	KeyTypeGraphOut
	// KeyTypeGraphIn covers graph:in:to_pk:edge_id.
	KeyTypeGraphIn
	// KeyTypeGraphEdge covers graph:edge:edge_id.
	KeyTypeGraphEdge
	// KeyTypeGraphNode is reserved for a future standalone node record; no
	// current component writes this shape, and ParseKeyType never returns it.
	KeyTypeGraphNode
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeSecondaryIndex:
		return "secondary_index"
	case KeyTypeGraphOut:
		return "graph_out"
	case KeyTypeGraphIn:
		return "graph_in"
	case KeyTypeGraphEdge:
		return "graph_edge"
	case KeyTypeGraphNode:
		return "graph_node"
	default:
		return "relational"
	}
}

// Entity builds the key for a row in a logical table: table:pk.
func Entity(table, pk string) string {
	return join(table, pk)
}

// SecondaryIndex builds an index entry key: idx:table:column:value:pk.
func SecondaryIndex(table, column, value, pk string) string {
	return join(prefixIndex, table, column, value, pk)
}

// SecondaryIndexPrefix builds the prefix shared by every index entry for one
// (table, column, value) triple, for equality prefix-scans.
func SecondaryIndexPrefix(table, column, value string) string {
	return join(prefixIndex, table, column, value) + Separator
}

// SecondaryIndexColumnPrefix builds the prefix shared by every index entry
// for a (table, column) pair, for range scans across all values.
func SecondaryIndexColumnPrefix(table, column string) string {
	return join(prefixIndex, table, column) + Separator
}

// IndexCatalog builds the catalog key describing an index's definition:
// idx_catalog:table:column.
func IndexCatalog(table, column string) string {
	return join(prefixIndexCatalog, table, column)
}

// IndexCatalogTablePrefix builds the prefix of every catalog entry for a
// table, used by reindex_table to enumerate a table's indexes.
func IndexCatalogTablePrefix(table string) string {
	return join(prefixIndexCatalog, table) + Separator
}

// GraphOut builds the outgoing-adjacency key: graph:out:from_pk:edge_id.
func GraphOut(fromPK, edgeID string) string {
	return join(prefixGraphOut, fromPK, edgeID)
}

// GraphOutPrefix builds the prefix of every outgoing edge from a node.
func GraphOutPrefix(fromPK string) string {
	return join(prefixGraphOut, fromPK) + Separator
}

// GraphIn builds the incoming-adjacency key: graph:in:to_pk:edge_id.
func GraphIn(toPK, edgeID string) string {
	return join(prefixGraphIn, toPK, edgeID)
}

// GraphInPrefix builds the prefix of every incoming edge into a node.
func GraphInPrefix(toPK string) string {
	return join(prefixGraphIn, toPK) + Separator
}

// GraphEdge builds the key for an edge's own entity record:
// graph:edge:edge_id.
func GraphEdge(edgeID string) string {
	return join(prefixGraphEdge, edgeID)
}

// GraphEdgePrefix is the prefix of every edge entity record, used to scan all
// edges (for time-range queries).
func GraphEdgePrefix() string {
	return prefixGraphEdge + Separator
}

// Chunk builds the key for a content chunk: chunk:document_pk:chunk_id.
func Chunk(documentPK, chunkID string) string {
	return join(prefixChunk, documentPK, chunkID)
}

// ChunkPrefix builds the prefix of every chunk belonging to a document.
func ChunkPrefix(documentPK string) string {
	return join(prefixChunk, documentPK) + Separator
}

// Content builds the key for a top-level content record: content:pk.
func Content(pk string) string {
	return join(prefixContent, pk)
}

// Vector builds the key for a vector-bearing entity under its namespace:
// namespace:pk. This is the same shape as Entity — a vector namespace is
// simply a logical table from the key schema's point of view.
func Vector(namespace, pk string) string {
	return Entity(namespace, pk)
}

// ParseKeyType classifies an arbitrary key string by its prefix.
func ParseKeyType(key string) KeyType {
	switch {
	case strings.HasPrefix(key, prefixIndex+Separator) && !strings.HasPrefix(key, prefixIndexCatalog+Separator):
		return KeyTypeSecondaryIndex
	case strings.HasPrefix(key, prefixGraphOut+Separator):
		return KeyTypeGraphOut
	case strings.HasPrefix(key, prefixGraphIn+Separator):
		return KeyTypeGraphIn
	case strings.HasPrefix(key, prefixGraphEdge+Separator):
		return KeyTypeGraphEdge
	default:
		return KeyTypeRelational
	}
}

// ExtractPK returns the trailing primary key from any key shape: the suffix
// after the last Separator.
func ExtractPK(key string) string {
	idx := strings.LastIndex(key, Separator)
	if idx == -1 {
		return key
	}
	return key[idx+1:]
}

func join(parts ...string) string {
	return strings.Join(parts, Separator)
}
