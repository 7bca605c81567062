package entity

import "github.com/google/uuid"

// Reserved field names on an edge entity, per the graph data model.
const (
	FieldID        = "id"
	FieldFrom      = "_from"
	FieldTo        = "_to"
	FieldWeight    = "_weight"
	FieldValidFrom = "valid_from"
	FieldValidTo   = "valid_to"

	// DefaultEdgeWeight is used when an edge entity has no _weight field.
	DefaultEdgeWeight = 1.0
)

// Entity is a primary key plus a field map. The core assigns no schema to
// entities; schema is a property of the caller.
type Entity struct {
	PK     string
	Fields map[string]Value
}

// New creates an entity with an empty field map.
func New(pk string) *Entity {
	return &Entity{PK: pk, Fields: make(map[string]Value)}
}

// Clone makes a deep copy of the entity, including vector payloads.
func (e *Entity) Clone() *Entity {
	out := New(e.PK)
	for k, v := range e.Fields {
		if v.Kind == KindVector {
			v.Vec = append([]float32(nil), v.Vec...)
		}
		out.Fields[k] = v
	}
	return out
}

// Get returns the field value and whether it is present.
func (e *Entity) Get(field string) (Value, bool) {
	v, ok := e.Fields[field]
	return v, ok
}

// Set assigns a field value, overwriting any previous value.
func (e *Entity) Set(field string, v Value) {
	e.Fields[field] = v
}

// IsEdge reports whether the entity carries the reserved edge fields.
func (e *Entity) IsEdge() bool {
	_, hasID := e.Get(FieldID)
	_, hasFrom := e.Get(FieldFrom)
	_, hasTo := e.Get(FieldTo)
	return hasID && hasFrom && hasTo
}

// EdgeID returns the edge's id field, or "" if absent.
func (e *Entity) EdgeID() string {
	if v, ok := e.Get(FieldID); ok && v.Kind == KindString {
		return v.Str
	}
	return ""
}

// From returns the edge's _from field, or "" if absent.
func (e *Entity) From() string {
	if v, ok := e.Get(FieldFrom); ok && v.Kind == KindString {
		return v.Str
	}
	return ""
}

// To returns the edge's _to field, or "" if absent.
func (e *Entity) To() string {
	if v, ok := e.Get(FieldTo); ok && v.Kind == KindString {
		return v.Str
	}
	return ""
}

// Weight returns the edge's _weight field, defaulting to DefaultEdgeWeight.
func (e *Entity) Weight() float64 {
	if v, ok := e.Get(FieldWeight); ok {
		switch v.Kind {
		case KindFloat:
			return v.Flt
		case KindInt:
			return float64(v.Int)
		}
	}
	return DefaultEdgeWeight
}

// ValidFrom returns the edge's valid_from bound, if set.
func (e *Entity) ValidFrom() (int64, bool) {
	if v, ok := e.Get(FieldValidFrom); ok && v.Kind == KindInt {
		return v.Int, true
	}
	return 0, false
}

// ValidTo returns the edge's valid_to bound, if set.
func (e *Entity) ValidTo() (int64, bool) {
	if v, ok := e.Get(FieldValidTo); ok && v.Kind == KindInt {
		return v.Int, true
	}
	return 0, false
}

// NewEdge builds an edge entity with a fresh uuid id, keyed on that id, and
// the given endpoints. Callers that need a caller-chosen edge id should
// construct the entity directly with New and Set instead.
func NewEdge(from, to string) *Entity {
	id := uuid.NewString()
	e := New(id)
	e.Set(FieldID, String(id))
	e.Set(FieldFrom, String(from))
	e.Set(FieldTo, String(to))
	return e
}
