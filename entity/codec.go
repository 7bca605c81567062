package entity

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Serialize encodes an entity's field map (not its primary key — the key is
// recovered separately from the KV key, per the key schema) into an opaque
// byte blob.
//
// Wire format: a field count (uint32 LE), followed by that many fields, each
// shaped as:
//
//	name length (uint16 LE) | name bytes | type tag (1 byte) | payload
//
// Payload shapes by type tag:
//
//	string : length (uint32 LE) | bytes
//	int    : 8 bytes, int64 LE
//	float  : 8 bytes, float64 bits LE
//	bool   : 1 byte, 0 or 1
//	vector : element count (uint32 LE) | that many float32 LE
func Serialize(e *Entity) ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(e.Fields))); err != nil {
		return nil, fmt.Errorf("entity: write field count: %w", err)
	}

	for name, v := range e.Fields {
		if len(name) > math.MaxUint16 {
			return nil, fmt.Errorf("entity: field name %q too long to encode", name)
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint16(len(name))); err != nil {
			return nil, fmt.Errorf("entity: write name length: %w", err)
		}
		buf.WriteString(name)
		buf.WriteByte(byte(v.Kind))

		if err := encodeValue(&buf, v); err != nil {
			return nil, fmt.Errorf("entity: encode field %q: %w", name, err)
		}
	}

	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch v.Kind {
	case KindString:
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(v.Str))); err != nil {
			return err
		}
		buf.WriteString(v.Str)
	case KindInt:
		return binary.Write(buf, binary.LittleEndian, v.Int)
	case KindFloat:
		return binary.Write(buf, binary.LittleEndian, math.Float64bits(v.Flt))
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		buf.WriteByte(b)
	case KindVector:
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(v.Vec))); err != nil {
			return err
		}
		for _, f := range v.Vec {
			if err := binary.Write(buf, binary.LittleEndian, math.Float32bits(f)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown value kind %d", v.Kind)
	}
	return nil
}

// Deserialize reconstructs an entity from its primary key and the byte blob
// produced by Serialize. It is the caller's responsibility to supply the
// correct pk — the blob itself carries no primary key.
func Deserialize(pk string, data []byte) (*Entity, error) {
	r := bytes.NewReader(data)

	var fieldCount uint32
	if err := binary.Read(r, binary.LittleEndian, &fieldCount); err != nil {
		return nil, fmt.Errorf("entity: read field count: %w", err)
	}

	e := New(pk)
	for i := uint32(0); i < fieldCount; i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("entity: read name length: %w", err)
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return nil, fmt.Errorf("entity: read name: %w", err)
		}

		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("entity: read type tag: %w", err)
		}

		v, err := decodeValue(r, Kind(kindByte))
		if err != nil {
			return nil, fmt.Errorf("entity: decode field %q: %w", nameBuf, err)
		}
		e.Fields[string(nameBuf)] = v
	}

	return e, nil
}

func decodeValue(r *bytes.Reader, kind Kind) (Value, error) {
	switch kind {
	case KindString:
		var length uint32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return Value{}, err
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Value{}, err
		}
		return String(string(buf)), nil
	case KindInt:
		var i int64
		if err := binary.Read(r, binary.LittleEndian, &i); err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case KindFloat:
		var bits uint64
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return Value{}, err
		}
		return Float(math.Float64frombits(bits)), nil
	case KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case KindVector:
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return Value{}, err
		}
		vec := make([]float32, count)
		for i := range vec {
			var bits uint32
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return Value{}, err
			}
			vec[i] = math.Float32frombits(bits)
		}
		return Value{Kind: KindVector, Vec: vec}, nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %d", kind)
	}
}
