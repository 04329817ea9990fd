// Package param encodes the client's tagged parameter variants into the
// (type OID, big-endian bytes) pairs the Bind message needs.
package param

import (
	"encoding/binary"
	"math"
)

// OIDs used when encoding parameter values, per the spec's parameter table.
const (
	oidInt8   = 20
	oidBool   = 16
	oidInt4   = 23
	oidText   = 25
	oidFloat8 = 701
	oidNull   = 0
)

// Parameter is one bound query argument: a type OID plus its encoded bytes,
// or the null marker (OID 0, no bytes).
type Parameter struct {
	oid  uint32
	data []byte
	null bool
}

// OID returns the PostgreSQL type OID this parameter will be bound as.
func (p Parameter) OID() uint32 { return p.oid }

// Encode returns the raw big-endian bytes to send, and whether the
// parameter is SQL NULL (in which case the bytes are ignored).
func (p Parameter) Encode() ([]byte, bool) { return p.data, p.null }

// Null is the explicit SQL NULL parameter; it encodes as type OID 0 with no
// bytes.
var Null = Parameter{oid: oidNull, null: true}

// Int4 builds an int4 parameter.
func Int4(v int32) Parameter {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return Parameter{oid: oidInt4, data: b}
}

// Int8 builds an int8 parameter.
func Int8(v int64) Parameter {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return Parameter{oid: oidInt8, data: b}
}

// Float8 builds a float8 parameter.
func Float8(v float64) Parameter {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return Parameter{oid: oidFloat8, data: b}
}

// Bool builds a bool parameter, encoded as a single 0/1 byte.
func Bool(v bool) Parameter {
	b := byte(0)
	if v {
		b = 1
	}
	return Parameter{oid: oidBool, data: []byte{b}}
}

// Text builds a text parameter, encoded as its UTF-8 bytes.
func Text(v string) Parameter {
	return Parameter{oid: oidText, data: []byte(v)}
}

// OIDs returns the type OID vector for params, in order — the shape the
// Parse message's parameter type list carries and the prepared-statement
// cache checks on a hit.
func OIDs(params []Parameter) []uint32 {
	oids := make([]uint32, len(params))
	for i, p := range params {
		oids[i] = p.oid
	}
	return oids
}

// EqualOIDs reports whether two OID vectors match element-for-element.
func EqualOIDs(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
