package wire

import (
	"bytes"
	"encoding/binary"
)

// ProtocolVersion is PostgreSQL protocol version 3.0, encoded as
// (major << 16 | minor).
const ProtocolVersion uint32 = 3<<16 | 0

// frame writes tag (if non-zero; StartupMessage has none) + 4-byte BE
// length (counting itself, not the tag) + body into dst.
func frame(dst *bytes.Buffer, tag byte, body []byte) {
	if tag != 0 {
		dst.WriteByte(tag)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)+4))
	dst.Write(lenBuf[:])
	dst.Write(body)
}

// StartupMessage writes the untagged startup message: protocol version
// followed by NUL-terminated "user"/"database" key-value pairs and a final
// terminating NUL.
func StartupMessage(dst *bytes.Buffer, user, database string) {
	var body bytes.Buffer
	var ver [4]byte
	binary.BigEndian.PutUint32(ver[:], ProtocolVersion)
	body.Write(ver[:])

	body.WriteString("user")
	body.WriteByte(0)
	body.WriteString(user)
	body.WriteByte(0)

	body.WriteString("database")
	body.WriteByte(0)
	body.WriteString(database)
	body.WriteByte(0)

	body.WriteByte(0)

	frame(dst, 0, body.Bytes())
}

// PasswordMessage writes a PasswordMessage ('p') carrying response, which
// for cleartext auth is the plaintext password and for MD5 auth is the
// "md5<hex>" string produced by pgerr.MD5Password.
func PasswordMessage(dst *bytes.Buffer, response string) {
	body := append([]byte(response), 0)
	frame(dst, 'p', body)
}

// Parse writes a Parse message for a new statement name, SQL text, and its
// parameter type OIDs.
func Parse(dst *bytes.Buffer, statementName, sql string, paramOIDs []uint32) {
	var body bytes.Buffer
	body.WriteString(statementName)
	body.WriteByte(0)
	body.WriteString(sql)
	body.WriteByte(0)

	var count [2]byte
	binary.BigEndian.PutUint16(count[:], uint16(len(paramOIDs)))
	body.Write(count[:])
	for _, oid := range paramOIDs {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], oid)
		body.Write(b[:])
	}
	frame(dst, 'P', body.Bytes())
}

// Describe writes a Describe message. kind is 'S' for a prepared statement
// or 'P' for a portal.
func Describe(dst *bytes.Buffer, kind byte, name string) {
	var body bytes.Buffer
	body.WriteByte(kind)
	body.WriteString(name)
	body.WriteByte(0)
	frame(dst, 'D', body.Bytes())
}

// BindParam is one encoded parameter value: data is the raw big-endian
// bytes to send, and null reports whether the parameter is SQL NULL (in
// which case data is ignored).
type BindParam struct {
	Data []byte
	Null bool
}

// Bind writes a Bind message binding params to portalName against
// statementName, requesting all parameters and all result columns in
// binary format (format code 1), per spec.
func Bind(dst *bytes.Buffer, portalName, statementName string, params []BindParam) {
	var body bytes.Buffer
	body.WriteString(portalName)
	body.WriteByte(0)
	body.WriteString(statementName)
	body.WriteByte(0)

	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], uint16(len(params)))
	body.Write(u16[:]) // parameter format code count
	for range params {
		binary.BigEndian.PutUint16(u16[:], 1) // binary
		body.Write(u16[:])
	}

	binary.BigEndian.PutUint16(u16[:], uint16(len(params)))
	body.Write(u16[:]) // parameter value count
	for _, p := range params {
		if p.Null {
			var neg1 [4]byte
			binary.BigEndian.PutUint32(neg1[:], 0xFFFFFFFF)
			body.Write(neg1[:])
			continue
		}
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(p.Data)))
		body.Write(l[:])
		body.Write(p.Data)
	}

	binary.BigEndian.PutUint16(u16[:], 1) // one result format code
	body.Write(u16[:])
	binary.BigEndian.PutUint16(u16[:], 1) // binary
	body.Write(u16[:])

	frame(dst, 'B', body.Bytes())
}

// Execute writes an Execute message for portalName requesting all rows
// (maxRows == 0).
func Execute(dst *bytes.Buffer, portalName string) {
	var body bytes.Buffer
	body.WriteString(portalName)
	body.WriteByte(0)
	var maxRows [4]byte
	binary.BigEndian.PutUint32(maxRows[:], 0)
	body.Write(maxRows[:])
	frame(dst, 'E', body.Bytes())
}

// Close writes a Close message. kind is 'S' for a statement or 'P' for a
// portal.
func Close(dst *bytes.Buffer, kind byte, name string) {
	var body bytes.Buffer
	body.WriteByte(kind)
	body.WriteString(name)
	body.WriteByte(0)
	frame(dst, 'C', body.Bytes())
}

// Sync writes an empty Sync message.
func Sync(dst *bytes.Buffer) {
	frame(dst, 'S', nil)
}

// Query writes a simple-query message carrying sql, used only by Ping.
func Query(dst *bytes.Buffer, sql string) {
	body := append([]byte(sql), 0)
	frame(dst, 'Q', body)
}
