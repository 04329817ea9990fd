// Package wire implements the byte-level framing of the PostgreSQL
// frontend/backend protocol, version 3 (196608). It is pure byte logic: the
// decoder consumes whatever bytes the caller feeds it and the encoders
// append well-formed frames to a caller-supplied buffer. No socket I/O
// happens in this package.
package wire

import "encoding/binary"

// Tag identifies a backend message type: the single byte preceding its
// length field.
type Tag byte

// Backend message tags this client understands. Any tag not listed here is
// still framed correctly by Decoder and returned with its raw tag byte;
// callers ignore it.
const (
	TagAuthentication     Tag = 'R'
	TagErrorResponse      Tag = 'E'
	TagParameterStatus    Tag = 'S'
	TagBackendKeyData     Tag = 'K'
	TagReadyForQuery      Tag = 'Z'
	TagParseComplete      Tag = '1'
	TagParameterDesc      Tag = 't'
	TagRowDescription     Tag = 'T'
	TagNoData             Tag = 'n'
	TagDataRow            Tag = 'D'
	TagCommandComplete    Tag = 'C'
	TagCloseComplete      Tag = '3'
	TagEmptyQueryResponse Tag = 'I'
)

// Authentication sub-codes carried in the first 4 bytes of an
// AuthenticationXXX message body.
const (
	AuthOk                = 0
	AuthCleartextPassword = 3
	AuthMD5Password       = 5
	AuthSASL              = 10
	AuthSASLContinue      = 11
	AuthSASLFinal         = 12
)

// FieldDescriptor describes one column of a RowDescription message.
type FieldDescriptor struct {
	Name         string
	TableOID     uint32
	ColumnAttr   int16
	TypeOID      uint32
	TypeSize     int16
	TypeModifier int32
	FormatCode   int16
}

// Message is one fully-framed backend message. Body is the raw payload
// (everything after the 4-byte length); callers that need sub-structure
// (RowDescription fields, DataRow column values, auth payload) parse Body
// with the helpers below.
type Message struct {
	Tag  Tag
	Body []byte
}

// Decoder frames inbound backend bytes into Messages. It is not
// safe for concurrent use; callers serialize access to one Decoder per
// connection, matching the session's single-reader invariant.
type Decoder struct {
	buf []byte
}

// Feed appends newly-read socket bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next attempts to parse one complete message from the buffered bytes. It
// returns ok == false when fewer than a full message is available; callers
// should Feed more bytes and retry. Next never blocks and never performs
// I/O.
func (d *Decoder) Next() (Message, bool) {
	if len(d.buf) < 5 {
		return Message{}, false
	}
	tag := Tag(d.buf[0])
	length := binary.BigEndian.Uint32(d.buf[1:5])
	if length < 4 {
		// Malformed length; treat as "need more data" rather than panic —
		// the session's read then fails only when the connection closes or
		// its deadline passes.
		return Message{}, false
	}
	total := 1 + int(length)
	if len(d.buf) < total {
		return Message{}, false
	}
	body := make([]byte, int(length)-4)
	copy(body, d.buf[5:total])
	d.buf = d.buf[total:]
	return Message{Tag: tag, Body: body}, true
}

// Pending reports whether the decoder still holds any unconsumed bytes,
// whether a partial message or one or more complete ones not yet taken by
// Next.
func (d *Decoder) Pending() bool {
	return len(d.buf) > 0
}

// AuthCode extracts the authentication sub-code from an Authentication*
// message body. Returns false if the body is too short to contain one.
func AuthCode(body []byte) (uint32, bool) {
	if len(body) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(body[:4]), true
}

// MD5Salt extracts the 4-byte salt from an AuthenticationMD5Password body
// (sub-code followed by the salt).
func MD5Salt(body []byte) ([4]byte, bool) {
	var salt [4]byte
	if len(body) < 8 {
		return salt, false
	}
	copy(salt[:], body[4:8])
	return salt, true
}

// ParseFields decodes the field descriptors of a RowDescription body.
func ParseFields(body []byte) []FieldDescriptor {
	fields := make([]FieldDescriptor, 0, 8)
	pos := 0
	if len(body) < 2 {
		return fields
	}
	count := int(binary.BigEndian.Uint16(body[0:2]))
	pos = 2
	for i := 0; i < count && pos < len(body); i++ {
		nameEnd := pos
		for nameEnd < len(body) && body[nameEnd] != 0 {
			nameEnd++
		}
		name := string(body[pos:nameEnd])
		pos = nameEnd + 1
		if pos+18 > len(body) {
			break
		}
		f := FieldDescriptor{
			Name:         name,
			TableOID:     binary.BigEndian.Uint32(body[pos : pos+4]),
			ColumnAttr:   int16(binary.BigEndian.Uint16(body[pos+4 : pos+6])),
			TypeOID:      binary.BigEndian.Uint32(body[pos+6 : pos+10]),
			TypeSize:     int16(binary.BigEndian.Uint16(body[pos+10 : pos+12])),
			TypeModifier: int32(binary.BigEndian.Uint32(body[pos+12 : pos+16])),
			FormatCode:   int16(binary.BigEndian.Uint16(body[pos+16 : pos+18])),
		}
		pos += 18
		fields = append(fields, f)
	}
	return fields
}

// DataRowValues decodes a DataRow body into one slice per column, where a
// nil element denotes SQL NULL (the protocol's -1 length marker).
func DataRowValues(body []byte) [][]byte {
	if len(body) < 2 {
		return nil
	}
	count := int(binary.BigEndian.Uint16(body[0:2]))
	values := make([][]byte, 0, count)
	pos := 2
	for i := 0; i < count; i++ {
		if pos+4 > len(body) {
			break
		}
		length := int32(binary.BigEndian.Uint32(body[pos : pos+4]))
		pos += 4
		if length < 0 {
			values = append(values, nil)
			continue
		}
		end := pos + int(length)
		if end > len(body) {
			end = len(body)
		}
		values = append(values, body[pos:end])
		pos = end
	}
	return values
}

// ErrorField extracts the human-readable message ('M' field) from an
// ErrorResponse body.
func ErrorField(body []byte) string {
	i := 0
	for i < len(body) {
		fieldType := body[i]
		if fieldType == 0 {
			break
		}
		i++
		start := i
		for i < len(body) && body[i] != 0 {
			i++
		}
		if fieldType == 'M' {
			return string(body[start:i])
		}
		if i < len(body) {
			i++
		}
	}
	return "unknown server error"
}

// TransactionStatus returns the single status byte of a ReadyForQuery body
// ('I' idle, 'T' in-transaction, 'E' failed-transaction).
func TransactionStatus(body []byte) byte {
	if len(body) == 0 {
		return 0
	}
	return body[0]
}
