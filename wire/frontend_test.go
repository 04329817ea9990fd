package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestStartupMessageLayout(t *testing.T) {
	var buf bytes.Buffer
	StartupMessage(&buf, "alice", "mydb")

	out := buf.Bytes()
	length := binary.BigEndian.Uint32(out[0:4])
	if int(length) != len(out) {
		t.Fatalf("expected length field %d to equal full message length %d", length, len(out))
	}

	version := binary.BigEndian.Uint32(out[4:8])
	if version != ProtocolVersion {
		t.Fatalf("expected protocol version %d, got %d", ProtocolVersion, version)
	}

	rest := out[8:]
	if !bytes.Contains(rest, []byte("user\x00alice\x00")) {
		t.Fatalf("expected user key-value pair in body: %q", rest)
	}
	if !bytes.Contains(rest, []byte("database\x00mydb\x00")) {
		t.Fatalf("expected database key-value pair in body: %q", rest)
	}
	if rest[len(rest)-1] != 0 {
		t.Fatalf("expected startup message to end with a terminating NUL")
	}
}

func TestPasswordMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	PasswordMessage(&buf, "md5deadbeef")

	out := buf.Bytes()
	if out[0] != 'p' {
		t.Fatalf("expected tag 'p', got %q", out[0])
	}
	length := binary.BigEndian.Uint32(out[1:5])
	if int(length) != len(out)-1 {
		t.Fatalf("expected length to count everything after the tag byte")
	}
	body := out[5:]
	if string(body) != "md5deadbeef\x00" {
		t.Fatalf("expected NUL-terminated password, got %q", body)
	}
}

func TestParseMessageParamOIDs(t *testing.T) {
	var buf bytes.Buffer
	Parse(&buf, "stmt_abc", "SELECT $1", []uint32{23})

	out := buf.Bytes()
	if out[0] != 'P' {
		t.Fatalf("expected tag 'P', got %q", out[0])
	}

	body := out[5:]
	if !bytes.HasPrefix(body, []byte("stmt_abc\x00SELECT $1\x00")) {
		t.Fatalf("unexpected body prefix: %q", body)
	}
	tail := body[len("stmt_abc\x00SELECT $1\x00"):]
	count := binary.BigEndian.Uint16(tail[0:2])
	if count != 1 {
		t.Fatalf("expected 1 param OID, got %d", count)
	}
	oid := binary.BigEndian.Uint32(tail[2:6])
	if oid != 23 {
		t.Fatalf("expected OID 23, got %d", oid)
	}
}

func TestDescribeMessage(t *testing.T) {
	var buf bytes.Buffer
	Describe(&buf, 'S', "stmt_abc")

	out := buf.Bytes()
	if out[0] != 'D' {
		t.Fatalf("expected tag 'D', got %q", out[0])
	}
	body := out[5:]
	if body[0] != 'S' {
		t.Fatalf("expected kind byte 'S', got %q", body[0])
	}
	if string(body[1:]) != "stmt_abc\x00" {
		t.Fatalf("unexpected name bytes: %q", body[1:])
	}
}

func TestBindMessageFormatCodesAndNulls(t *testing.T) {
	var buf bytes.Buffer
	Bind(&buf, "portal_1", "stmt_abc", []BindParam{
		{Data: []byte{0, 0, 0, 1}},
		{Null: true},
	})

	out := buf.Bytes()
	if out[0] != 'B' {
		t.Fatalf("expected tag 'B', got %q", out[0])
	}

	body := out[5:]
	if !bytes.HasPrefix(body, []byte("portal_1\x00stmt_abc\x00")) {
		t.Fatalf("unexpected name prefix: %q", body)
	}
	pos := len("portal_1\x00stmt_abc\x00")

	fmtCount := binary.BigEndian.Uint16(body[pos : pos+2])
	if fmtCount != 2 {
		t.Fatalf("expected 2 format codes, got %d", fmtCount)
	}
	pos += 2
	for i := 0; i < 2; i++ {
		code := binary.BigEndian.Uint16(body[pos : pos+2])
		if code != 1 {
			t.Fatalf("expected binary format code 1, got %d", code)
		}
		pos += 2
	}

	valCount := binary.BigEndian.Uint16(body[pos : pos+2])
	if valCount != 2 {
		t.Fatalf("expected 2 parameter values, got %d", valCount)
	}
	pos += 2

	firstLen := int32(binary.BigEndian.Uint32(body[pos : pos+4]))
	pos += 4
	if firstLen != 4 {
		t.Fatalf("expected first param length 4, got %d", firstLen)
	}
	pos += int(firstLen)

	secondLen := int32(binary.BigEndian.Uint32(body[pos : pos+4]))
	pos += 4
	if secondLen != -1 {
		t.Fatalf("expected second param length -1 (null), got %d", secondLen)
	}

	resultFmtCount := binary.BigEndian.Uint16(body[pos : pos+2])
	pos += 2
	if resultFmtCount != 1 {
		t.Fatalf("expected exactly one result format code, got %d", resultFmtCount)
	}
	resultFmt := binary.BigEndian.Uint16(body[pos : pos+2])
	if resultFmt != 1 {
		t.Fatalf("expected binary result format, got %d", resultFmt)
	}
}

func TestExecuteMessageRequestsAllRows(t *testing.T) {
	var buf bytes.Buffer
	Execute(&buf, "portal_1")

	out := buf.Bytes()
	if out[0] != 'E' {
		t.Fatalf("expected tag 'E', got %q", out[0])
	}
	body := out[5:]
	if !bytes.HasPrefix(body, []byte("portal_1\x00")) {
		t.Fatalf("unexpected portal name: %q", body)
	}
	maxRows := binary.BigEndian.Uint32(body[len("portal_1\x00"):])
	if maxRows != 0 {
		t.Fatalf("expected maxRows 0 (all rows), got %d", maxRows)
	}
}

func TestCloseAndSyncMessages(t *testing.T) {
	var buf bytes.Buffer
	Close(&buf, 'P', "portal_1")
	out := buf.Bytes()
	if out[0] != 'C' {
		t.Fatalf("expected tag 'C', got %q", out[0])
	}

	buf.Reset()
	Sync(&buf)
	out = buf.Bytes()
	if out[0] != 'S' {
		t.Fatalf("expected tag 'S', got %q", out[0])
	}
	length := binary.BigEndian.Uint32(out[1:5])
	if length != 4 {
		t.Fatalf("expected Sync to carry an empty body, length 4, got %d", length)
	}
}

func TestQueryMessage(t *testing.T) {
	var buf bytes.Buffer
	Query(&buf, "SELECT 1")

	out := buf.Bytes()
	if out[0] != 'Q' {
		t.Fatalf("expected tag 'Q', got %q", out[0])
	}
	body := out[5:]
	if string(body) != "SELECT 1\x00" {
		t.Fatalf("expected NUL-terminated SQL text, got %q", body)
	}
}
