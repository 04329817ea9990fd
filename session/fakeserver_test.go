package session

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/pgframe/pgframe/wire"
)

// fakeServer plays the server side of the wire protocol over a net.Pipe
// connection, recording the message tags of each batch (everything up to and
// including a Sync, or a simple-query Query as sent by Ping) and replying
// with a scripted response per batch. It has no notion of SQL semantics; it
// only knows framing.
type fakeServer struct {
	conn            net.Conn
	startupResponse []byte
	responses       [][]byte

	batches [][]wire.Tag
}

func msg(tag byte, body []byte) []byte {
	out := make([]byte, 0, 5+len(body))
	out = append(out, tag)
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(body)+4))
	out = append(out, l[:]...)
	out = append(out, body...)
	return out
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func authOkReady() []byte {
	var out []byte
	out = append(out, msg('R', u32(wire.AuthOk))...)
	out = append(out, msg('Z', []byte{'I'})...)
	return out
}

func errorResponseBody(message string) []byte {
	var body []byte
	body = append(body, 'M')
	body = append(body, []byte(message)...)
	body = append(body, 0)
	body = append(body, 0)
	return body
}

func readyForQuery() []byte {
	return msg('Z', []byte{'I'})
}

func commandComplete(tag string) []byte {
	body := append([]byte(tag), 0)
	return msg('C', body)
}

func rowDescriptionInt4(name string) []byte {
	var body []byte
	body = append(body, 0, 1) // field count
	body = append(body, []byte(name)...)
	body = append(body, 0)
	body = append(body, u32(0)...)    // table oid
	body = append(body, 0, 0)         // column attr
	body = append(body, u32(23)...)   // type oid (int4)
	body = append(body, 0, 4)         // type size
	body = append(body, u32(0)...)    // type modifier
	body = append(body, 0, 1)         // format code: binary
	return msg('T', body)
}

func noData() []byte {
	return msg('n', nil)
}

func dataRowInt4(v int32) []byte {
	var body []byte
	body = append(body, 0, 1) // column count
	body = append(body, u32(4)...)
	vb := make([]byte, 4)
	binary.BigEndian.PutUint32(vb, uint32(v))
	body = append(body, vb...)
	return msg('D', body)
}

// run reads the startup message, replies with startupResponse, then services
// each batch in order, replying with the matching entry from responses (if
// any) once that batch's Sync or Query is observed.
func (fs *fakeServer) run() {
	if err := fs.readStartup(); err != nil {
		return
	}
	fs.conn.Write(fs.startupResponse)

	dec := &wire.Decoder{}
	buf := make([]byte, 8192)
	var current []wire.Tag
	batchIdx := 0

	for {
		m, ok := dec.Next()
		if !ok {
			n, err := fs.conn.Read(buf)
			if err != nil {
				return
			}
			dec.Feed(buf[:n])
			continue
		}
		current = append(current, m.Tag)
		if m.Tag == wire.Tag('S') || m.Tag == wire.Tag('Q') {
			fs.batches = append(fs.batches, current)
			current = nil
			if batchIdx < len(fs.responses) {
				fs.conn.Write(fs.responses[batchIdx])
			}
			batchIdx++
		}
	}
}

func (fs *fakeServer) readStartup() error {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(fs.conn, lenBuf); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	body := make([]byte, int(length)-4)
	_, err := io.ReadFull(fs.conn, body)
	return err
}
