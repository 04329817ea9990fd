package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pgframe/pgframe/param"
	"github.com/pgframe/pgframe/pgerr"
	"github.com/pgframe/pgframe/wire"
)

func newTestSession(conn net.Conn, prepare bool) *Session {
	return &Session{
		opts:  Options{User: "u", Password: "p", Database: "d", Prepare: prepare},
		conn:  conn,
		cache: make(map[string]*preparedStatement),
	}
}

func TestSessionConnectSuccess(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fs := &fakeServer{conn: server, startupResponse: authOkReady()}
	go fs.run()

	sess := newTestSession(client, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	if sess.HasBroken() {
		t.Fatalf("expected session healthy after successful connect")
	}
}

func TestSessionQuerySuccess(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	var resp []byte
	resp = append(resp, rowDescriptionInt4("n")...)
	resp = append(resp, dataRowInt4(42)...)
	resp = append(resp, commandComplete("SELECT 1")...)
	resp = append(resp, readyForQuery()...)

	fs := &fakeServer{
		conn:            server,
		startupResponse: authOkReady(),
		responses:       [][]byte{resp},
	}
	go fs.run()

	sess := newTestSession(client, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	df, err := sess.Query(ctx, "SELECT $1::int4", param.Int4(1))
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if df.NumRows() != 1 || df.NumColumns() != 1 {
		t.Fatalf("expected 1x1 dataframe, got %dx%d", df.NumRows(), df.NumColumns())
	}
	col, ok := df.Column("n")
	if !ok || col.Int32s[0] != 42 {
		t.Fatalf("unexpected column contents: %+v", col)
	}
}

func TestSessionQueryNoData(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	var resp []byte
	resp = append(resp, noData()...)
	resp = append(resp, commandComplete("INSERT 0 1")...)
	resp = append(resp, readyForQuery()...)

	fs := &fakeServer{
		conn:            server,
		startupResponse: authOkReady(),
		responses:       [][]byte{resp},
	}
	go fs.run()

	sess := newTestSession(client, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	df, err := sess.Query(ctx, "INSERT INTO t VALUES (1)")
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if df.NumColumns() != 0 {
		t.Fatalf("expected zero-column dataframe for NoData, got %d columns", df.NumColumns())
	}
}

func TestSessionQueryErrorMarksUnhealthy(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	var resp []byte
	resp = append(resp, msg('E', errorResponseBody("relation \"t\" does not exist"))...)
	resp = append(resp, readyForQuery()...)

	fs := &fakeServer{
		conn:            server,
		startupResponse: authOkReady(),
		responses:       [][]byte{resp},
	}
	go fs.run()

	sess := newTestSession(client, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	_, err := sess.Query(ctx, "SELECT * FROM t")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if kind, ok := pgerr.KindOf(err); !ok || kind != pgerr.QueryError {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if !sess.HasBroken() {
		t.Fatalf("expected session to be marked unhealthy after a query error")
	}
}

func TestSessionQueryCacheHitSkipsParseAndDescribe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	firstResp := append(append(append([]byte{}, rowDescriptionInt4("n")...), dataRowInt4(1)...), append(commandComplete("SELECT 1"), readyForQuery()...)...)
	secondResp := append(append([]byte{}, dataRowInt4(2)...), append(commandComplete("SELECT 1"), readyForQuery()...)...)

	fs := &fakeServer{
		conn:            server,
		startupResponse: authOkReady(),
		responses:       [][]byte{firstResp, secondResp},
	}
	go fs.run()

	sess := newTestSession(client, true) // Prepare enabled
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	if _, err := sess.Query(ctx, "SELECT $1::int4", param.Int4(1)); err != nil {
		t.Fatalf("first Query error: %v", err)
	}
	if _, err := sess.Query(ctx, "SELECT $1::int4", param.Int4(2)); err != nil {
		t.Fatalf("second Query error: %v", err)
	}

	if len(fs.batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(fs.batches))
	}

	firstHasParse := false
	for _, tag := range fs.batches[0] {
		if tag == wire.Tag('P') {
			firstHasParse = true
		}
	}
	if !firstHasParse {
		t.Fatalf("expected the first batch to include a Parse message")
	}

	for _, tag := range fs.batches[1] {
		if tag == wire.Tag('P') || tag == wire.Tag('D') {
			t.Fatalf("expected the second (cache hit) batch to skip Parse/Describe, got tags %v", fs.batches[1])
		}
	}
}

func TestSessionQueryParamTypeMismatchSkipsWire(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	firstResp := append(append([]byte{}, rowDescriptionInt4("n")...), append(dataRowInt4(1), append(commandComplete("SELECT 1"), readyForQuery()...)...)...)

	fs := &fakeServer{
		conn:            server,
		startupResponse: authOkReady(),
		responses:       [][]byte{firstResp},
	}
	go fs.run()

	sess := newTestSession(client, true)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	if _, err := sess.Query(ctx, "SELECT $1", param.Int4(1)); err != nil {
		t.Fatalf("first Query error: %v", err)
	}

	_, err := sess.Query(ctx, "SELECT $1", param.Text("x"))
	if err == nil {
		t.Fatalf("expected ParamTypeMismatch error")
	}
	if kind, ok := pgerr.KindOf(err); !ok || kind != pgerr.ParamTypeMismatch {
		t.Fatalf("expected ParamTypeMismatch, got %v", err)
	}

	// The mismatched call must never have touched the wire: still one batch.
	time.Sleep(10 * time.Millisecond)
	if len(fs.batches) != 1 {
		t.Fatalf("expected no additional wire batch for a mismatched call, got %d batches", len(fs.batches))
	}
}

func TestSessionPingSuccess(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	resp := append(append([]byte{}, dataRowInt4(1)...), append(commandComplete("SELECT 1"), readyForQuery()...)...)
	fs := &fakeServer{conn: server, startupResponse: authOkReady(), responses: [][]byte{resp}}
	go fs.run()

	sess := newTestSession(client, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	if err := sess.Ping(ctx); err != nil {
		t.Fatalf("Ping error: %v", err)
	}
}

func TestSessionPingFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	resp := append(append([]byte{}, msg('E', errorResponseBody("server down"))...), readyForQuery()...)
	fs := &fakeServer{conn: server, startupResponse: authOkReady(), responses: [][]byte{resp}}
	go fs.run()

	sess := newTestSession(client, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	err := sess.Ping(ctx)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if kind, ok := pgerr.KindOf(err); !ok || kind != pgerr.PingFailed {
		t.Fatalf("expected PingFailed, got %v", err)
	}
	if !sess.HasBroken() {
		t.Fatalf("expected session to be unhealthy after a failed ping")
	}
}
