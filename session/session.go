// Package session implements one TCP connection's PostgreSQL
// startup/authentication and extended-query state machine, including its
// prepared-statement cache and health flag. A Session is a single logical
// actor: concurrent Connect/Query/Ping calls are serialized on an internal
// lock, matching the wire's strictly serialized request/response contract.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pgframe/pgframe/column"
	"github.com/pgframe/pgframe/dataframe"
	"github.com/pgframe/pgframe/param"
	"github.com/pgframe/pgframe/pgerr"
	"github.com/pgframe/pgframe/wire"
)

// Options configures one session's target server and behavior. It is
// immutable once passed to NewSession.
type Options struct {
	User     string
	Password string
	Database string
	Host     string
	Port     uint16
	// Prepare enables the prepared-statement cache keyed by SQL text. When
	// false, every call generates a fresh, uniquely-named statement and the
	// Parse/Describe round-trip always runs.
	Prepare bool
}

func (o Options) address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(int(o.Port)))
}

// preparedStatement is the cache entry recorded the first time a statement
// is prepared on a session: its parameter OIDs and an empty-column
// template cloned on every subsequent cache hit.
type preparedStatement struct {
	paramOIDs []uint32
	template  []*column.Builder
}

// Session owns one net.Conn, its prepared-statement cache, and its health
// flag. Create with NewSession, then call Connect before Query or Ping.
type Session struct {
	opts Options
	conn net.Conn

	mu            sync.Mutex
	cache         map[string]*preparedStatement
	portalCounter uint64

	healthy atomic.Bool
}

// NewSession opens the TCP connection to opts' host:port. The session is
// unhealthy until Connect completes the handshake.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.address())
	if err != nil {
		return nil, pgerr.Wrap(pgerr.Io, "dial", err)
	}
	return &Session{
		opts:  opts,
		conn:  conn,
		cache: make(map[string]*preparedStatement),
	}, nil
}

// HasBroken reports whether the session is currently unhealthy. Read
// without the session's query lock so a pool's release path can observe it
// concurrently with an in-flight query's completion.
func (s *Session) HasBroken() bool {
	return !s.healthy.Load()
}

// Close closes the underlying connection. The pool calls this when
// discarding an unhealthy session.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) fail() {
	s.healthy.Store(false)
}

func (s *Session) applyDeadline(ctx context.Context) func() {
	deadline, ok := ctx.Deadline()
	if !ok {
		return func() {}
	}
	s.conn.SetDeadline(deadline)
	return func() { s.conn.SetDeadline(time.Time{}) }
}

// writeAll writes b in full, wrapping any failure as pgerr.Io.
func (s *Session) writeAll(b []byte) error {
	if _, err := s.conn.Write(b); err != nil {
		return pgerr.Wrap(pgerr.Io, "write", err)
	}
	return nil
}

// readMessage blocks until the decoder can produce one complete message,
// reading from the connection as needed. A zero-byte read (or io.EOF)
// surfaces as pgerr.ConnectionClosed; any other read failure as pgerr.Io.
func (s *Session) readMessage(dec *wire.Decoder) (wire.Message, error) {
	for {
		if msg, ok := dec.Next(); ok {
			return msg, nil
		}
		buf := make([]byte, 8192)
		n, err := s.conn.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return wire.Message{}, pgerr.New(pgerr.ConnectionClosed, "connection closed")
			}
			return wire.Message{}, pgerr.Wrap(pgerr.Io, "read", err)
		}
		if n == 0 {
			return wire.Message{}, pgerr.New(pgerr.ConnectionClosed, "connection closed")
		}
		dec.Feed(buf[:n])
	}
}

// Connect drives the startup and authentication handshake: StartupMessage,
// then read-dispatch until the first ReadyForQuery. Supports cleartext and
// MD5 password authentication; a SASL challenge fails fast with
// pgerr.Unsupported rather than being attempted.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel := s.applyDeadline(ctx)
	defer cancel()

	var buf bytes.Buffer
	wire.StartupMessage(&buf, s.opts.User, s.opts.Database)
	if err := s.writeAll(buf.Bytes()); err != nil {
		s.fail()
		return err
	}

	dec := &wire.Decoder{}
	for {
		msg, err := s.readMessage(dec)
		if err != nil {
			s.fail()
			return err
		}

		switch msg.Tag {
		case wire.TagAuthentication:
			code, ok := wire.AuthCode(msg.Body)
			if !ok {
				s.fail()
				return pgerr.New(pgerr.Io, "truncated authentication message")
			}
			switch code {
			case wire.AuthOk:
				// continue reading until ReadyForQuery
			case wire.AuthCleartextPassword:
				buf.Reset()
				wire.PasswordMessage(&buf, s.opts.Password)
				if err := s.writeAll(buf.Bytes()); err != nil {
					s.fail()
					return err
				}
			case wire.AuthMD5Password:
				salt, ok := wire.MD5Salt(msg.Body)
				if !ok {
					s.fail()
					return pgerr.New(pgerr.Io, "truncated MD5 salt")
				}
				response := pgerr.MD5Password(s.opts.User, s.opts.Password, salt)
				buf.Reset()
				wire.PasswordMessage(&buf, response)
				if err := s.writeAll(buf.Bytes()); err != nil {
					s.fail()
					return err
				}
			case wire.AuthSASL:
				s.fail()
				return pgerr.New(pgerr.Unsupported, "SCRAM/SASL authentication is not supported")
			default:
				s.fail()
				return pgerr.New(pgerr.Unsupported, fmt.Sprintf("unsupported authentication method %d", code))
			}
		case wire.TagErrorResponse:
			s.fail()
			return pgerr.New(pgerr.QueryError, wire.ErrorField(msg.Body))
		case wire.TagReadyForQuery:
			s.healthy.Store(true)
			return nil
		default:
			// ParameterStatus, BackendKeyData, etc. — ignored during startup.
		}
	}
}

// Query executes sql with params using the extended-query sub-protocol and
// returns the result as a columnar dataframe. See package doc and spec.md
// §4.4 for the full state machine.
func (s *Session) Query(ctx context.Context, sql string, params ...param.Parameter) (*dataframe.DataFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel := s.applyDeadline(ctx)
	defer cancel()

	oids := param.OIDs(params)

	var stmtName string
	var cached *preparedStatement
	var hit bool
	if s.opts.Prepare {
		stmtName = pgerr.StatementName(sql)
		cached, hit = s.cache[stmtName]
		if hit && !param.EqualOIDs(cached.paramOIDs, oids) {
			return nil, pgerr.New(pgerr.ParamTypeMismatch, "cached parameter OIDs differ from this call")
		}
	} else {
		stmtName = "stmt_" + uuid.NewString()
	}

	s.portalCounter++
	portalName := fmt.Sprintf("portal_%d", s.portalCounter)

	needParse := !hit

	var buf bytes.Buffer
	if needParse {
		wire.Parse(&buf, stmtName, sql, oids)
		wire.Describe(&buf, 'S', stmtName)
	}

	bindParams := make([]wire.BindParam, len(params))
	for i, p := range params {
		data, null := p.Encode()
		bindParams[i] = wire.BindParam{Data: data, Null: null}
	}
	wire.Bind(&buf, portalName, stmtName, bindParams)
	wire.Execute(&buf, portalName)
	wire.Close(&buf, 'P', portalName)
	wire.Sync(&buf)

	if err := s.writeAll(buf.Bytes()); err != nil {
		s.fail()
		return nil, err
	}

	var builders []*column.Builder
	if hit {
		builders = make([]*column.Builder, len(cached.template))
		for i, t := range cached.template {
			builders[i] = t.Empty()
		}
	}
	gotShape := hit

	dec := &wire.Decoder{}
	var pendingErr string

	for {
		msg, err := s.readMessage(dec)
		if err != nil {
			s.fail()
			return nil, err
		}

		switch msg.Tag {
		case wire.TagRowDescription:
			fields := wire.ParseFields(msg.Body)
			builders = make([]*column.Builder, len(fields))
			for i, f := range fields {
				builders[i] = column.NewBuilder(f)
			}
			gotShape = true
		case wire.TagNoData:
			builders = nil
			gotShape = true
		case wire.TagDataRow:
			values := wire.DataRowValues(msg.Body)
			if len(values) < len(builders) {
				s.evict(stmtName)
				s.fail()
				return nil, pgerr.TooFewFieldError(len(values), len(builders))
			}
			if len(values) > len(builders) {
				s.evict(stmtName)
				s.fail()
				return nil, pgerr.TooManyFieldError(len(builders))
			}
			for i, b := range builders {
				if err := b.Push(values[i]); err != nil {
					s.fail()
					return nil, err
				}
			}
		case wire.TagErrorResponse:
			if pendingErr == "" {
				pendingErr = wire.ErrorField(msg.Body)
			}
		case wire.TagReadyForQuery:
			if pendingErr != "" {
				s.fail()
				return nil, pgerr.New(pgerr.QueryError, pendingErr)
			}
			s.healthy.Store(true)
			if s.opts.Prepare && gotShape {
				template := make([]*column.Builder, len(builders))
				for i, b := range builders {
					template[i] = b.Empty()
				}
				s.cache[stmtName] = &preparedStatement{paramOIDs: oids, template: template}
			}
			return buildDataFrame(builders), nil
		default:
			// ParseComplete, BindComplete, ParameterDescription, CommandComplete,
			// CloseComplete — acknowledged implicitly, no action needed.
		}
	}
}

func (s *Session) evict(stmtName string) {
	if s.opts.Prepare {
		delete(s.cache, stmtName)
	}
}

// Ping runs the simple-query sub-protocol ("/* ping */ SELECT 1") to check
// liveness without touching the prepared-statement cache.
func (s *Session) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel := s.applyDeadline(ctx)
	defer cancel()

	var buf bytes.Buffer
	wire.Query(&buf, "/* ping */ SELECT 1")
	if err := s.writeAll(buf.Bytes()); err != nil {
		s.fail()
		return err
	}

	dec := &wire.Decoder{}
	for {
		msg, err := s.readMessage(dec)
		if err != nil {
			s.fail()
			return err
		}
		switch msg.Tag {
		case wire.TagErrorResponse:
			s.fail()
			return pgerr.New(pgerr.PingFailed, wire.ErrorField(msg.Body))
		case wire.TagReadyForQuery:
			s.healthy.Store(true)
			return nil
		default:
			// CommandComplete, RowDescription, DataRow, etc. — discarded.
		}
	}
}

func buildDataFrame(builders []*column.Builder) *dataframe.DataFrame {
	cols := make([]dataframe.Series, len(builders))
	for i, b := range builders {
		cols[i] = b.Finalize()
	}
	return &dataframe.DataFrame{Columns: cols}
}
