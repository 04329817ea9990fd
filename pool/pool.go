// Package pool multiplexes queries over a fixed-size set of eagerly-opened
// sessions, recycling unhealthy sessions on release rather than on
// acquisition so callers never observe a broken connection.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/pgframe/pgframe/dataframe"
	"github.com/pgframe/pgframe/param"
	"github.com/pgframe/pgframe/pgerr"
	"github.com/pgframe/pgframe/session"
)

// Options configures pool construction and its recycling policies.
type Options struct {
	ClientOptions  session.Options
	MaxConnections int
	AcquireTimeout time.Duration
	// IdleTimeout, if positive, closes an available session that has sat
	// idle longer than this the next time it would otherwise be handed
	// out and frees its slot; Acquire then takes the next available session
	// or dials a new one.
	IdleTimeout time.Duration
	// MaxLifetime, if positive, recycles a session older than this on its
	// next release rather than returning it to the available list.
	MaxLifetime time.Duration
	// TestOnCheckout pings a session before handing it out; on failure the
	// session is replaced and the checkout retried once.
	TestOnCheckout bool
}

type slot struct {
	sess      *session.Session
	createdAt time.Time
	idleSince time.Time
}

// StatsObserver receives pool occupancy and latency events. A
// *pgmetrics.Collector satisfies this interface; pool never imports
// pgmetrics directly so instrumentation stays optional.
type StatsObserver interface {
	ObservePoolStats(available, total int)
	ObserveExhausted()
	ObserveAcquire(d time.Duration)
}

// Pool is a counted set of sessions guarded by an available list and a
// condition variable standing in for a counting semaphore: total in-flight
// plus available sessions never exceeds Options.MaxConnections.
type Pool struct {
	opts Options

	mu        sync.Mutex
	cond      *sync.Cond
	available []*slot
	total     int
	closed    bool
	observer  StatsObserver
}

// SetObserver wires an optional StatsObserver (e.g. *pgmetrics.Collector)
// into the pool. Safe to call at any time, including concurrently with
// Acquire/release.
func (p *Pool) SetObserver(o StatsObserver) {
	p.mu.Lock()
	p.observer = o
	p.mu.Unlock()
}

// BuildPool eagerly dials and authenticates MaxConnections sessions in
// parallel. Any single connect failure fails construction entirely and
// closes whatever sessions did succeed.
func BuildPool(ctx context.Context, opts Options) (*Pool, error) {
	if opts.MaxConnections <= 0 {
		return nil, pgerr.New(pgerr.PoolError, "max connections must be positive")
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 30 * time.Second
	}

	p := &Pool{opts: opts}
	p.cond = sync.NewCond(&p.mu)

	sessions := make([]*session.Session, opts.MaxConnections)
	errs := make([]error, opts.MaxConnections)

	var wg sync.WaitGroup
	for i := 0; i < opts.MaxConnections; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := p.dial(ctx)
			sessions[i] = sess
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			for _, sess := range sessions {
				if sess != nil {
					sess.Close()
				}
			}
			return nil, pgerr.Wrap(pgerr.PoolError, "constructing pool", err)
		}
	}

	p.total = opts.MaxConnections
	now := time.Now()
	for _, sess := range sessions {
		p.available = append(p.available, &slot{sess: sess, createdAt: now, idleSince: now})
	}
	return p, nil
}

func (p *Pool) dial(ctx context.Context) (*session.Session, error) {
	sess, err := session.NewSession(ctx, p.opts.ClientOptions)
	if err != nil {
		return nil, err
	}
	if err := sess.Connect(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func (p *Pool) isLifetimeExceeded(createdAt time.Time) bool {
	if p.opts.MaxLifetime <= 0 {
		return false
	}
	return time.Since(createdAt) > p.opts.MaxLifetime
}

func (p *Pool) isIdleExceeded(sl *slot) bool {
	if p.opts.IdleTimeout <= 0 {
		return false
	}
	return time.Since(sl.idleSince) > p.opts.IdleTimeout
}

// Acquire blocks until a session is available, honoring both
// Options.AcquireTimeout and ctx's deadline, whichever is sooner.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	start := time.Now()
	deadlineAt := start.Add(p.opts.AcquireTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadlineAt) {
		deadlineAt = d
	}

	waited := false
	defer func() {
		p.mu.Lock()
		observer := p.observer
		p.mu.Unlock()
		if observer != nil {
			observer.ObserveAcquire(time.Since(start))
		}
	}()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, pgerr.New(pgerr.PoolError, "pool is closed")
		}
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, err
		}

		if len(p.available) > 0 {
			sl := p.available[len(p.available)-1]
			p.available = p.available[:len(p.available)-1]
			p.mu.Unlock()

			if p.isLifetimeExceeded(sl.createdAt) || p.isIdleExceeded(sl) {
				sl.sess.Close()
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				p.cond.Broadcast()
				continue
			}

			if p.opts.TestOnCheckout {
				if err := sl.sess.Ping(ctx); err != nil {
					sl.sess.Close()
					fresh, ferr := p.dial(ctx)
					if ferr != nil {
						p.mu.Lock()
						p.total--
						p.mu.Unlock()
						p.cond.Broadcast()
						continue
					}
					return &Handle{pool: p, sess: fresh, createdAt: time.Now()}, nil
				}
			}
			return &Handle{pool: p, sess: sl.sess, createdAt: sl.createdAt}, nil
		}

		if p.total < p.opts.MaxConnections {
			p.total++
			p.mu.Unlock()
			sess, err := p.dial(ctx)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, pgerr.Wrap(pgerr.PoolError, "dialing new session", err)
			}
			return &Handle{pool: p, sess: sess, createdAt: time.Now()}, nil
		}

		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			p.mu.Unlock()
			return nil, pgerr.New(pgerr.PoolError, "acquire timeout: pool exhausted")
		}
		if !waited {
			waited = true
			if p.observer != nil {
				p.observer.ObserveExhausted()
			}
		}
		timer := time.AfterFunc(remaining, func() { p.cond.Broadcast() })
		p.cond.Wait()
		timer.Stop()
		p.mu.Unlock()
	}
}

// release returns h's session to the pool, replacing it with a freshly
// dialed session if it was left unhealthy by the caller's last operation.
// Replacement is best-effort: a failed replacement just drops the slot
// until a later Acquire dials a new session into it. A session released
// while the pool holds more sessions than MaxConnections (after Resize
// shrank it) is closed instead of returned.
func (p *Pool) release(h *Handle) {
	defer p.reportStats()

	if h.sess.HasBroken() {
		h.sess.Close()
		replacement, err := p.dial(context.Background())
		p.mu.Lock()
		if err != nil {
			p.total--
			p.mu.Unlock()
			p.cond.Broadcast()
			return
		}
		if p.closed || p.total > p.opts.MaxConnections {
			p.total--
			p.mu.Unlock()
			replacement.Close()
			return
		}
		p.available = append(p.available, &slot{sess: replacement, createdAt: time.Now(), idleSince: time.Now()})
		p.mu.Unlock()
		p.cond.Signal()
		return
	}

	p.mu.Lock()
	if p.closed || p.total > p.opts.MaxConnections || p.isLifetimeExceeded(h.createdAt) {
		p.total--
		p.mu.Unlock()
		h.sess.Close()
		p.cond.Broadcast()
		return
	}
	p.available = append(p.available, &slot{sess: h.sess, createdAt: h.createdAt, idleSince: time.Now()})
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *Pool) reportStats() {
	p.mu.Lock()
	observer := p.observer
	available, total := len(p.available), p.total
	p.mu.Unlock()
	if observer != nil {
		observer.ObservePoolStats(available, total)
	}
}

// Close closes every available session and marks the pool closed; sessions
// currently checked out are closed as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	avail := p.available
	p.available = nil
	p.mu.Unlock()

	for _, sl := range avail {
		sl.sess.Close()
	}
	p.cond.Broadcast()
}

// Stats summarizes pool occupancy for metrics/diagnostics.
type Stats struct {
	Available int
	Total     int
	MaxConns  int
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Available: len(p.available), Total: p.total, MaxConns: p.opts.MaxConnections}
}

// Resize grows or shrinks the pool's capacity to n, dialing additional
// sessions or closing idle ones to meet the new target. Sessions currently
// checked out are unaffected until their next release.
func (p *Pool) Resize(ctx context.Context, n int) error {
	if n <= 0 {
		return pgerr.New(pgerr.PoolError, "resize target must be positive")
	}

	p.mu.Lock()
	p.opts.MaxConnections = n
	delta := n - p.total
	p.mu.Unlock()

	if delta > 0 {
		for i := 0; i < delta; i++ {
			sess, err := p.dial(ctx)
			if err != nil {
				return pgerr.Wrap(pgerr.PoolError, "growing pool", err)
			}
			p.mu.Lock()
			p.total++
			p.available = append(p.available, &slot{sess: sess, createdAt: time.Now(), idleSince: time.Now()})
			p.mu.Unlock()
			p.cond.Signal()
		}
		return nil
	}

	for i := 0; i < -delta; i++ {
		p.mu.Lock()
		if len(p.available) == 0 {
			p.mu.Unlock()
			break
		}
		sl := p.available[len(p.available)-1]
		p.available = p.available[:len(p.available)-1]
		p.total--
		p.mu.Unlock()
		sl.sess.Close()
	}
	return nil
}

// Handle is a scoped lease on one session, returned by Acquire. Callers
// must call Close when finished; Go has no scope-based drop, so the lease
// is only released on an explicit Close call.
type Handle struct {
	pool      *Pool
	sess      *session.Session
	createdAt time.Time

	mu     sync.Mutex
	closed bool
}

// Query runs sql with params on the leased session.
func (h *Handle) Query(ctx context.Context, sql string, params ...param.Parameter) (*dataframe.DataFrame, error) {
	return h.sess.Query(ctx, sql, params...)
}

// Ping checks liveness of the leased session.
func (h *Handle) Ping(ctx context.Context) error {
	return h.sess.Ping(ctx)
}

// HasBroken reports whether the leased session is currently unhealthy.
func (h *Handle) HasBroken() bool {
	return h.sess.HasBroken()
}

// Close releases the session back to the pool, replacing it first if it
// was left unhealthy. Safe to call more than once.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	h.pool.release(h)
}
