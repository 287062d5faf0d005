// ABOUTME: Fixed-size pool of database connections with prepared named operations
// ABOUTME: Acquire blocks while every connection is leased and Release hands it to the next waiter

package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Pool errors
var (
	ErrPoolClosed       = errors.New("connection pool closed")
	ErrUnknownOperation = errors.New("unknown operation")
)

// Config describes the backing store and pool size.
type Config struct {
	Driver         string
	DSN            string
	MaxConnections int
}

// Options carries the statements the pool prepares against the store.
type Options struct {
	// Setup statements run once, in order, before any operation is prepared.
	Setup []string

	// Operations maps operation names to parameterized SQL written with '?'
	// placeholders. Every connection prepares all of them at construction.
	Operations map[string]string

	Logger *slog.Logger
}

// Pool owns a fixed set of connections. It is the only component that
// talks to durable storage.
type Pool struct {
	db      *sql.DB
	dialect Dialect
	conns   []*Conn
	idle    chan *Conn
	closed  chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// Open connects to the store, runs the setup statements and eagerly creates
// MaxConnections connections, each with every operation prepared.
func Open(ctx context.Context, cfg Config, opts Options) (*Pool, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pool")

	dialect, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConnections < 1 {
		return nil, fmt.Errorf("max connections must be positive, got %d", cfg.MaxConnections)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return open(ctx, db, dialect, cfg.MaxConnections, opts, logger)
}

// open builds the pool on an already opened handle, which it takes
// ownership of.
func open(ctx context.Context, db *sql.DB, dialect Dialect, size int, opts Options, logger *slog.Logger) (*Pool, error) {
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	for i, stmt := range opts.Setup {
		if _, err := db.ExecContext(ctx, Rebind(dialect, stmt)); err != nil {
			db.Close()
			return nil, fmt.Errorf("running setup statement %d: %w", i, err)
		}
	}

	p := &Pool{
		db:      db,
		dialect: dialect,
		idle:    make(chan *Conn, size),
		closed:  make(chan struct{}),
		logger:  logger,
	}

	for i := 0; i < size; i++ {
		c, err := p.newConn(ctx, opts.Operations)
		if err != nil {
			p.closeConns()
			db.Close()
			return nil, fmt.Errorf("creating connection %d: %w", i, err)
		}
		p.conns = append(p.conns, c)
		p.idle <- c
	}

	poolSizeGauge.Set(float64(size))
	logger.Info("connection pool ready",
		"dialect", dialect,
		"connections", size,
		"operations", len(opts.Operations),
	)
	return p, nil
}

func (p *Pool) newConn(ctx context.Context, operations map[string]string) (*Conn, error) {
	raw, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}

	c := &Conn{
		raw:     raw,
		dialect: p.dialect,
		stmts:   make(map[string]*sql.Stmt, len(operations)),
	}
	for name, query := range operations {
		stmt, err := raw.PrepareContext(ctx, Rebind(p.dialect, query))
		if err != nil {
			c.close()
			return nil, fmt.Errorf("preparing operation %q: %w", name, err)
		}
		c.stmts[name] = stmt
	}
	return c, nil
}

// Dialect returns the SQL dialect of the backing store.
func (p *Pool) Dialect() Dialect {
	return p.dialect
}

// Size returns the number of connections the pool owns.
func (p *Pool) Size() int {
	return len(p.conns)
}

// Idle returns the number of connections not currently leased.
func (p *Pool) Idle() int {
	return len(p.idle)
}

// Acquire leases a connection, waiting until one is released when all are
// in use. It only fails when ctx ends or the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()

	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case c := <-p.idle:
		c.leased.Store(true)
		acquireWaitHistogram.Observe(time.Since(start).Seconds())
		inUseGauge.Inc()
		return c, nil
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		acquireCanceledCounter.Inc()
		return nil, fmt.Errorf("acquiring connection: %w", ctx.Err())
	}
}

// Release returns a leased connection to the pool. Releasing nil or an
// already released connection is a no-op.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	if !c.leased.CompareAndSwap(true, false) {
		p.logger.Warn("connection released twice")
		return
	}
	inUseGauge.Dec()
	p.idle <- c
}

// Ping checks the store through a leased connection.
func (p *Pool) Ping(ctx context.Context) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(c)
	return c.raw.PingContext(ctx)
}

// Close closes every connection and the underlying database handle.
// Callers must have released their connections first.
func (p *Pool) Close() error {
	var err error
	p.once.Do(func() {
		close(p.closed)
		p.closeConns()
		err = p.db.Close()
		inUseGauge.Set(0)
		p.logger.Info("connection pool closed")
	})
	return err
}

func (p *Pool) closeConns() {
	for _, c := range p.conns {
		c.close()
	}
}

// Querier runs named operations, either directly on a connection or inside
// one of its transactions.
type Querier interface {
	Exec(ctx context.Context, name string, args ...any) (sql.Result, error)
	Query(ctx context.Context, name string, args ...any) (*sql.Rows, error)
}

// Conn is a leased connection with its prepared operations.
type Conn struct {
	raw     *sql.Conn
	dialect Dialect
	stmts   map[string]*sql.Stmt
	leased  atomic.Bool
}

func (c *Conn) stmt(name string) (*sql.Stmt, error) {
	stmt, ok := c.stmts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	return stmt, nil
}

// Exec runs a named operation that returns no rows.
func (c *Conn) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	stmt, err := c.stmt(name)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, args...)
}

// Query runs a named operation that returns rows.
func (c *Conn) Query(ctx context.Context, name string, args ...any) (*sql.Rows, error) {
	stmt, err := c.stmt(name)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

// InTx runs fn inside a transaction on this connection. The transaction
// commits when fn returns nil and rolls back otherwise.
//
// The transaction is driven with plain BEGIN/COMMIT on the pinned
// connection so fn runs the statements prepared at construction. A
// *sql.Tx would prepare each statement again on every call.
func (c *Conn) InTx(ctx context.Context, fn func(q Querier) error) (err error) {
	begin := "BEGIN"
	if c.dialect == DialectSQLite {
		begin = "BEGIN IMMEDIATE"
	}
	if _, err := c.raw.ExecContext(ctx, begin); err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		// ctx may already be canceled; the rollback must still reach the store
		if _, rbErr := c.raw.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil && err == nil {
			err = fmt.Errorf("rolling back transaction: %w", rbErr)
		}
	}()

	if err := fn(&Tx{conn: c}); err != nil {
		return err
	}

	if _, err := c.raw.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	done = true
	return nil
}

func (c *Conn) close() {
	for _, stmt := range c.stmts {
		_ = stmt.Close()
	}
	_ = c.raw.Close()
}

// Tx runs named operations inside a transaction, reusing the statements
// prepared on its connection.
type Tx struct {
	conn *Conn
}

// Exec runs a named operation that returns no rows.
func (t *Tx) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	return t.conn.Exec(ctx, name, args...)
}

// Query runs a named operation that returns rows.
func (t *Tx) Query(ctx context.Context, name string, args ...any) (*sql.Rows, error) {
	return t.conn.Query(ctx, name, args...)
}
