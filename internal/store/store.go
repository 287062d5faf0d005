// ABOUTME: Store types and sessions for prachand persistence
// ABOUTME: Defines Node, Command, Response, Controller and the pooled Session that operates on them

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/2389/prachand/internal/pool"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateNode is returned when an insert collides with an existing
// host identifier or node key
var ErrDuplicateNode = errors.New("node already exists")

// ErrDuplicateResponse is returned when a response was already recorded for
// a (host, command) pair
var ErrDuplicateResponse = errors.New("response already recorded")

// ErrDuplicateController is returned when a controller identifier is taken
var ErrDuplicateController = errors.New("controller already exists")

// Unknown is stored for every host detail the agent did not report.
const Unknown = "unknown"

// NodeDetails holds the descriptive host and hardware fields reported at enrollment
type NodeDetails struct {
	OSArch          string
	OSBuild         string
	OSMajor         string
	OSMinor         string
	OSName          string
	OSPlatform      string
	HardwareVendor  string
	HardwareModel   string
	HardwareVersion string
	CPULogicalCores string
	CPUType         string
	PhysicalMemory  string
	Hostname        string
	AgentVersion    string
}

// withDefaults returns a copy with every empty field set to Unknown.
func (d NodeDetails) withDefaults() NodeDetails {
	for _, f := range []*string{
		&d.OSArch, &d.OSBuild, &d.OSMajor, &d.OSMinor, &d.OSName, &d.OSPlatform,
		&d.HardwareVendor, &d.HardwareModel, &d.HardwareVersion,
		&d.CPULogicalCores, &d.CPUType, &d.PhysicalMemory,
		&d.Hostname, &d.AgentVersion,
	} {
		if *f == "" {
			*f = Unknown
		}
	}
	return d
}

// Node represents an enrolled agent
type Node struct {
	ID             int64
	HostIdentifier string
	NodeKey        string
	NodeInvalid    bool
	Details        NodeDetails
	EnrolledOn     time.Time
	LastSeen       time.Time
}

// NodeSummary is the projection returned by ListNodes
type NodeSummary struct {
	ID             int64
	HostIdentifier string
	Hostname       string
	OSName         string
	AgentVersion   string
}

// NodeFilter selects a page of nodes by keyset
type NodeFilter struct {
	LastSeenAfter time.Time
	IDAfter       int64
	Limit         int64
}

// Controller represents an operator identity allowed to queue commands
type Controller struct {
	ID                   int64
	ControllerIdentifier string
	ControllerKey        string
	CreatedOn            time.Time
}

// Credential is the current secret of an identity, as used to verify its tokens
type Credential struct {
	Identity string
	Secret   string
	Invalid  bool
}

// Command represents one unit of work queued for a node
type Command struct {
	ID             int64
	HostIdentifier string
	Payload        []byte
	QueuedAt       time.Time
	Sent           bool
	SentAt         time.Time
}

// Response represents the result a node reported for a command
type Response struct {
	HostIdentifier string
	CommandID      int64
	Timestamp      time.Time
	Response       string
}

// Store hands out pooled sessions over the prachand schema
type Store struct {
	pool   *pool.Pool
	logger *slog.Logger
}

// Open creates the connection pool, applies the schema and prepares every
// named operation on every connection.
func Open(ctx context.Context, cfg pool.Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialect := pool.DialectSQLite
	if cfg.Driver == string(pool.DialectPostgres) {
		dialect = pool.DialectPostgres
	}

	p, err := pool.Open(ctx, cfg, pool.Options{
		Setup:      schemaFor(dialect),
		Operations: operations,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening connection pool: %w", err)
	}

	s := &Store{
		pool:   p,
		logger: logger.With("component", "store"),
	}
	s.logger.Info("store initialized", "driver", cfg.Driver)
	return s, nil
}

// Close closes the underlying pool
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks the backing store through a pooled connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PoolStats reports the pool size and how many connections are idle
func (s *Store) PoolStats() (size, idle int) {
	return s.pool.Size(), s.pool.Idle()
}

// Acquire leases a pooled connection wrapped in a Session. The caller must
// Release it on every path.
func (s *Store) Acquire(ctx context.Context) (*Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn, q: conn, store: s}, nil
}

// NodeCredentials resolves the current key of every node matching hostIdentifier.
func (s *Store) NodeCredentials(ctx context.Context, hostIdentifier string) ([]Credential, error) {
	sess, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	nodes, err := sess.NodesByIdentifier(ctx, hostIdentifier)
	if err != nil {
		return nil, err
	}

	creds := make([]Credential, 0, len(nodes))
	for _, n := range nodes {
		creds = append(creds, Credential{Identity: n.HostIdentifier, Secret: n.NodeKey, Invalid: n.NodeInvalid})
	}
	return creds, nil
}

// ControllerCredentials resolves the key of every controller matching identifier.
func (s *Store) ControllerCredentials(ctx context.Context, identifier string) ([]Credential, error) {
	sess, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	controllers, err := sess.ControllersByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	creds := make([]Credential, 0, len(controllers))
	for _, c := range controllers {
		creds = append(creds, Credential{Identity: c.ControllerIdentifier, Secret: c.ControllerKey})
	}
	return creds, nil
}

// Session is one leased connection. Its methods run named operations either
// directly or, inside InTx, as part of one transaction.
type Session struct {
	conn  *pool.Conn
	q     pool.Querier
	inTx  bool
	store *Store
}

// Release returns the connection to the pool
func (s *Session) Release() {
	if s == nil || s.inTx {
		return
	}
	s.store.pool.Release(s.conn)
}

// InTx runs fn against a Session bound to a transaction on the same
// connection. Nested calls join the outer transaction.
func (s *Session) InTx(ctx context.Context, fn func(tx *Session) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.conn.InTx(ctx, func(q pool.Querier) error {
		return fn(&Session{conn: s.conn, q: q, inTx: true, store: s.store})
	})
}

// isConstraintViolation checks if an error is a unique constraint violation
// from either backing store.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
