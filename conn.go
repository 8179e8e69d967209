// Package marlin maps a SQL-shaped query-builder API onto MongoDB's native
// database-command protocol.
//
// A Conn owns the command executor and the introspection cache; a Builder
// accumulates the state of exactly one logical operation and compiles it
// into a single command document on a terminal call. Builders are not safe
// for concurrent use; Conn is.
package marlin

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marlindb/marlin/internal/driver"
	"github.com/marlindb/marlin/internal/schema"
	"github.com/marlindb/marlin/internal/util/lazyerrors"
	"github.com/marlindb/marlin/internal/util/logging"
)

// Mode selects how errors are signaled to the caller.
type Mode int

// Operating modes.
const (
	// Strict raises structured errors from terminal calls.
	Strict Mode = iota

	// Lenient returns a failed Result with the error attached and records
	// it for LastError; terminal calls themselves return a nil error.
	// Validation failures still block execution of destructive operations.
	Lenient
)

// Default sizes.
const (
	defaultBatchSize = 100
	defaultCacheSize = 128
)

// Conn is a connection handle: command execution, operating mode, and the
// introspection cache.
type Conn struct {
	exec      *driver.Executor
	admin     *driver.Executor
	client    *mongo.Client
	database  string
	prefix    string
	mode      Mode
	batchSize int
	l         *slog.Logger
	cache     *schema.Cache

	mu      sync.Mutex
	lastErr *Error
}

// NewConnParams represents the parameters of NewConn function.
//
//nolint:vet // for readability
type NewConnParams struct {
	// URI is the connection string. Ignored when Runner is set.
	URI string

	// Database is the logical database commands run against.
	Database string

	// TablePrefix is the optional prefix of logical collection names,
	// stripped from qualified field keys alongside the bare name.
	TablePrefix string

	// Mode selects strict or lenient error signaling. Strict is the default.
	Mode Mode

	// BatchSize caps documents per insert command.
	BatchSize int

	// CacheSize caps the introspection cache.
	CacheSize int

	// L is the logger. Defaults to a zerolog-backed stderr logger.
	L *slog.Logger

	// Runner overrides the transport; mainly for tests and offline use.
	Runner driver.Runner

	_ struct{} // prevent unkeyed literals
}

// NewConn creates a new Conn.
func NewConn(ctx context.Context, params *NewConnParams) (*Conn, error) {
	l := params.L
	if l == nil {
		l = logging.Logger(os.Stderr, slog.LevelInfo)
	}

	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	cacheSize := params.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	cache, err := schema.NewCache(cacheSize)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	c := &Conn{
		database:  params.Database,
		prefix:    params.TablePrefix,
		mode:      params.Mode,
		batchSize: batchSize,
		l:         l,
		cache:     cache,
	}

	runner := params.Runner
	adminRunner := params.Runner

	if runner == nil {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(params.URI))
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		c.client = client
		runner = driver.NewMongoRunner(client, params.Database)
		adminRunner = driver.NewMongoRunner(client, "admin")
	}

	c.exec = driver.NewExecutor(&driver.NewExecutorParams{Runner: runner, L: l})
	c.admin = driver.NewExecutor(&driver.NewExecutorParams{Runner: adminRunner, L: l, Name: "admin"})

	return c, nil
}

// Close releases the underlying client, if this Conn owns one.
func (c *Conn) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}

	return lazyerrors.Error(c.client.Disconnect(ctx))
}

// Table starts a builder for the given collection.
func (c *Conn) Table(name string) *Builder {
	return newBuilder(c, name)
}

// Mode returns the operating mode.
func (c *Conn) Mode() Mode {
	return c.mode
}

// LastError returns the most recent error recorded by a terminal call,
// or nil. Lenient-mode callers use it to decide rollback.
func (c *Conn) LastError() *Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// StartTransaction acquires a session handle and starts a transaction on it.
// Every subsequent command of the sequence must be routed through the handle
// with Builder.WithSession.
func (c *Conn) StartTransaction(ctx context.Context) (*Session, error) {
	var sess mongo.Session

	if c.client != nil {
		var err error
		if sess, err = c.client.StartSession(); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	s := driver.NewSession(sess)
	if err := s.StartTransaction(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return s, nil
}

// Prepare always fails: the target store has no prepared statements.
func (c *Conn) Prepare(string) error {
	return driver.NewUnsupportedError("prepared statements are not supported")
}

// RawQuery always fails: raw SQL has no analogue in the target store.
func (c *Conn) RawQuery(string) (*Result, error) {
	return c.fail(driver.NewUnsupportedError("raw SQL queries are not supported"))
}

// CreateDatabase is a documented no-op: the target store creates databases
// implicitly on first write.
func (c *Conn) CreateDatabase(string) (*Result, error) {
	return &Result{OK: true}, nil
}

// DropDatabase is a documented no-op, matching CreateDatabase.
func (c *Conn) DropDatabase(string) (*Result, error) {
	return &Result{OK: true}, nil
}

// Describe implements prometheus.Collector.
func (c *Conn) Describe(ch chan<- *prometheus.Desc) {
	c.exec.Describe(ch)
	c.admin.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Conn) Collect(ch chan<- prometheus.Metric) {
	c.exec.Collect(ch)
	c.admin.Collect(ch)
}

// record stores the error for LastError.
func (c *Conn) record(err *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = err
}

// fail signals an error according to the operating mode.
func (c *Conn) fail(err error) (*Result, error) {
	e := driver.As(err)
	if e == nil {
		e = &Error{Category: CategoryServer, Message: err.Error()}
	}

	c.record(e)

	if c.mode == Strict {
		return nil, e
	}

	return &Result{Err: e}, nil
}

// check interfaces
var (
	_ prometheus.Collector = (*Conn)(nil)
)
