// Package store persists calls and packets and serializes all mutations per
// call ID.
//
// The contract is deliberately narrow: the engine never issues ad-hoc
// queries. Every mutation runs inside Store.Update, which acquires the
// call's exclusive critical section, runs the callback inside a backend
// transaction, and delivers queued events after commit while the critical
// section is still held. That last part is what makes per-call event order
// match mutation order.
//
// Three backends implement the contract: memory (tests and dev), GORM
// (SQLite and PostgreSQL), and Badger (embedded, persistent). All of them
// are exercised by the conformance suite in storetest.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/voicegate/pkg/call"
)

// Store errors shared by all backends.
var (
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// EventSink receives the events queued during a successful Update. It runs
// after the transaction commits and before the per-call lock is released, so
// implementations must be fast and must never block on subscriber I/O; the
// engine wires this to the non-blocking bus publish.
type EventSink func(events []call.Event)

// ListOptions bounds a call listing.
type ListOptions struct {
	// Limit caps the number of returned calls; 0 means DefaultListLimit.
	Limit int
	// Offset skips that many calls ordered newest first.
	Offset int
}

// DefaultListLimit applies when ListOptions.Limit is zero.
const DefaultListLimit = 50

// MaxListLimit is the hard cap for a single listing.
const MaxListLimit = 500

func (o ListOptions) normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Tx is the per-call mutation view passed to Store.Update callbacks. All
// operations address the call ID the Update was opened for.
type Tx interface {
	// LoadForUpdate returns the call row under the exclusive lock, or
	// call.ErrCallNotFound.
	LoadForUpdate() (*call.Call, error)

	// CreateIfAbsent loads the call or creates it at IN_PROGRESS. Creation
	// is idempotent.
	CreateIfAbsent() (*call.Call, error)

	// Save stages the mutated call fields for commit.
	Save(c *call.Call) error

	// InsertPacket stages a packet insert. It returns
	// call.ErrDuplicatePacket when (call_id, sequence) already exists,
	// without poisoning the surrounding transaction.
	InsertPacket(p *call.Packet) error

	// ListPacketsOrdered returns the call's packets ascending by sequence,
	// including inserts staged in this transaction.
	ListPacketsOrdered() ([]*call.Packet, error)

	// Queue schedules an event for delivery after commit. Events queued in
	// a rolled-back transaction are discarded.
	Queue(e call.Event)
}

// Store is the persistence contract consumed by the call engine and the API
// read paths.
type Store interface {
	// Update runs fn inside the exclusive critical section for callID.
	// Concurrent Updates for the same call serialize; different calls do
	// not contend. If fn returns an error the transaction rolls back and
	// the error is returned unchanged. Transient backend failures are
	// retried a small fixed number of times by re-running fn.
	Update(ctx context.Context, callID string, fn func(tx Tx) error) error

	// Get returns a snapshot of the call, or call.ErrCallNotFound.
	Get(ctx context.Context, callID string) (*call.Call, error)

	// List returns call snapshots ordered newest first.
	List(ctx context.Context, opts ListOptions) ([]*call.Call, error)

	// ListPacketsOrdered returns the call's packets ascending by sequence.
	ListPacketsOrdered(ctx context.Context, callID string) ([]*call.Packet, error)

	// SetEventSink installs the post-commit event sink. Install before the
	// store receives traffic; a nil sink discards events.
	SetEventSink(sink EventSink)

	// Healthcheck verifies the backend is reachable.
	Healthcheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Backend selects a store implementation.
type Backend string

const (
	// BackendMemory keeps everything in process memory. Data does not
	// survive a restart.
	BackendMemory Backend = "memory"

	// BackendSQLite uses SQLite through GORM (single-node default).
	BackendSQLite Backend = "sqlite"

	// BackendPostgres uses PostgreSQL through GORM.
	BackendPostgres Backend = "postgres"

	// BackendBadger uses an embedded Badger key-value database.
	BackendBadger Backend = "badger"
)

// IsValid reports whether b names a known backend.
func (b Backend) IsValid() bool {
	switch b {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendBadger:
		return true
	}
	return false
}

// Config selects and locates the store backend.
type Config struct {
	// Backend is one of memory, sqlite, postgres, badger.
	Backend Backend `mapstructure:"backend" validate:"required,oneof=memory sqlite postgres badger" yaml:"backend"`

	// Connection locates the backend: a file path for sqlite, a directory
	// for badger, a DSN or URL for postgres. Ignored for memory.
	Connection string `mapstructure:"connection" yaml:"connection,omitempty"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}

	if c.Backend == BackendSQLite && c.Connection == "" {
		// Use XDG config home or fallback
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, _ := os.UserHomeDir()
			configDir = filepath.Join(homeDir, ".config")
		}
		c.Connection = filepath.Join(configDir, "voicegate", "voicegate.db")
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		// Connection is ignored.
	case BackendSQLite:
		if c.Connection == "" {
			return fmt.Errorf("sqlite connection path is required")
		}
	case BackendPostgres:
		if c.Connection == "" {
			return fmt.Errorf("postgres connection string is required")
		}
	case BackendBadger:
		if c.Connection == "" {
			return fmt.Errorf("badger directory is required")
		}
	default:
		return fmt.Errorf("unsupported store backend: %q", c.Backend)
	}
	return nil
}

// Open creates the store named by the configuration.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite, BackendPostgres:
		return NewGORM(cfg)
	case BackendBadger:
		return NewBadger(cfg.Connection)
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Backend)
	}
}
