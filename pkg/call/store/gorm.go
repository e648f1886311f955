package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/voicegate/pkg/call"
)

// PostgreSQL connection pool sizing.
const (
	pgMaxOpenConns = 25
	pgMaxIdleConns = 5
)

// GORMStore implements Store on SQLite and PostgreSQL via the same codebase.
// SQLite is the single-node default; PostgreSQL adds row-level locking for
// deployments where other writers may touch the same database.
type GORMStore struct {
	sinkHolder

	db      *gorm.DB
	backend Backend
	keys    *keyedMutex
	closed  atomic.Bool
}

var _ Store = (*GORMStore)(nil)

// NewGORM opens the database named by cfg and prepares the schema:
// embedded SQL migrations on PostgreSQL, GORM auto-migration on SQLite.
func NewGORM(cfg Config) (*GORMStore, error) {
	var dialector gorm.Dialector
	switch cfg.Backend {
	case BackendSQLite:
		if cfg.Connection == "" {
			return nil, fmt.Errorf("sqlite store requires a database file path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Connection), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// SQLite pragmas for better concurrent access:
		// - journal_mode(WAL): concurrent readers with a single writer
		// - busy_timeout(5000): wait up to 5 seconds when the database is locked
		dsn := cfg.Connection + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case BackendPostgres:
		if cfg.Connection == "" {
			return nil, fmt.Errorf("postgres store requires a DSN")
		}
		dialector = postgres.Open(cfg.Connection)

	default:
		return nil, fmt.Errorf("gorm store does not support backend %q", cfg.Backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	switch cfg.Backend {
	case BackendPostgres:
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(pgMaxOpenConns)
		sqlDB.SetMaxIdleConns(pgMaxIdleConns)

		if err := runPostgresMigrations(context.Background(), cfg.Connection); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}

	case BackendSQLite:
		if err := db.AutoMigrate(call.AllModels()...); err != nil {
			return nil, fmt.Errorf("failed to run database migration: %w", err)
		}
	}

	return &GORMStore{
		db:      db,
		backend: cfg.Backend,
		keys:    newKeyedMutex(),
	}, nil
}

// DB returns the underlying GORM connection. Useful for tests.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// Update implements Store. The callback may be re-run when the backend
// reports a transient failure, so it must derive everything from the Tx
// state it reads.
func (s *GORMStore) Update(ctx context.Context, callID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}

	s.keys.lock(callID)
	defer s.keys.unlock(callID)

	var queued []call.Event
	op := func() error {
		queued = nil
		return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			return fn(&gormTx{
				db:        db,
				callID:    callID,
				forUpdate: s.backend == BackendPostgres,
				queued:    &queued,
			})
		})
	}
	if err := retryTransient(ctx, op, isTransientSQLError); err != nil {
		return err
	}

	s.deliver(queued)
	return nil
}

// Get implements Store.
func (s *GORMStore) Get(ctx context.Context, callID string) (*call.Call, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	var c call.Call
	if err := s.db.WithContext(ctx).First(&c, "id = ?", callID).Error; err != nil {
		return nil, convertNotFoundError(err, call.ErrCallNotFound)
	}
	return &c, nil
}

// List implements Store.
func (s *GORMStore) List(ctx context.Context, opts ListOptions) ([]*call.Call, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	opts = opts.normalize()

	var calls []*call.Call
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id ASC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&calls).Error
	if err != nil {
		return nil, err
	}
	if calls == nil {
		calls = []*call.Call{}
	}
	return calls, nil
}

// ListPacketsOrdered implements Store.
func (s *GORMStore) ListPacketsOrdered(ctx context.Context, callID string) ([]*call.Packet, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	var packets []*call.Packet
	err := s.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("sequence ASC").
		Find(&packets).Error
	if err != nil {
		return nil, err
	}
	return packets, nil
}

// Healthcheck implements Store.
func (s *GORMStore) Healthcheck(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close implements Store.
func (s *GORMStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormTx is the Tx view over one GORM transaction.
type gormTx struct {
	db        *gorm.DB
	callID    string
	forUpdate bool
	queued    *[]call.Event
}

func (t *gormTx) LoadForUpdate() (*call.Call, error) {
	q := t.db
	if t.forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c call.Call
	if err := q.First(&c, "id = ?", t.callID).Error; err != nil {
		return nil, convertNotFoundError(err, call.ErrCallNotFound)
	}
	return &c, nil
}

func (t *gormTx) CreateIfAbsent() (*call.Call, error) {
	c, err := t.LoadForUpdate()
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, call.ErrCallNotFound) {
		return nil, err
	}

	fresh := &call.Call{
		ID:      t.callID,
		State:   call.StateInProgress,
		Missing: []int64{},
	}
	// ON CONFLICT DO NOTHING keeps a lost cross-process race from poisoning
	// the transaction; the row exists afterwards either way.
	res := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(fresh)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return t.LoadForUpdate()
	}
	return fresh, nil
}

func (t *gormTx) Save(c *call.Call) error {
	return t.db.Save(c).Error
}

func (t *gormTx) InsertPacket(p *call.Packet) error {
	p.CallID = t.callID
	res := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return call.ErrDuplicatePacket
	}
	return nil
}

func (t *gormTx) ListPacketsOrdered() ([]*call.Packet, error) {
	var packets []*call.Packet
	err := t.db.
		Where("call_id = ?", t.callID).
		Order("sequence ASC").
		Find(&packets).Error
	if err != nil {
		return nil, err
	}
	return packets, nil
}

func (t *gormTx) Queue(e call.Event) {
	*t.queued = append(*t.queued, e)
}

// isTransientSQLError checks for failures worth a short retry: deadlocks,
// serialization aborts, lock timeouts, dropped connections. Matching is on
// error text because both engines surface these as driver-specific strings.
func isTransientSQLError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "bad connection")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to the appropriate
// domain error.
func convertNotFoundError(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
