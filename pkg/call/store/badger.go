package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/voicegate/pkg/call"
)

// Key layout:
//   call:{id}                     -> JSON(call.Call)
//   pkt:{len(id):08x}:{id}:{seq:020d} -> JSON(call.Packet)
//
// Packet keys embed the call ID length so prefix scans never bleed into
// another call whose ID happens to extend this one. Zero-padded sequence
// numbers make the natural key order the scan order.
const callKeyPrefix = "call:"

func callKey(id string) []byte {
	return []byte(callKeyPrefix + id)
}

func packetKey(id string, sequence int64) []byte {
	return fmt.Appendf(nil, "pkt:%08x:%s:%020d", len(id), id, sequence)
}

func packetScanPrefix(id string) []byte {
	return fmt.Appendf(nil, "pkt:%08x:%s:", len(id), id)
}

// BadgerStore implements Store on an embedded Badger database. It persists
// across restarts without an external database server, which suits
// single-node deployments.
type BadgerStore struct {
	sinkHolder

	db     *badgerdb.DB
	keys   *keyedMutex
	closed atomic.Bool
}

var _ Store = (*BadgerStore)(nil)

// NewBadger opens (or creates) a Badger database rooted at path.
func NewBadger(path string) (*BadgerStore, error) {
	if path == "" {
		return nil, fmt.Errorf("badger store requires a directory path")
	}
	opts := badgerdb.DefaultOptions(path).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db, keys: newKeyedMutex()}, nil
}

// Update implements Store. Badger write conflicts (possible when scans
// overlap a write) are retried like any transient failure.
func (s *BadgerStore) Update(ctx context.Context, callID string, fn func(tx Tx) error) error {
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
		return s.db.Update(func(txn *badgerdb.Txn) error {
			return fn(&badgerTx{
				txn:    txn,
				callID: callID,
				now:    time.Now(),
				queued: &queued,
			})
		})
	}
	if err := retryTransient(ctx, op, isBadgerConflict); err != nil {
		return err
	}

	s.deliver(queued)
	return nil
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, callID string) (*call.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	var c *call.Call
	err := s.db.View(func(txn *badgerdb.Txn) error {
		loaded, err := loadCall(txn, callID)
		if err != nil {
			return err
		}
		c = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context, opts ListOptions) ([]*call.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	opts = opts.normalize()

	var all []*call.Call
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(callKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var c call.Call
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return err
			}
			all = append(all, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	if opts.Offset >= len(all) {
		return []*call.Call{}, nil
	}
	all = all[opts.Offset:]
	if len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

// ListPacketsOrdered implements Store.
func (s *BadgerStore) ListPacketsOrdered(ctx context.Context, callID string) ([]*call.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	var packets []*call.Packet
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		packets, err = scanPackets(txn, callID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return packets, nil
}

// Healthcheck implements Store.
func (s *BadgerStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() || s.db.IsClosed() {
		return ErrStoreClosed
	}
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func isBadgerConflict(err error) bool {
	return errors.Is(err, badgerdb.ErrConflict)
}

// badgerTx is the Tx view over one Badger transaction. Badger transactions
// buffer writes until commit, so Save and InsertPacket are naturally staged.
type badgerTx struct {
	txn    *badgerdb.Txn
	callID string
	now    time.Time
	queued *[]call.Event
}

func (t *badgerTx) LoadForUpdate() (*call.Call, error) {
	return loadCall(t.txn, t.callID)
}

func (t *badgerTx) CreateIfAbsent() (*call.Call, error) {
	c, err := t.LoadForUpdate()
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, call.ErrCallNotFound) {
		return nil, err
	}

	fresh := &call.Call{
		ID:        t.callID,
		State:     call.StateInProgress,
		Missing:   []int64{},
		CreatedAt: t.now,
		UpdatedAt: t.now,
	}
	if err := t.writeCall(fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (t *badgerTx) Save(c *call.Call) error {
	c.UpdatedAt = t.now
	return t.writeCall(c)
}

func (t *badgerTx) writeCall(c *call.Call) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal call: %w", err)
	}
	return t.txn.Set(callKey(t.callID), data)
}

func (t *badgerTx) InsertPacket(p *call.Packet) error {
	key := packetKey(t.callID, p.Sequence)

	_, err := t.txn.Get(key)
	switch {
	case err == nil:
		return call.ErrDuplicatePacket
	case !errors.Is(err, badgerdb.ErrKeyNotFound):
		return err
	}

	p.CallID = t.callID
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = t.now
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}
	return t.txn.Set(key, data)
}

func (t *badgerTx) ListPacketsOrdered() ([]*call.Packet, error) {
	return scanPackets(t.txn, t.callID)
}

func (t *badgerTx) Queue(e call.Event) {
	*t.queued = append(*t.queued, e)
}

func loadCall(txn *badgerdb.Txn, callID string) (*call.Call, error) {
	item, err := txn.Get(callKey(callID))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, call.ErrCallNotFound
	}
	if err != nil {
		return nil, err
	}

	var c call.Call
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &c)
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call: %w", err)
	}
	return &c, nil
}

func scanPackets(txn *badgerdb.Txn, callID string) ([]*call.Packet, error) {
	var packets []*call.Packet

	it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
	defer it.Close()

	prefix := packetScanPrefix(callID)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var p call.Packet
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		}); err != nil {
			return nil, fmt.Errorf("failed to unmarshal packet: %w", err)
		}
		packets = append(packets, &p)
	}
	return packets, nil
}
