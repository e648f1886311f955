package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/voicegate/pkg/call"
)

// MemoryStore is an in-memory Store for tests and single-node development.
// All reads and writes work on deep copies, so callers can never alias the
// store's internal state.
type MemoryStore struct {
	sinkHolder

	keys *keyedMutex

	mu      sync.RWMutex
	calls   map[string]*call.Call
	packets map[string]map[int64]*call.Packet
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		keys:    newKeyedMutex(),
		calls:   make(map[string]*call.Call),
		packets: make(map[string]map[int64]*call.Packet),
	}
}

// Update implements Store. The callback works on staged copies; nothing is
// visible to readers until fn returns nil.
func (s *MemoryStore) Update(ctx context.Context, callID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrStoreClosed
	}

	s.keys.lock(callID)
	defer s.keys.unlock(callID)

	tx := &memTx{store: s, callID: callID, now: time.Now()}
	if err := fn(tx); err != nil {
		return err
	}

	s.apply(tx)
	s.deliver(tx.queued)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, callID string) (*call.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	c, ok := s.calls[callID]
	if !ok {
		return nil, call.ErrCallNotFound
	}
	return cloneCall(c), nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*call.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	all := make([]*call.Call, 0, len(s.calls))
	for _, c := range s.calls {
		all = append(all, c)
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

	out := make([]*call.Call, len(all))
	for i, c := range all {
		out[i] = cloneCall(c)
	}
	return out, nil
}

// ListPacketsOrdered implements Store.
func (s *MemoryStore) ListPacketsOrdered(ctx context.Context, callID string) ([]*call.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return orderedPackets(s.packets[callID], nil), nil
}

// Healthcheck implements Store.
func (s *MemoryStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrStoreClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *MemoryStore) apply(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.staged != nil {
		c := cloneCall(tx.staged)
		c.UpdatedAt = time.Now()
		s.calls[tx.callID] = c
	}
	if len(tx.inserts) > 0 {
		m := s.packets[tx.callID]
		if m == nil {
			m = make(map[int64]*call.Packet)
			s.packets[tx.callID] = m
		}
		for _, p := range tx.inserts {
			m[p.Sequence] = p
		}
	}
}

// memTx stages mutations until Update commits them.
type memTx struct {
	store  *MemoryStore
	callID string
	now    time.Time

	staged  *call.Call
	inserts []*call.Packet
	queued  []call.Event
}

func (t *memTx) LoadForUpdate() (*call.Call, error) {
	if t.staged != nil {
		return cloneCall(t.staged), nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	c, ok := t.store.calls[t.callID]
	if !ok {
		return nil, call.ErrCallNotFound
	}
	return cloneCall(c), nil
}

func (t *memTx) CreateIfAbsent() (*call.Call, error) {
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
	t.staged = cloneCall(fresh)
	return fresh, nil
}

func (t *memTx) Save(c *call.Call) error {
	t.staged = cloneCall(c)
	return nil
}

func (t *memTx) InsertPacket(p *call.Packet) error {
	for _, staged := range t.inserts {
		if staged.Sequence == p.Sequence {
			return call.ErrDuplicatePacket
		}
	}
	t.store.mu.RLock()
	_, exists := t.store.packets[t.callID][p.Sequence]
	t.store.mu.RUnlock()
	if exists {
		return call.ErrDuplicatePacket
	}

	clone := clonePacket(p)
	clone.CallID = t.callID
	if clone.ReceivedAt.IsZero() {
		clone.ReceivedAt = t.now
	}
	t.inserts = append(t.inserts, clone)
	return nil
}

func (t *memTx) ListPacketsOrdered() ([]*call.Packet, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return orderedPackets(t.store.packets[t.callID], t.inserts), nil
}

func (t *memTx) Queue(e call.Event) {
	t.queued = append(t.queued, e)
}

func orderedPackets(committed map[int64]*call.Packet, staged []*call.Packet) []*call.Packet {
	out := make([]*call.Packet, 0, len(committed)+len(staged))
	for _, p := range committed {
		out = append(out, clonePacket(p))
	}
	for _, p := range staged {
		out = append(out, clonePacket(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func cloneCall(c *call.Call) *call.Call {
	clone := *c
	if c.Missing != nil {
		clone.Missing = append([]int64(nil), c.Missing...)
	}
	if c.ExpectedTotal != nil {
		v := *c.ExpectedTotal
		clone.ExpectedTotal = &v
	}
	if c.Transcription != nil {
		v := *c.Transcription
		clone.Transcription = &v
	}
	if c.Sentiment != nil {
		v := *c.Sentiment
		clone.Sentiment = &v
	}
	return &clone
}

func clonePacket(p *call.Packet) *call.Packet {
	clone := *p
	return &clone
}
