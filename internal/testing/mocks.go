package testing

import (
	"context"
	"sync"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/events"
)

// Operation names accepted by MemoryRemote.SetError and FailNext
const (
	OpQuery     = "query"
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpSubscribe = "subscribe"
)

var serialTables = map[domain.Table]bool{
	domain.TableLedgerEntries: true,
	domain.TableSchedules:     true,
	domain.TableTags:          true,
	domain.TableBalances:      true,
}

type memoryStream struct {
	*events.QueueStream
	kinds []domain.ChangeKind
}

// MemoryRemote is an in-memory implementation of domain.RemoteStore for testing.
// Every successful write is pushed to the open change streams of its table.
type MemoryRemote struct {
	mu       sync.Mutex
	tables   map[domain.Table][]domain.Row
	nextID   int64
	streams  map[domain.Table]map[*memoryStream]struct{}
	errs     map[string]error
	failNext map[string]error
	calls    map[string]int

	// OnQuery, if set, runs after a query snapshot is taken and before it is
	// returned. Tests use it to interleave concurrent callers.
	OnQuery func(table domain.Table)
}

// NewMemoryRemote creates an empty store
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		tables:   make(map[domain.Table][]domain.Row),
		streams:  make(map[domain.Table]map[*memoryStream]struct{}),
		errs:     make(map[string]error),
		failNext: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Seed stores rows without emitting change events
func (m *MemoryRemote) Seed(table domain.Table, rows ...domain.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], r.Clone())
		if id, err := r.Int64("id"); err == nil && serialTables[table] && id > m.nextID {
			m.nextID = id
		}
	}
}

// SetOnQuery installs the OnQuery hook
func (m *MemoryRemote) SetOnQuery(fn func(table domain.Table)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OnQuery = fn
}

// Rows returns a copy of the stored rows
func (m *MemoryRemote) Rows(table domain.Table) []domain.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, r.Clone())
	}
	return out
}

// SetError makes every call of op fail with err until cleared with nil
func (m *MemoryRemote) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// FailNext makes only the next call of op fail with err
func (m *MemoryRemote) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[op] = err
}

// Calls returns how many times op was invoked, failed calls included
func (m *MemoryRemote) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// OpenStreams returns the number of open change streams on table
func (m *MemoryRemote) OpenStreams(table domain.Table) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams[table])
}

// CloseStreams ends every open change stream on table, as a dropped
// connection would
func (m *MemoryRemote) CloseStreams(table domain.Table) {
	m.mu.Lock()
	var open []*memoryStream
	for s := range m.streams[table] {
		open = append(open, s)
	}
	m.mu.Unlock()
	for _, s := range open {
		_ = s.Close()
	}
}

// Emit pushes ev to the table's streams as if a write had happened elsewhere
func (m *MemoryRemote) Emit(ev domain.ChangeEvent) {
	m.mu.Lock()
	targets := m.targets(ev.Table, ev.Kind)
	m.mu.Unlock()
	for _, s := range targets {
		s.Push(ev)
	}
}

// begin records the call and returns the injected error, if any.
// Caller holds m.mu.
func (m *MemoryRemote) begin(op string) error {
	m.calls[op]++
	if err, ok := m.failNext[op]; ok {
		delete(m.failNext, op)
		return err
	}
	return m.errs[op]
}

func (m *MemoryRemote) targets(table domain.Table, kind domain.ChangeKind) []*memoryStream {
	var out []*memoryStream
	for s := range m.streams[table] {
		if domain.WantsKind(s.kinds, kind) {
			out = append(out, s)
		}
	}
	return out
}

func (m *MemoryRemote) publish(evs []domain.ChangeEvent) {
	for _, ev := range evs {
		m.Emit(ev)
	}
}

// Query returns clones of the rows matching filter
func (m *MemoryRemote) Query(ctx context.Context, table domain.Table, filter domain.Filter) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if err := m.begin(OpQuery); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	var out []domain.Row
	for _, r := range m.tables[table] {
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	hook := m.OnQuery
	m.mu.Unlock()

	if hook != nil {
		hook(table)
	}
	return out, nil
}

// Insert appends rows, assigning integer ids to serial tables
func (m *MemoryRemote) Insert(ctx context.Context, table domain.Table, rows []domain.Row) ([]domain.Row, error) {
	m.mu.Lock()
	if err := m.begin(OpInsert); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	inserted := make([]domain.Row, 0, len(rows))
	evs := make([]domain.ChangeEvent, 0, len(rows))
	for _, r := range rows {
		row := r.Clone()
		if _, ok := row["id"]; !ok && serialTables[table] {
			m.nextID++
			row["id"] = m.nextID
		}
		m.tables[table] = append(m.tables[table], row)
		inserted = append(inserted, row.Clone())
		evs = append(evs, domain.ChangeEvent{Kind: domain.ChangeInsert, Table: table, Row: row.Clone()})
	}
	m.mu.Unlock()

	m.publish(evs)
	return inserted, nil
}

// Update applies patch to every row matching filter
func (m *MemoryRemote) Update(ctx context.Context, table domain.Table, patch domain.Row, filter domain.Filter) ([]domain.Row, error) {
	m.mu.Lock()
	if err := m.begin(OpUpdate); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	var updated []domain.Row
	var evs []domain.ChangeEvent
	for i, r := range m.tables[table] {
		if !filter.Matches(r) {
			continue
		}
		old := r.Clone()
		row := r.Clone()
		for k, v := range patch {
			row[k] = v
		}
		m.tables[table][i] = row
		updated = append(updated, row.Clone())
		evs = append(evs, domain.ChangeEvent{Kind: domain.ChangeUpdate, Table: table, Row: row.Clone(), OldRow: old})
	}
	m.mu.Unlock()

	m.publish(evs)
	return updated, nil
}

// Delete removes every row matching filter
func (m *MemoryRemote) Delete(ctx context.Context, table domain.Table, filter domain.Filter) error {
	m.mu.Lock()
	if err := m.begin(OpDelete); err != nil {
		m.mu.Unlock()
		return err
	}
	var kept []domain.Row
	var evs []domain.ChangeEvent
	for _, r := range m.tables[table] {
		if filter.Matches(r) {
			evs = append(evs, domain.ChangeEvent{Kind: domain.ChangeDelete, Table: table, OldRow: r.Clone()})
			continue
		}
		kept = append(kept, r)
	}
	m.tables[table] = kept
	m.mu.Unlock()

	m.publish(evs)
	return nil
}

// SubscribeChanges opens a change stream on table
func (m *MemoryRemote) SubscribeChanges(ctx context.Context, table domain.Table, kinds []domain.ChangeKind) (domain.ChangeStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpSubscribe); err != nil {
		return nil, err
	}

	s := &memoryStream{kinds: kinds}
	s.QueueStream = events.NewQueueStream(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.streams[table], s)
	})
	if m.streams[table] == nil {
		m.streams[table] = make(map[*memoryStream]struct{})
	}
	m.streams[table][s] = struct{}{}
	return s, nil
}

// MockKeyValueStore is an in-memory domain.KeyValueStore
type MockKeyValueStore struct {
	mu     sync.RWMutex
	values map[string]string
	err    error
}

// NewMockKeyValueStore creates an empty store
func NewMockKeyValueStore() *MockKeyValueStore {
	return &MockKeyValueStore{values: make(map[string]string)}
}

// SetError sets the error returned by every call
func (m *MockKeyValueStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Get returns the stored value
func (m *MockKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key
func (m *MockKeyValueStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

// Keys returns the number of stored keys
func (m *MockKeyValueStore) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// MockDepletionHook records the products it was asked to deplete
type MockDepletionHook struct {
	mu    sync.Mutex
	calls []string
	err   error
}

// NewMockDepletionHook creates a hook that succeeds
func NewMockDepletionHook() *MockDepletionHook {
	return &MockDepletionHook{}
}

// SetError sets the error to return
func (m *MockDepletionHook) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// MarkProductDepleted records the call
func (m *MockDepletionHook) MarkProductDepleted(ctx context.Context, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, productID)
	return m.err
}

// Calls returns the product ids passed so far, in call order
func (m *MockDepletionHook) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
