package service

import (
	"context"
	"fmt"
	"time"

	"reconciler-server/internal/domain"
	"reconciler-server/internal/repository"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// memStore implements both store interfaces over a map keyed by table/id.
// Put merges fields into the existing record and clears nil-valued fields,
// mirroring the field-level overwrite semantics of the real adapters.
type memStore struct {
	records map[string]domain.Record
	getErr  error
	putErr  error
	delErr  error
	puts    int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]domain.Record)}
}

func storeKey(table, id string) string {
	return table + "/" + id
}

func (m *memStore) seed(table, id string, record domain.Record) {
	m.records[storeKey(table, id)] = cloneRecord(record)
}

func (m *memStore) record(table, id string) domain.Record {
	return m.records[storeKey(table, id)]
}

func (m *memStore) Get(ctx context.Context, table, id string) (domain.Record, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	r, ok := m.records[storeKey(table, id)]
	if !ok {
		return nil, false, nil
	}
	return cloneRecord(r), true, nil
}

func (m *memStore) Put(ctx context.Context, table, id string, record domain.Record) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	existing, ok := m.records[storeKey(table, id)]
	if !ok {
		existing = make(domain.Record)
		m.records[storeKey(table, id)] = existing
	}
	existing["id"] = id
	for k, v := range record {
		if v == nil {
			delete(existing, k)
			continue
		}
		existing[k] = v
	}
	return nil
}

func (m *memStore) Delete(ctx context.Context, table, id string) error {
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.records, storeKey(table, id))
	return nil
}

func cloneRecord(r domain.Record) domain.Record {
	if r == nil {
		return nil
	}
	out := make(domain.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// memLedger models the SQLite ledger: clones on the way in and out so
// callers cannot mutate stored state without UpdateStatus.
type memLedger struct {
	conflicts map[string]*domain.Conflict
	order     []string
}

func newMemLedger() *memLedger {
	return &memLedger{conflicts: make(map[string]*domain.Conflict)}
}

func cloneConflict(c *domain.Conflict) *domain.Conflict {
	out := *c
	out.PrimaryData = cloneRecord(c.PrimaryData)
	out.SecondaryData = cloneRecord(c.SecondaryData)
	out.ConflictFields = append([]string(nil), c.ConflictFields...)
	if c.Resolution != nil {
		res := *c.Resolution
		res.ResolvedData = cloneRecord(c.Resolution.ResolvedData)
		out.Resolution = &res
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

func (m *memLedger) Store(ctx context.Context, c *domain.Conflict) error {
	for _, existing := range m.conflicts {
		if existing.Table == c.Table && existing.RecordID == c.RecordID &&
			existing.Type == c.Type && existing.Open() {
			return repository.ErrDuplicateConflict
		}
	}
	m.conflicts[c.ID] = cloneConflict(c)
	m.order = append(m.order, c.ID)
	return nil
}

func (m *memLedger) Get(ctx context.Context, id string) (*domain.Conflict, error) {
	c, ok := m.conflicts[id]
	if !ok {
		return nil, repository.ErrConflictNotFound
	}
	return cloneConflict(c), nil
}

func (m *memLedger) UpdateStatus(ctx context.Context, id string, status domain.ConflictStatus, resolution *domain.Resolution) error {
	c, ok := m.conflicts[id]
	if !ok {
		return repository.ErrConflictNotFound
	}

	allowed := map[domain.ConflictStatus][]domain.ConflictStatus{
		domain.StatusDetected:  {domain.StatusResolving},
		domain.StatusResolving: {domain.StatusResolving, domain.StatusResolved, domain.StatusFailed},
		domain.StatusFailed:    {domain.StatusResolving},
	}
	ok = false
	for _, next := range allowed[c.Status] {
		if next == status {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, c.Status, status)
	}

	c.Status = status
	if resolution != nil {
		res := *resolution
		res.ResolvedData = cloneRecord(resolution.ResolvedData)
		c.Resolution = &res
	}
	if status == domain.StatusResolved {
		now := time.Now().UTC()
		c.ResolvedAt = &now
	}
	return nil
}

func (m *memLedger) ListUnresolved(ctx context.Context) ([]*domain.Conflict, error) {
	var out []*domain.Conflict
	for _, id := range m.order {
		c := m.conflicts[id]
		if c.Status != domain.StatusResolved {
			out = append(out, cloneConflict(c))
		}
	}
	return out, nil
}

func (m *memLedger) ListAll(ctx context.Context) ([]*domain.Conflict, error) {
	out := make([]*domain.Conflict, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneConflict(m.conflicts[id]))
	}
	return out, nil
}

func (m *memLedger) FindOpen(ctx context.Context, table, recordID string) ([]*domain.Conflict, error) {
	var out []*domain.Conflict
	for _, id := range m.order {
		c := m.conflicts[id]
		if c.Table == table && c.RecordID == recordID && c.Open() {
			out = append(out, cloneConflict(c))
		}
	}
	return out, nil
}

type stubRuleRepo struct {
	rules []*domain.DetectionRule
	err   error
}

func (s *stubRuleRepo) LoadAll(ctx context.Context) ([]*domain.DetectionRule, error) {
	return s.rules, s.err
}

func newTestRegistry(rules ...*domain.DetectionRule) *RuleRegistry {
	registry := NewRuleRegistry(&stubRuleRepo{rules: rules}, testLogger())
	registry.Reload(context.Background())
	return registry
}

// testEngine bundles a fully wired service over in-memory collaborators.
type testEngine struct {
	primary   *memStore
	secondary *memStore
	ledger    *memLedger
	service   *ConflictService
}

func newTestEngine(rules ...*domain.DetectionRule) *testEngine {
	primary := newMemStore()
	secondary := newMemStore()
	ledger := newMemLedger()
	registry := newTestRegistry(rules...)

	snapshots := NewSnapshotReader(primary, secondary)
	classifier := NewClassifier(registry, "updated_at", time.Second)
	executor := NewResolutionExecutor(ledger, snapshots, primary, secondary, "updated_at", testLogger())
	metrics := NewMetricsAggregator()

	svc := NewConflictService(ledger, snapshots, classifier, executor, registry, metrics, nil, 30*time.Second, testLogger())

	return &testEngine{
		primary:   primary,
		secondary: secondary,
		ledger:    ledger,
		service:   svc,
	}
}
