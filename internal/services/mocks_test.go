package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/freelanceguard/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Fake pool and transaction.
// The fake transaction keeps an undo journal: mocks register undo closures for
// every mutation, so a Rollback before Commit restores the in-memory world the
// way Postgres would.
// ---------------------------------------------------------------------------

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	committed bool
	rolled    bool
	undos     []func()
}

// undoOn registers an undo closure when the tx is our fake; repo mocks call it
// after every mutation.
func undoOn(tx pgx.Tx, fn func()) {
	if ft, ok := tx.(*fakeTx); ok {
		ft.undos = append(ft.undos, fn)
	}
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	if f.committed {
		return pgx.ErrTxClosed
	}
	for i := len(f.undos) - 1; i >= 0; i-- {
		f.undos[i]()
	}
	f.undos = nil
	return nil
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}

// ---------------------------------------------------------------------------
// In-memory mocks for the account and ledger entry repos.
// ---------------------------------------------------------------------------

type mockAccounts struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{balances: make(map[uuid.UUID]int64)}
}

func (m *mockAccounts) Debit(_ context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[id]
	if !ok || bal < amountCents {
		return 0, pgx.ErrNoRows
	}
	m.balances[id] = bal - amountCents
	undoOn(tx, func() {
		m.mu.Lock()
		m.balances[id] += amountCents
		m.mu.Unlock()
	})
	return bal - amountCents, nil
}

func (m *mockAccounts) Credit(_ context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[id]; !ok {
		return 0, pgx.ErrNoRows
	}
	m.balances[id] += amountCents
	undoOn(tx, func() {
		m.mu.Lock()
		m.balances[id] -= amountCents
		m.mu.Unlock()
	})
	return m.balances[id], nil
}

func (m *mockAccounts) balance(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[id]
}

func (m *mockAccounts) total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, b := range m.balances {
		sum += b
	}
	return sum
}

// ---

// mockEntries records ledger entries. When escrows is set, an entry referencing
// an unknown escrow fails the way the foreign key would, so statement ordering
// bugs surface without a database.
type mockEntries struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
	escrows *mockEscrows
}

func (m *mockEntries) CreateTx(_ context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	if e.EscrowID != nil && m.escrows != nil && !m.escrows.has(*e.EscrowID) {
		return &pgconn.PgError{Code: "23503", Message: "ledger entry references missing escrow"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	undoOn(tx, func() {
		m.mu.Lock()
		m.entries = m.entries[:len(m.entries)-1]
		m.mu.Unlock()
	})
	return nil
}

func (m *mockEntries) byType(entryType string) []*models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.EntryType == entryType {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockEntries) all() []*models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.LedgerEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// ---------------------------------------------------------------------------
// In-memory mocks for the escrow, milestone, and dispute repos.
// ---------------------------------------------------------------------------

type mockEscrows struct {
	mu      sync.Mutex
	nonce   int64
	escrows map[int64]*models.Escrow
}

func newMockEscrows() *mockEscrows {
	return &mockEscrows{escrows: make(map[int64]*models.Escrow)}
}

func (m *mockEscrows) NextID(_ context.Context, tx pgx.Tx) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonce++
	undoOn(tx, func() {
		m.mu.Lock()
		m.nonce--
		m.mu.Unlock()
	})
	return m.nonce, nil
}

func (m *mockEscrows) Create(_ context.Context, tx pgx.Tx, e *models.Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.escrows[e.ID] = &cp
	id := e.ID
	undoOn(tx, func() {
		m.mu.Lock()
		delete(m.escrows, id)
		m.mu.Unlock()
	})
	return nil
}

func (m *mockEscrows) has(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.escrows[id]
	return ok
}

func (m *mockEscrows) GetByID(_ context.Context, id int64) (*models.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (m *mockEscrows) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id int64) (*models.Escrow, error) {
	return m.GetByID(ctx, id)
}

func (m *mockEscrows) ReserveMilestone(_ context.Context, tx pgx.Tx, escrowID, amountCents int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[escrowID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	e.MilestoneCount++
	e.AllocatedCents += amountCents
	undoOn(tx, func() {
		m.mu.Lock()
		e.MilestoneCount--
		e.AllocatedCents -= amountCents
		m.mu.Unlock()
	})
	return e.MilestoneCount, nil
}

func (m *mockEscrows) RecordPayment(_ context.Context, tx pgx.Tx, id, amountCents int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	prevStatus := e.Status
	e.PaidCents += amountCents
	e.Status = status
	undoOn(tx, func() {
		m.mu.Lock()
		e.PaidCents -= amountCents
		e.Status = prevStatus
		m.mu.Unlock()
	})
	return nil
}

func (m *mockEscrows) SetStatus(_ context.Context, tx pgx.Tx, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	prev := e.Status
	e.Status = status
	undoOn(tx, func() {
		m.mu.Lock()
		e.Status = prev
		m.mu.Unlock()
	})
	return nil
}

// ---

type msKey struct {
	escrowID int64
	id       int64
}

type mockMilestones struct {
	mu         sync.Mutex
	milestones map[msKey]*models.Milestone
}

func newMockMilestones() *mockMilestones {
	return &mockMilestones{milestones: make(map[msKey]*models.Milestone)}
}

func (m *mockMilestones) Create(_ context.Context, tx pgx.Tx, ms *models.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ms
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	key := msKey{ms.EscrowID, ms.ID}
	m.milestones[key] = &cp
	undoOn(tx, func() {
		m.mu.Lock()
		delete(m.milestones, key)
		m.mu.Unlock()
	})
	return nil
}

func (m *mockMilestones) Get(_ context.Context, escrowID, id int64) (*models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[msKey{escrowID, id}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *ms
	return &cp, nil
}

func (m *mockMilestones) GetForUpdate(ctx context.Context, _ pgx.Tx, escrowID, id int64) (*models.Milestone, error) {
	return m.Get(ctx, escrowID, id)
}

func (m *mockMilestones) ListByEscrowID(_ context.Context, escrowID int64) ([]*models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Milestone
	for key, ms := range m.milestones {
		if key.escrowID == escrowID {
			cp := *ms
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockMilestones) mutate(tx pgx.Tx, escrowID, id int64, fn func(*models.Milestone)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[msKey{escrowID, id}]
	if !ok {
		return pgx.ErrNoRows
	}
	prev := *ms
	fn(ms)
	ms.UpdatedAt = time.Now().UTC()
	undoOn(tx, func() {
		m.mu.Lock()
		*ms = prev
		m.mu.Unlock()
	})
	return nil
}

func (m *mockMilestones) SetSubmitted(_ context.Context, tx pgx.Tx, escrowID, id int64, notes string, at time.Time) error {
	return m.mutate(tx, escrowID, id, func(ms *models.Milestone) {
		ms.Status = models.MilestoneStatusSubmitted
		ms.SubmissionNotes = notes
		ms.SubmittedAt = &at
	})
}

func (m *mockMilestones) SetApproved(_ context.Context, tx pgx.Tx, escrowID, id int64) error {
	return m.mutate(tx, escrowID, id, func(ms *models.Milestone) {
		ms.Status = models.MilestoneStatusApproved
	})
}

func (m *mockMilestones) SetRejected(_ context.Context, tx pgx.Tx, escrowID, id int64, reason string) error {
	return m.mutate(tx, escrowID, id, func(ms *models.Milestone) {
		ms.Status = models.MilestoneStatusRejected
		ms.RejectionReason = reason
	})
}

// ---

type mockDisputes struct {
	mu       sync.Mutex
	nonce    int64
	disputes map[int64]*models.Dispute
}

func newMockDisputes() *mockDisputes {
	return &mockDisputes{disputes: make(map[int64]*models.Dispute)}
}

func (m *mockDisputes) NextID(_ context.Context, tx pgx.Tx) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonce++
	undoOn(tx, func() {
		m.mu.Lock()
		m.nonce--
		m.mu.Unlock()
	})
	return m.nonce, nil
}

func (m *mockDisputes) Create(_ context.Context, tx pgx.Tx, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	cp.CreatedAt = time.Now().UTC()
	m.disputes[d.ID] = &cp
	id := d.ID
	undoOn(tx, func() {
		m.mu.Lock()
		delete(m.disputes, id)
		m.mu.Unlock()
	})
	return nil
}

func (m *mockDisputes) GetByID(_ context.Context, id int64) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDisputes) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id int64) (*models.Dispute, error) {
	return m.GetByID(ctx, id)
}

func (m *mockDisputes) MarkResolved(_ context.Context, tx pgx.Tx, id int64, resolution string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	prev := *d
	d.Resolved = true
	d.Resolution = &resolution
	d.ResolvedAt = &at
	undoOn(tx, func() {
		m.mu.Lock()
		*d = prev
		m.mu.Unlock()
	})
	return nil
}

// ---------------------------------------------------------------------------
// Test world: real Registry and CustodyService over the mocks.
// ---------------------------------------------------------------------------

type testWorld struct {
	pool       *fakePool
	accounts   *mockAccounts
	entries    *mockEntries
	escrows    *mockEscrows
	milestones *mockMilestones
	disputes   *mockDisputes
	registry   *Registry

	client     uuid.UUID
	freelancer uuid.UUID
	arbitrator uuid.UUID
}

func newTestWorld(t *testing.T, clientBalance int64) *testWorld {
	t.Helper()
	w := &testWorld{
		pool:       &fakePool{},
		accounts:   newMockAccounts(),
		entries:    &mockEntries{},
		escrows:    newMockEscrows(),
		milestones: newMockMilestones(),
		disputes:   newMockDisputes(),
		client:     uuid.New(),
		freelancer: uuid.New(),
		arbitrator: uuid.New(),
	}
	w.accounts.balances[w.client] = clientBalance
	w.accounts.balances[w.freelancer] = 0
	w.accounts.balances[w.arbitrator] = 0
	w.entries.escrows = w.escrows

	custody := NewCustodyService(w.accounts, w.entries)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w.registry = NewRegistry(w.pool, w.escrows, w.milestones, w.disputes, custody, nil, logger)
	return w
}

// mustCreateEscrow creates an active escrow and fails the test on error.
func (w *testWorld) mustCreateEscrow(t *testing.T, totalCents int64) int64 {
	t.Helper()
	id, err := w.registry.CreateEscrow(context.Background(), w.client, w.freelancer, w.arbitrator, totalCents, "")
	if err != nil {
		t.Fatalf("CreateEscrow: %v", err)
	}
	return id
}

// mustAddMilestone appends a milestone as the client and fails the test on error.
func (w *testWorld) mustAddMilestone(t *testing.T, escrowID, amountCents int64) int64 {
	t.Helper()
	id, err := w.registry.AddMilestone(context.Background(), w.client, escrowID, "milestone", amountCents, nil)
	if err != nil {
		t.Fatalf("AddMilestone: %v", err)
	}
	return id
}

// mustSubmit submits a milestone as the freelancer and fails the test on error.
func (w *testWorld) mustSubmit(t *testing.T, escrowID, milestoneID int64) {
	t.Helper()
	if err := w.registry.SubmitMilestone(context.Background(), w.freelancer, escrowID, milestoneID, "done"); err != nil {
		t.Fatalf("SubmitMilestone: %v", err)
	}
}

func (w *testWorld) escrow(t *testing.T, id int64) *models.Escrow {
	t.Helper()
	esc, err := w.registry.GetEscrow(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEscrow(%d): %v", id, err)
	}
	return esc
}

func (w *testWorld) milestone(t *testing.T, escrowID, id int64) *models.Milestone {
	t.Helper()
	ms, err := w.registry.GetMilestone(context.Background(), escrowID, id)
	if err != nil {
		t.Fatalf("GetMilestone(%d, %d): %v", escrowID, id, err)
	}
	return ms
}
