package testutil

import (
	"context"
	"database/sql"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	"github.com/cassiomorais/paybridge/internal/domain/payment"
	"github.com/cassiomorais/paybridge/internal/domain/product"
	"github.com/cassiomorais/paybridge/internal/domain/queue"
	"github.com/cassiomorais/paybridge/internal/gateway"
	"github.com/cassiomorais/paybridge/internal/repository/sqlstore"
)

// --- Unit of Work Mock ---

// MockUnitOfWork counts transaction lifecycle calls. Writes made through the
// in-memory stores become visible only when the transaction commits.
type MockUnitOfWork struct {
	mu        sync.Mutex
	Begins    int
	Commits   int
	Rollbacks int
	Releases  int

	BeginFunc func(ctx context.Context) (sqlstore.Tx, error)
	CommitErr error
}

func NewMockUnitOfWork() *MockUnitOfWork {
	return &MockUnitOfWork{}
}

func (u *MockUnitOfWork) Begin(ctx context.Context) (sqlstore.Tx, error) {
	if u.BeginFunc != nil {
		return u.BeginFunc(ctx)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Begins++
	return &MockTx{uow: u}, nil
}

// Counts returns begins, commits, rollbacks and releases.
func (u *MockUnitOfWork) Counts() (begins, commits, rollbacks, releases int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.Begins, u.Commits, u.Rollbacks, u.Releases
}

// MockTx is a transaction with no database behind it. SQL methods are not
// implemented and panic if called.
type MockTx struct {
	sqlstore.Tx
	uow        *MockUnitOfWork
	done       bool
	released   bool
	onCommit   []func()
	onRollback []func()
}

// OnCommit defers fn until the transaction commits.
func (t *MockTx) OnCommit(fn func()) {
	t.onCommit = append(t.onCommit, fn)
}

// OnRollback runs fn if the transaction rolls back.
func (t *MockTx) OnRollback(fn func()) {
	t.onRollback = append(t.onRollback, fn)
}

func (t *MockTx) Dialect() sqlstore.Dialect { return nil }

func (t *MockTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.uow.mu.Lock()
	t.uow.Commits++
	err := t.uow.CommitErr
	t.uow.mu.Unlock()
	if err != nil {
		for _, fn := range t.onRollback {
			fn()
		}
		return err
	}
	for _, fn := range t.onCommit {
		fn()
	}
	return nil
}

func (t *MockTx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.onCommit = nil
	t.uow.mu.Lock()
	t.uow.Rollbacks++
	t.uow.mu.Unlock()
	for _, fn := range t.onRollback {
		fn()
	}
	return nil
}

func (t *MockTx) Release() {
	if t.released {
		return
	}
	t.released = true
	if !t.done {
		_ = t.Rollback()
	}
	t.uow.mu.Lock()
	t.uow.Releases++
	t.uow.mu.Unlock()
}

// afterCommit applies fn when tx commits, or at once for any other Tx.
func afterCommit(tx sqlstore.Tx, fn func()) {
	if mt, ok := tx.(*MockTx); ok {
		mt.OnCommit(fn)
		return
	}
	fn()
}

// afterRollback runs fn if tx rolls back. It is a no-op for any other Tx.
func afterRollback(tx sqlstore.Tx, fn func()) {
	if mt, ok := tx.(*MockTx); ok {
		mt.OnRollback(fn)
	}
}

// --- Product Store Mock ---

type MockProductStore struct {
	mu       sync.Mutex
	products map[int64]*product.Product

	FindFunc func(ctx context.Context, tx sqlstore.Tx, id int64) (*product.Product, error)
	Finds    int
}

func NewMockProductStore() *MockProductStore {
	return &MockProductStore{products: make(map[int64]*product.Product)}
}

func (m *MockProductStore) AddProduct(p *product.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *MockProductStore) Find(ctx context.Context, tx sqlstore.Tx, id int64) (*product.Product, error) {
	m.mu.Lock()
	m.Finds++
	m.mu.Unlock()
	if m.FindFunc != nil {
		return m.FindFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// --- Payment Store Mock ---

type MockPaymentStore struct {
	mu       sync.Mutex
	payments map[int64]*payment.Payment
	byLink   map[string]int64
	nextID   int64
	Writes   int

	CreateFunc       func(ctx context.Context, tx sqlstore.Tx, p *payment.Payment) (*payment.Payment, error)
	LockByLinkIDFunc func(ctx context.Context, tx sqlstore.Tx, linkID string) (*payment.Payment, error)
	MarkNotifiedFunc func(ctx context.Context, tx sqlstore.Tx, p *payment.Payment) error
}

func NewMockPaymentStore() *MockPaymentStore {
	return &MockPaymentStore{
		payments: make(map[int64]*payment.Payment),
		byLink:   make(map[string]int64),
	}
}

// AddPayment stores p as committed, assigning an id when it has none.
func (m *MockPaymentStore) AddPayment(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
	}
	cp := *p
	m.payments[p.ID] = &cp
	m.byLink[p.LinkID] = p.ID
}

func (m *MockPaymentStore) Create(ctx context.Context, tx sqlstore.Tx, p *payment.Payment) (*payment.Payment, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	stored := *p
	stored.ID = m.nextID
	stored.CreatedAt = time.Now()
	m.Writes++
	afterCommit(tx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		cp := stored
		m.payments[cp.ID] = &cp
		m.byLink[cp.LinkID] = cp.ID
	})
	return &stored, nil
}

func (m *MockPaymentStore) LockByLinkID(ctx context.Context, tx sqlstore.Tx, linkID string) (*payment.Payment, error) {
	if m.LockByLinkIDFunc != nil {
		return m.LockByLinkIDFunc(ctx, tx, linkID)
	}
	return m.GetByLinkID(linkID), nil
}

func (m *MockPaymentStore) MarkNotified(ctx context.Context, tx sqlstore.Tx, p *payment.Payment) error {
	if m.MarkNotifiedFunc != nil {
		return m.MarkNotifiedFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.payments[p.ID]
	if !ok || current.Status != payment.StatusPending {
		return domainErrors.ErrDuplicateSettlement
	}
	if err := p.MarkNotified(); err != nil {
		return domainErrors.ErrDuplicateSettlement
	}
	m.Writes++
	updated := *p
	afterCommit(tx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.payments[updated.ID] = &updated
	})
	return nil
}

// GetByLinkID returns a copy of the committed row, or nil.
func (m *MockPaymentStore) GetByLinkID(linkID string) *payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byLink[linkID]
	if !ok {
		return nil
	}
	cp := *m.payments[id]
	return &cp
}

// Count returns the number of committed payments.
func (m *MockPaymentStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

// --- Queue Store Mock ---

// MockQueueStore reserves the payment id on Enqueue, like a unique key held
// by an open transaction, and frees it again on rollback.
type MockQueueStore struct {
	mu        sync.Mutex
	entries   []*queue.Entry
	byPayment map[int64]bool
	Writes    int

	EnqueueFunc func(ctx context.Context, tx sqlstore.Tx, e *queue.Entry) (*queue.Entry, error)
}

func NewMockQueueStore() *MockQueueStore {
	return &MockQueueStore{byPayment: make(map[int64]bool)}
}

func (m *MockQueueStore) Enqueue(ctx context.Context, tx sqlstore.Tx, e *queue.Entry) (*queue.Entry, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, tx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byPayment[e.PaymentID] {
		return nil, domainErrors.ErrDuplicateSettlement
	}
	m.byPayment[e.PaymentID] = true
	stored := *e
	stored.CreatedAt = time.Now()
	m.Writes++
	afterCommit(tx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		cp := stored
		cp.ID = int64(len(m.entries) + 1)
		m.entries = append(m.entries, &cp)
	})
	afterRollback(tx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.byPayment, stored.PaymentID)
	})
	return &stored, nil
}

// Entries returns copies of the committed entries.
func (m *MockQueueStore) Entries() []queue.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]queue.Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = *e
	}
	return out
}

// --- Gateway Mock ---

type MockGateway struct {
	mu       sync.Mutex
	Calls    int
	Requests []gateway.LinkRequest

	CreatePaymentLinkFunc func(ctx context.Context, req gateway.LinkRequest) (*gateway.LinkResult, error)
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreatePaymentLink(ctx context.Context, req gateway.LinkRequest) (*gateway.LinkResult, error) {
	m.mu.Lock()
	m.Calls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.CreatePaymentLinkFunc != nil {
		return m.CreatePaymentLinkFunc(ctx, req)
	}
	return SuccessfulLink("LNK-1"), nil
}
