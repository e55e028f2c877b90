package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"auction-importer/models"
)

// MemoryStore keeps the catalog in process. It backs tests and the
// STORAGE_DRIVER=memory mode.
type MemoryStore struct {
	txMu   sync.Mutex // serialises transactions
	mu     sync.RWMutex
	rows   []models.AuctionCar
	nextID int64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, now: time.Now}
}

func (m *MemoryStore) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = nil
	return nil
}

func (m *MemoryStore) InsertChunk(ctx context.Context, cars []models.AuctionCar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows, m.nextID = appendRows(m.rows, m.nextID, cars, m.now())
	return nil
}

// InTx stages writes on a private copy and swaps it in when fn succeeds.
func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, c Collection) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	tx := &memoryTx{rows: slices.Clone(m.rows), nextID: m.nextID, now: m.now}
	m.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	m.rows, m.nextID = tx.rows, tx.nextID
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(ctx context.Context, q ListQuery) (ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return q.Apply(m.rows), nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (models.AuctionCar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.rows {
		if c.ID == id {
			return c, nil
		}
	}
	return models.AuctionCar{}, ErrNotFound
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.rows, func(c models.AuctionCar) bool { return c.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	m.rows = slices.Delete(m.rows, i, i+1)
	return nil
}

func (m *MemoryStore) FetchAll(ctx context.Context) ([]models.AuctionCar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.rows), nil
}

func (m *MemoryStore) Close() error { return nil }

type memoryTx struct {
	rows   []models.AuctionCar
	nextID int64
	now    func() time.Time
}

func (t *memoryTx) DeleteAll(ctx context.Context) error {
	t.rows = nil
	return nil
}

func (t *memoryTx) InsertChunk(ctx context.Context, cars []models.AuctionCar) error {
	t.rows, t.nextID = appendRows(t.rows, t.nextID, cars, t.now())
	return nil
}

// appendRows assigns IDs and creation times the way the SQL backends' column
// defaults do.
func appendRows(rows []models.AuctionCar, nextID int64, cars []models.AuctionCar, now time.Time) ([]models.AuctionCar, int64) {
	for _, c := range cars {
		c.ID = nextID
		nextID++
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		rows = append(rows, c)
	}
	return rows, nextID
}
