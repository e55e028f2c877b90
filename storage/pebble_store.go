package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"auction-importer/models"
)

var (
	carPrefix   = []byte("car/")
	carUpper    = []byte("car0") // first key after every "car/..." key
	nextIDKey   = []byte("meta/next_id")
	pebbleWrite = pebble.Sync
)

func carKey(id int64) []byte { return fmt.Appendf(nil, "car/%020d", id) }

// PebbleStore keeps the catalog in an embedded Pebble database. Each car is a
// JSON value under "car/<zero-padded id>" so iteration follows insert order.
type PebbleStore struct {
	mu  sync.Mutex // serialises writers around the id counter
	db  *pebble.DB
	now func() time.Time
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d, now: time.Now}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func (p *PebbleStore) DeleteAll(ctx context.Context) error {
	return p.InTx(ctx, func(ctx context.Context, c Collection) error { return c.DeleteAll(ctx) })
}

func (p *PebbleStore) InsertChunk(ctx context.Context, cars []models.AuctionCar) error {
	return p.InTx(ctx, func(ctx context.Context, c Collection) error { return c.InsertChunk(ctx, cars) })
}

// InTx collects every write in one indexed batch and commits it atomically.
func (p *PebbleStore) InTx(ctx context.Context, fn func(ctx context.Context, c Collection) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.db.NewIndexedBatch()
	defer b.Close()

	if err := fn(ctx, &pebbleTx{b: b, now: p.now}); err != nil {
		return err
	}
	if err := b.Commit(pebbleWrite); err != nil {
		return fmt.Errorf("pebble commit: %w", err)
	}
	return nil
}

type pebbleTx struct {
	b   *pebble.Batch
	now func() time.Time
}

func (t *pebbleTx) DeleteAll(ctx context.Context) error {
	return t.b.DeleteRange(carPrefix, carUpper, nil)
}

func (t *pebbleTx) InsertChunk(ctx context.Context, cars []models.AuctionCar) error {
	next, err := readNextID(t.b)
	if err != nil {
		return err
	}
	now := t.now()
	for _, c := range cars {
		c.ID = next
		next++
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		v, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("pebble encode %s: %w", c.ExternalID, err)
		}
		if err := t.b.Set(carKey(c.ID), v, nil); err != nil {
			return err
		}
	}
	return t.b.Set(nextIDKey, binary.BigEndian.AppendUint64(nil, uint64(next)), nil)
}

type pebbleGetter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func readNextID(r pebbleGetter) (int64, error) {
	v, closer, err := r.Get(nextIDKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(v) != 8 {
		return 0, fmt.Errorf("pebble: corrupt id counter")
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

func (p *PebbleStore) FetchAll(ctx context.Context) ([]models.AuctionCar, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: carPrefix, UpperBound: carUpper})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()

	var out []models.AuctionCar
	for it.First(); it.Valid(); it.Next() {
		var c models.AuctionCar
		if err := json.Unmarshal(it.Value(), &c); err != nil {
			return nil, fmt.Errorf("pebble decode %s: %w", it.Key(), err)
		}
		out = append(out, c)
	}
	return out, it.Error()
}

func (p *PebbleStore) List(ctx context.Context, q ListQuery) (ListResult, error) {
	all, err := p.FetchAll(ctx)
	if err != nil {
		return ListResult{}, err
	}
	return q.Apply(all), nil
}

func (p *PebbleStore) Get(ctx context.Context, id int64) (models.AuctionCar, error) {
	v, closer, err := p.db.Get(carKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return models.AuctionCar{}, ErrNotFound
	}
	if err != nil {
		return models.AuctionCar{}, err
	}
	defer closer.Close()

	var c models.AuctionCar
	if err := json.Unmarshal(v, &c); err != nil {
		return models.AuctionCar{}, fmt.Errorf("pebble decode %d: %w", id, err)
	}
	return c, nil
}

func (p *PebbleStore) Delete(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, closer, err := p.db.Get(carKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	_ = closer.Close()
	return p.db.Delete(carKey(id), pebbleWrite)
}
