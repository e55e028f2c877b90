package storage

import (
	"context"
	"errors"

	"auction-importer/models"
)

// ErrNotFound is returned by Catalog lookups for a missing row.
var ErrNotFound = errors.New("auction not found")

// Collection is the minimal write surface the BulkWriter needs from a backend.
type Collection interface {
	DeleteAll(ctx context.Context) error
	InsertChunk(ctx context.Context, cars []models.AuctionCar) error
}

// Transactor is implemented by backends that can run a replace atomically.
// fn receives a Collection bound to the transaction; returning an error rolls
// everything back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, c Collection) error) error
}

// Catalog is the read side used by the CLI, the admin API and the insight
// service.
type Catalog interface {
	List(ctx context.Context, q ListQuery) (ListResult, error)
	Get(ctx context.Context, id int64) (models.AuctionCar, error)
	Delete(ctx context.Context, id int64) error
	FetchAll(ctx context.Context) ([]models.AuctionCar, error)
}

// Store is a full backend.
type Store interface {
	Collection
	Catalog
	Close() error
}

// Count returns the number of stored auctions.
func Count(ctx context.Context, c Catalog) (int, error) {
	res, err := c.List(ctx, ListQuery{PageSize: 1})
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}
