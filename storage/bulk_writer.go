package storage

import (
	"context"
	"fmt"

	"auction-importer/models"
	"auction-importer/utils"
)

// DefaultChunkSize is the number of rows sent per insert call.
const DefaultChunkSize = 1000

// BulkWriter replaces the whole auction dataset with a new batch.
type BulkWriter struct {
	coll      Collection
	chunkSize int
	logger    *utils.Logger
}

// NewBulkWriter wraps a backend. chunkSize <= 0 means DefaultChunkSize.
func NewBulkWriter(coll Collection, chunkSize int, logger *utils.Logger) *BulkWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &BulkWriter{coll: coll, chunkSize: chunkSize, logger: logger}
}

// ReplaceAll deletes every stored auction, then inserts cars in chunks, in
// order. The delete runs even for an empty batch. On backends implementing
// Transactor the whole replace is atomic; elsewhere a failed chunk leaves
// earlier chunks committed.
func (w *BulkWriter) ReplaceAll(ctx context.Context, cars []models.AuctionCar) (int, error) {
	tx, ok := w.coll.(Transactor)
	if !ok {
		w.logger.Warn("[bulk] backend %T has no transactions; replace is not atomic", w.coll)
		return w.replace(ctx, w.coll, cars)
	}

	var inserted int
	err := tx.InTx(ctx, func(ctx context.Context, c Collection) error {
		n, err := w.replace(ctx, c, cars)
		inserted = n
		return err
	})
	if err != nil {
		// rolled back
		return 0, err
	}
	return inserted, nil
}

func (w *BulkWriter) replace(ctx context.Context, c Collection, cars []models.AuctionCar) (int, error) {
	if err := c.DeleteAll(ctx); err != nil {
		return 0, fmt.Errorf("bulk: delete existing: %w", err)
	}
	w.logger.Debug("[bulk] cleared existing auctions")

	inserted := 0
	for start := 0; start < len(cars); start += w.chunkSize {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		end := min(start+w.chunkSize, len(cars))
		if err := c.InsertChunk(ctx, cars[start:end]); err != nil {
			return inserted, fmt.Errorf("bulk: insert rows %d-%d: %w", start, end-1, err)
		}
		inserted += end - start
		w.logger.Debug("[bulk] inserted rows %d-%d", start, end-1)
	}
	w.logger.Info("[bulk] replaced dataset with %d auctions", inserted)
	return inserted, nil
}
