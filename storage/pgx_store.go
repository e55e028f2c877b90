package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"auction-importer/models"
	"auction-importer/utils"
)

// PgxStore is the native-driver Postgres backend. Chunks go out as one
// pgx.Batch round trip per chunk.
type PgxStore struct {
	pool *pgxpool.Pool
}

// pgxQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func NewPgxStore(ctx context.Context, dsn string, maxConns int, logger *utils.Logger) (*PgxStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgx: connect: %w", err)
	}

	retry := utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Logger: logger}
	if err := retry.Do(ctx, "pgx ping", pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: migrate: %w", err)
	}
	return &PgxStore{pool: pool}, nil
}

func (s *PgxStore) DeleteAll(ctx context.Context) error { return pgxDeleteAll(ctx, s.pool) }

func (s *PgxStore) InsertChunk(ctx context.Context, cars []models.AuctionCar) error {
	return pgxInsertChunk(ctx, s.pool, cars)
}

func (s *PgxStore) InTx(ctx context.Context, fn func(ctx context.Context, c Collection) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("pgx: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, pgxTx{tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgx: commit: %w", err)
	}
	return nil
}

type pgxTx struct{ q pgxQuerier }

func (t pgxTx) DeleteAll(ctx context.Context) error { return pgxDeleteAll(ctx, t.q) }

func (t pgxTx) InsertChunk(ctx context.Context, cars []models.AuctionCar) error {
	return pgxInsertChunk(ctx, t.q, cars)
}

func pgxDeleteAll(ctx context.Context, q pgxQuerier) error {
	if _, err := q.Exec(ctx, "DELETE FROM auction_cars"); err != nil {
		return fmt.Errorf("pgx: clear: %w", err)
	}
	return nil
}

func pgxInsertChunk(ctx context.Context, q pgxQuerier, cars []models.AuctionCar) error {
	if len(cars) == 0 {
		return nil
	}
	insert := "INSERT INTO auction_cars (" + auctionColumns + ") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)"

	b := &pgx.Batch{}
	for _, c := range cars {
		b.Queue(insert, rowArgs(c)...)
	}
	br := q.SendBatch(ctx, b)
	for i := range cars {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("pgx: insert row %d (%s): %w", i, cars[i].ExternalID, describePgError(err))
		}
	}
	return br.Close()
}

// describePgError keeps the server's message and SQLSTATE code.
func describePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (SQLSTATE %s): %w", pgErr.Message, pgErr.Code, err)
	}
	return err
}

func (s *PgxStore) List(ctx context.Context, q ListQuery) (ListResult, error) {
	q = q.Normalized()
	where, args := q.whereSQL()

	res := ListResult{Items: []models.AuctionCar{}, Page: q.Page, PageSize: q.PageSize}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM auction_cars"+where, args...).Scan(&res.Total); err != nil {
		return ListResult{}, fmt.Errorf("pgx: count: %w", err)
	}

	n := len(args)
	query := "SELECT " + selectColumns + " FROM auction_cars" + where + q.orderSQL() +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	items, err := s.query(ctx, query, append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return ListResult{}, err
	}
	res.Items = append(res.Items, items...)
	return res, nil
}

func (s *PgxStore) Get(ctx context.Context, id int64) (models.AuctionCar, error) {
	c, err := scanCar(s.pool.QueryRow(ctx, "SELECT "+selectColumns+" FROM auction_cars WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AuctionCar{}, ErrNotFound
	}
	if err != nil {
		return models.AuctionCar{}, fmt.Errorf("pgx: get %d: %w", id, err)
	}
	return c, nil
}

func (s *PgxStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM auction_cars WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("pgx: delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgxStore) FetchAll(ctx context.Context) ([]models.AuctionCar, error) {
	return s.query(ctx, "SELECT "+selectColumns+" FROM auction_cars ORDER BY id")
}

func (s *PgxStore) query(ctx context.Context, sql string, args ...any) ([]models.AuctionCar, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgx: query: %w", err)
	}
	defer rows.Close()

	var out []models.AuctionCar
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("pgx: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PgxStore) Close() error {
	s.pool.Close()
	return nil
}
