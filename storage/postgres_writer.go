package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"auction-importer/models"
	"auction-importer/utils"
)

// auctionColumns is the insert column order shared by the SQL backends.
const auctionColumns = `external_id, title, make, model, start_price, year, end_date,
	external_url, status, mileage, fuel_type, transmission, location, image_url`

const auctionColumnCount = 14

// postgresMaxParams is the bind-parameter limit of one Postgres statement.
const postgresMaxParams = 65535

// MaxChunkSize is the largest insert chunk a single multi-row VALUES
// statement can carry.
const MaxChunkSize = postgresMaxParams / auctionColumnCount

// selectColumns reads nullable text columns as empty strings.
const selectColumns = `id, external_id, title, COALESCE(make, ''), COALESCE(model, ''),
	start_price, year, end_date, external_url, status, COALESCE(mileage, ''),
	COALESCE(fuel_type, ''), COALESCE(transmission, ''), COALESCE(location, ''),
	COALESCE(image_url, ''), created_at`

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS auction_cars (
		id           BIGSERIAL PRIMARY KEY,
		external_id  TEXT          NOT NULL UNIQUE,
		title        TEXT          NOT NULL,
		make         TEXT,
		model        TEXT,
		start_price  NUMERIC(14,2) NOT NULL DEFAULT 0,
		year         INTEGER       NOT NULL,
		end_date     TIMESTAMPTZ   NOT NULL,
		external_url TEXT          NOT NULL,
		status       TEXT          NOT NULL DEFAULT 'active',
		mileage      TEXT,
		fuel_type    TEXT,
		transmission TEXT,
		location     TEXT,
		image_url    TEXT,
		created_at   TIMESTAMPTZ   NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_auction_cars_end_date    ON auction_cars(end_date);
	CREATE INDEX IF NOT EXISTS idx_auction_cars_start_price ON auction_cars(start_price);
	CREATE INDEX IF NOT EXISTS idx_auction_cars_make        ON auction_cars(make);
	CREATE INDEX IF NOT EXISTS idx_auction_cars_location    ON auction_cars(location);
`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists auction cars to PostgreSQL through database/sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Logger: logger}
	if err := retry.Do(ctx, "postgres ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, schemaSQL)
	return err
}

func (ps *PostgresStore) DeleteAll(ctx context.Context) error {
	return deleteAll(ctx, ps.db)
}

func (ps *PostgresStore) InsertChunk(ctx context.Context, cars []models.AuctionCar) error {
	return insertChunk(ctx, ps.db, cars)
}

// InTx runs fn inside a single transaction; any error rolls it back.
func (ps *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, c Collection) error) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, sqlTx{tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type sqlTx struct{ q querier }

func (t sqlTx) DeleteAll(ctx context.Context) error { return deleteAll(ctx, t.q) }

func (t sqlTx) InsertChunk(ctx context.Context, cars []models.AuctionCar) error {
	return insertChunk(ctx, t.q, cars)
}

func deleteAll(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM auction_cars"); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

// insertChunk sends one multi-row INSERT. Constraint violations are returned,
// not skipped.
func insertChunk(ctx context.Context, q querier, cars []models.AuctionCar) error {
	if len(cars) == 0 {
		return nil
	}
	query, args := buildInsert(cars)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: insert %d rows: %w", len(cars), err)
	}
	return nil
}

func buildInsert(cars []models.AuctionCar) (string, []any) {
	valueStrings := make([]string, 0, len(cars))
	valueArgs := make([]any, 0, len(cars)*auctionColumnCount)

	for idx, c := range cars {
		base := idx * auctionColumnCount
		ph := make([]string, auctionColumnCount)
		for k := range ph {
			ph[k] = fmt.Sprintf("$%d", base+k+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs, rowArgs(c)...)
	}

	query := fmt.Sprintf("INSERT INTO auction_cars (%s) VALUES %s", auctionColumns, strings.Join(valueStrings, ","))
	return query, valueArgs
}

// rowArgs orders a car's values like auctionColumns. Empty optional text is
// stored as NULL.
func rowArgs(c models.AuctionCar) []any {
	return []any{
		c.ExternalID, c.Title, nullString(c.Make), nullString(c.Model), c.StartPrice, c.Year, c.EndDate,
		c.ExternalURL, c.Status, nullString(c.Mileage), nullString(c.FuelType),
		nullString(c.Transmission), nullString(c.Location), nullString(c.ImageURL),
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (ps *PostgresStore) List(ctx context.Context, q ListQuery) (ListResult, error) {
	q = q.Normalized()
	where, args := q.whereSQL()

	res := ListResult{Items: []models.AuctionCar{}, Page: q.Page, PageSize: q.PageSize}
	if err := ps.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM auction_cars"+where, args...).Scan(&res.Total); err != nil {
		return ListResult{}, fmt.Errorf("postgres: count: %w", err)
	}

	n := len(args)
	query := "SELECT " + selectColumns + " FROM auction_cars" + where + q.orderSQL() +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	rows, err := ps.db.QueryContext(ctx, query, append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return ListResult{}, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	items, err := scanCars(rows)
	if err != nil {
		return ListResult{}, err
	}
	res.Items = append(res.Items, items...)
	return res, nil
}

func (ps *PostgresStore) Get(ctx context.Context, id int64) (models.AuctionCar, error) {
	row := ps.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM auction_cars WHERE id = $1", id)
	c, err := scanCar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AuctionCar{}, ErrNotFound
	}
	if err != nil {
		return models.AuctionCar{}, fmt.Errorf("postgres: get %d: %w", id, err)
	}
	return c, nil
}

func (ps *PostgresStore) Delete(ctx context.Context, id int64) error {
	res, err := ps.db.ExecContext(ctx, "DELETE FROM auction_cars WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FetchAll retrieves every stored auction, used by the insight service.
func (ps *PostgresStore) FetchAll(ctx context.Context) ([]models.AuctionCar, error) {
	rows, err := ps.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM auction_cars ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()
	return scanCars(rows)
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCar(r rowScanner) (models.AuctionCar, error) {
	var c models.AuctionCar
	err := r.Scan(&c.ID, &c.ExternalID, &c.Title, &c.Make, &c.Model,
		&c.StartPrice, &c.Year, &c.EndDate, &c.ExternalURL, &c.Status, &c.Mileage,
		&c.FuelType, &c.Transmission, &c.Location, &c.ImageURL, &c.CreatedAt)
	return c, err
}

func scanCars(rows *sql.Rows) ([]models.AuctionCar, error) {
	var out []models.AuctionCar
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
