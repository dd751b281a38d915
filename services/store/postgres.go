package store

import (
	"context"
	"time"

	"pokequant/priceworker/internal/normalize"
	"pokequant/priceworker/logger"
	perrors "pokequant/priceworker/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SeriesStore persists collected series
type SeriesStore interface {
	// Save upserts the points of series under key and source
	Save(ctx context.Context, key, source string, series normalize.Series) (int, error)

	// Close releases the store's connections
	Close()
}

const defaultBatch = 200

const schemaSQL = `CREATE TABLE IF NOT EXISTS price_points (
	item_key   TEXT        NOT NULL,
	source     TEXT        NOT NULL,
	point_date DATE        NOT NULL,
	amount     NUMERIC(12,2) NOT NULL,
	currency   TEXT        NOT NULL,
	query      TEXT        NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (item_key, source, point_date)
)`

// A point is replaced only by one fetched at the same time or later
const upsertSQL = `INSERT INTO price_points
	(item_key, source, point_date, amount, currency, query, fetched_at)
	VALUES ($1, $2, $3::date, $4::numeric, $5, $6, $7)
	ON CONFLICT (item_key, source, point_date) DO UPDATE SET
		amount = EXCLUDED.amount,
		currency = EXCLUDED.currency,
		query = EXCLUDED.query,
		fetched_at = EXCLUDED.fetched_at
	WHERE price_points.fetched_at <= EXCLUDED.fetched_at`

// PostgresStore implements SeriesStore on a pgx pool
type PostgresStore struct {
	pool  *pgxpool.Pool
	batch int
	log   *logger.Logger
}

// NewPostgresStore connects to the database at dsn
func NewPostgresStore(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, perrors.NewStore("postgres", "parse dsn", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, perrors.NewStore("postgres", "connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, perrors.NewStore("postgres", "ping", err)
	}

	return &PostgresStore{
		pool:  pool,
		batch: defaultBatch,
		log:   logger.ForStore(),
	}, nil
}

// EnsureSchema creates the price_points table when missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return perrors.NewStore("postgres", "create price_points", err)
	}
	return nil
}

// Save upserts series in batches and returns the number of rows written
func (s *PostgresStore) Save(ctx context.Context, key, source string, series normalize.Series) (int, error) {
	if len(series) == 0 {
		return 0, nil
	}

	total := 0
	for i := 0; i < len(series); i += s.batch {
		j := i + s.batch
		if j > len(series) {
			j = len(series)
		}

		b := &pgx.Batch{}
		for _, p := range series[i:j] {
			b.Queue(upsertSQL,
				key, source, p.Date, p.Amount.StringFixed(2), p.Currency,
				p.Provenance.Query, p.Provenance.FetchedAt,
			)
		}

		br := s.pool.SendBatch(ctx, b)
		for k := 0; k < b.Len(); k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return total, perrors.NewStore("postgres", "upsert "+key, err)
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return total, perrors.NewStore("postgres", "upsert "+key, err)
		}
	}

	s.log.Debug().Str("key", key).Str("source", source).Int("rows", total).Msg("Saved series")
	return total, nil
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}
