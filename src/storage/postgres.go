package storage

import (
	"market-data-service/src/logger"
	"market-data-service/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------
// Postgres Backend
// -----------------------------------------------------------------------------

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		market_type TEXT NOT NULL,
		open_time BIGINT NOT NULL,
		close_time BIGINT NOT NULL,
		open DOUBLE PRECISION, high DOUBLE PRECISION,
		low DOUBLE PRECISION, close DOUBLE PRECISION,
		volume DOUBLE PRECISION,
		PRIMARY KEY (symbol, timeframe, market_type, open_time)
	);`,
	`CREATE TABLE IF NOT EXISTS agg_trades (
		symbol TEXT NOT NULL,
		trade_id BIGINT NOT NULL,
		price DOUBLE PRECISION, quantity DOUBLE PRECISION,
		timestamp BIGINT NOT NULL,
		is_buyer_maker BOOLEAN,
		PRIMARY KEY (symbol, trade_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_agg_trades_ts ON agg_trades (symbol, timestamp, trade_id);`,
	`CREATE TABLE IF NOT EXISTS funding_rates (
		symbol TEXT NOT NULL,
		funding_time BIGINT NOT NULL,
		rate DOUBLE PRECISION, mark_price DOUBLE PRECISION,
		PRIMARY KEY (symbol, funding_time)
	);`,
	`CREATE TABLE IF NOT EXISTS open_interest (
		symbol TEXT NOT NULL,
		timestamp BIGINT NOT NULL,
		open_interest DOUBLE PRECISION, notional_usd DOUBLE PRECISION,
		PRIMARY KEY (symbol, timestamp)
	);`,
	`CREATE TABLE IF NOT EXISTS premium_index (
		symbol TEXT NOT NULL,
		timestamp BIGINT NOT NULL,
		mark_price DOUBLE PRECISION, index_price DOUBLE PRECISION,
		premium DOUBLE PRECISION,
		PRIMARY KEY (symbol, timestamp)
	);`,
}

// -----------------------------------------------------------------------------

// NewPostgresBackend builds the shared-deployment backend. Call Initialize
// before use.
func NewPostgresBackend(cfg *models.MConfig, log *logger.Logger) (*SQLBackend, error) {
	return &SQLBackend{
		Config: cfg,
		Logger: log,
		driver: "postgres",
		ddl:    postgresDDL,
	}, nil
}
