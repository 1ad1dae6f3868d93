package storage

import (
	"market-data-service/src/logger"
	"market-data-service/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------
// SQLite Backend
// -----------------------------------------------------------------------------

var sqliteDDL = []string{
	// WAL keeps readers unblocked while gap-fill writes land.
	`PRAGMA journal_mode = WAL;`,
	`PRAGMA synchronous = NORMAL;`,
	`CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		market_type TEXT NOT NULL,
		open_time INTEGER NOT NULL,
		close_time INTEGER NOT NULL,
		open REAL, high REAL, low REAL, close REAL, volume REAL,
		PRIMARY KEY (symbol, timeframe, market_type, open_time)
	);`,
	`CREATE TABLE IF NOT EXISTS agg_trades (
		symbol TEXT NOT NULL,
		trade_id INTEGER NOT NULL,
		price REAL, quantity REAL,
		timestamp INTEGER NOT NULL,
		is_buyer_maker INTEGER,
		PRIMARY KEY (symbol, trade_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_agg_trades_ts ON agg_trades (symbol, timestamp, trade_id);`,
	`CREATE TABLE IF NOT EXISTS funding_rates (
		symbol TEXT NOT NULL,
		funding_time INTEGER NOT NULL,
		rate REAL, mark_price REAL,
		PRIMARY KEY (symbol, funding_time)
	);`,
	`CREATE TABLE IF NOT EXISTS open_interest (
		symbol TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		open_interest REAL, notional_usd REAL,
		PRIMARY KEY (symbol, timestamp)
	);`,
	`CREATE TABLE IF NOT EXISTS premium_index (
		symbol TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		mark_price REAL, index_price REAL, premium REAL,
		PRIMARY KEY (symbol, timestamp)
	);`,
}

// -----------------------------------------------------------------------------

// NewSQLiteBackend builds the embedded default backend. Call Initialize
// before use.
func NewSQLiteBackend(cfg *models.MConfig, log *logger.Logger) (*SQLBackend, error) {
	return &SQLBackend{
		Config: cfg,
		Logger: log,
		driver: "sqlite",
		ddl:    sqliteDDL,
	}, nil
}
