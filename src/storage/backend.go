package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"market-data-service/src/logger"
	"market-data-service/src/models"

	"github.com/jmoiron/sqlx"
)

// -----------------------------------------------------------------------------
// SQLBackend
//
// One backend serves both drivers: queries are written with '?' placeholders
// and rebound per driver through sqlx. Only schema DDL differs, supplied by
// the sqlite/postgres constructors.
// -----------------------------------------------------------------------------

type SQLBackend struct {
	Config *models.MConfig
	DB     *sqlx.DB
	Logger *logger.Logger

	driver string
	ddl    []string

	// cancelFetch cooperatively aborts the in-flight StreamAggTrades loop.
	cancelFetch atomic.Bool
}

// -----------------------------------------------------------------------------

// Initialize opens the connection and creates the schema.
func (d *SQLBackend) Initialize() error {
	db, err := sqlx.Open(d.driver, d.dsn())
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", models.ErrStorage, d.driver, err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("%w: ping %s: %v", models.ErrStorage, d.driver, err)
	}
	d.DB = db

	for _, stmt := range d.ddl {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("%w: schema init: %v", models.ErrStorage, err)
		}
	}

	d.Logger.Info("storage initialized (%s)", d.driver)
	return nil
}

func (d *SQLBackend) dsn() string {
	if d.driver == "postgres" {
		return d.Config.Storage.DBConnectionString
	}
	return d.Config.Storage.DBPath
}

// -----------------------------------------------------------------------------
// Candles
// -----------------------------------------------------------------------------

func (d *SQLBackend) GetCandles(ctx context.Context, symbol, timeframe, marketType string, r models.MTimeRange) ([]models.MCandle, error) {
	query := d.DB.Rebind(`
		SELECT symbol, timeframe, open_time, close_time, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND market_type = ? AND open_time >= ? AND open_time < ?
		ORDER BY open_time
	`)

	rows, err := d.DB.QueryxContext(ctx, query, symbol, timeframe, marketType, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("%w: get candles: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.MCandle
	for rows.Next() {
		var c models.MCandle
		if err := rows.Scan(&c.Symbol, &c.Timeframe, &c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan candle: %v", models.ErrStorage, err)
		}
		c.MarketType = marketType
		c.Closed = true
		out = append(out, c)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLBackend) SaveCandles(ctx context.Context, candles []models.MCandle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO candles (symbol, timeframe, market_type, open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timeframe, market_type, open_time) DO UPDATE SET
			close_time = EXCLUDED.close_time,
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`)
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: prepare candles: %v", models.ErrStorage, err)
	}
	defer stmt.Close()

	for _, c := range candles {
		marketType := c.MarketType
		if marketType == "" {
			marketType = models.DefaultMarketType
		}
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.Timeframe, marketType, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("%w: insert candle: %v", models.ErrStorage, err)
		}
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------
// Aggregated Trades
// -----------------------------------------------------------------------------

func (d *SQLBackend) GetAggTrades(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MAggTrade, error) {
	query := d.DB.Rebind(`
		SELECT symbol, trade_id, price, quantity, timestamp, is_buyer_maker
		FROM agg_trades
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp, trade_id
	`)

	rows, err := d.DB.QueryxContext(ctx, query, symbol, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("%w: get agg trades: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.MAggTrade
	for rows.Next() {
		var t models.MAggTrade
		if err := rows.Scan(&t.Symbol, &t.TradeID, &t.Price, &t.Quantity, &t.Timestamp, &t.IsBuyerMaker); err != nil {
			return nil, fmt.Errorf("%w: scan agg trade: %v", models.ErrStorage, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLBackend) SaveAggTrades(ctx context.Context, trades []models.MAggTrade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO agg_trades (symbol, trade_id, price, quantity, timestamp, is_buyer_maker)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, trade_id) DO NOTHING
	`)
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: prepare agg trades: %v", models.ErrStorage, err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, t.Symbol, t.TradeID, t.Price, t.Quantity, t.Timestamp, t.IsBuyerMaker); err != nil {
			return fmt.Errorf("%w: insert agg trade: %v", models.ErrStorage, err)
		}
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLBackend) CountAggTrades(ctx context.Context, symbol string, r models.MTimeRange) (int64, error) {
	query := d.DB.Rebind(`
		SELECT COUNT(*) FROM agg_trades
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
	`)

	var count int64
	if err := d.DB.GetContext(ctx, &count, query, symbol, r.Start, r.End); err != nil {
		return 0, fmt.Errorf("%w: count agg trades: %v", models.ErrStorage, err)
	}
	return count, nil
}

// -----------------------------------------------------------------------------

// AggTradeBounds returns the first and last stored timestamp plus the row
// count inside the range, without materializing any rows.
func (d *SQLBackend) AggTradeBounds(ctx context.Context, symbol string, r models.MTimeRange) (int64, int64, int64, error) {
	query := d.DB.Rebind(`
		SELECT COALESCE(MIN(timestamp), 0), COALESCE(MAX(timestamp), 0), COUNT(*)
		FROM agg_trades
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
	`)

	var first, last, count int64
	row := d.DB.QueryRowxContext(ctx, query, symbol, r.Start, r.End)
	if err := row.Scan(&first, &last, &count); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: agg trade bounds: %v", models.ErrStorage, err)
	}
	return first, last, count, nil
}

// -----------------------------------------------------------------------------

// StreamAggTrades walks the range in chunkSize batches keyed by
// (timestamp, trade_id) so ties on timestamp are never skipped or repeated.
// The loop stops when onChunk returns false, ctx is done, or
// CancelCurrentFetch was signalled.
func (d *SQLBackend) StreamAggTrades(ctx context.Context, symbol string, r models.MTimeRange, chunkSize int, onChunk func([]models.MAggTrade) bool) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrValidation, chunkSize)
	}
	d.cancelFetch.Store(false)

	query := d.DB.Rebind(`
		SELECT symbol, trade_id, price, quantity, timestamp, is_buyer_maker
		FROM agg_trades
		WHERE symbol = ? AND timestamp < ?
		  AND (timestamp > ? OR (timestamp = ? AND trade_id > ?))
		ORDER BY timestamp, trade_id
		LIMIT ?
	`)

	cursorTs := r.Start - 1
	cursorID := int64(-1)

	for {
		if d.cancelFetch.Load() {
			return models.ErrFetchAbandoned
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: stream agg trades: %v", models.ErrStorage, err)
		}

		rows, err := d.DB.QueryxContext(ctx, query, symbol, r.End, cursorTs, cursorTs, cursorID, chunkSize)
		if err != nil {
			return fmt.Errorf("%w: stream agg trades: %v", models.ErrStorage, err)
		}

		chunk := make([]models.MAggTrade, 0, chunkSize)
		for rows.Next() {
			var t models.MAggTrade
			if err := rows.Scan(&t.Symbol, &t.TradeID, &t.Price, &t.Quantity, &t.Timestamp, &t.IsBuyerMaker); err != nil {
				rows.Close()
				return fmt.Errorf("%w: scan agg trade: %v", models.ErrStorage, err)
			}
			chunk = append(chunk, t)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("%w: stream agg trades: %v", models.ErrStorage, err)
		}
		rows.Close()

		if len(chunk) == 0 {
			return nil
		}

		last := chunk[len(chunk)-1]
		cursorTs, cursorID = last.Timestamp, last.TradeID

		if !onChunk(chunk) {
			return nil
		}
		if len(chunk) < chunkSize {
			return nil
		}
	}
}

// -----------------------------------------------------------------------------

// CancelCurrentFetch aborts the in-flight streaming read before its next
// chunk. The interrupted StreamAggTrades call returns ErrFetchAbandoned so
// its caller can tell an abort from a completed range.
func (d *SQLBackend) CancelCurrentFetch() {
	d.cancelFetch.Store(true)
}

// -----------------------------------------------------------------------------
// Funding Rates
// -----------------------------------------------------------------------------

func (d *SQLBackend) GetFundingRates(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MFundingRate, error) {
	query := d.DB.Rebind(`
		SELECT symbol, funding_time, rate, mark_price
		FROM funding_rates
		WHERE symbol = ? AND funding_time >= ? AND funding_time < ?
		ORDER BY funding_time
	`)

	var out []models.MFundingRate
	rows, err := d.DB.QueryxContext(ctx, query, symbol, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("%w: get funding rates: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.MFundingRate
		if err := rows.Scan(&f.Symbol, &f.FundingTime, &f.Rate, &f.MarkPrice); err != nil {
			return nil, fmt.Errorf("%w: scan funding rate: %v", models.ErrStorage, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLBackend) SaveFundingRates(ctx context.Context, rates []models.MFundingRate) error {
	if len(rates) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO funding_rates (symbol, funding_time, rate, mark_price)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol, funding_time) DO UPDATE SET
			rate = EXCLUDED.rate,
			mark_price = EXCLUDED.mark_price
	`)
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: prepare funding rates: %v", models.ErrStorage, err)
	}
	defer stmt.Close()

	for _, f := range rates {
		if _, err := stmt.ExecContext(ctx, f.Symbol, f.FundingTime, f.Rate, f.MarkPrice); err != nil {
			return fmt.Errorf("%w: insert funding rate: %v", models.ErrStorage, err)
		}
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------
// Open Interest
// -----------------------------------------------------------------------------

func (d *SQLBackend) GetOpenInterest(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MOpenInterest, error) {
	query := d.DB.Rebind(`
		SELECT symbol, timestamp, open_interest, notional_usd
		FROM open_interest
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp
	`)

	var out []models.MOpenInterest
	rows, err := d.DB.QueryxContext(ctx, query, symbol, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("%w: get open interest: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var o models.MOpenInterest
		if err := rows.Scan(&o.Symbol, &o.Timestamp, &o.OpenInterest, &o.NotionalUSD); err != nil {
			return nil, fmt.Errorf("%w: scan open interest: %v", models.ErrStorage, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLBackend) SaveOpenInterest(ctx context.Context, samples []models.MOpenInterest) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO open_interest (symbol, timestamp, open_interest, notional_usd)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			open_interest = EXCLUDED.open_interest,
			notional_usd = EXCLUDED.notional_usd
	`)
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: prepare open interest: %v", models.ErrStorage, err)
	}
	defer stmt.Close()

	for _, o := range samples {
		if _, err := stmt.ExecContext(ctx, o.Symbol, o.Timestamp, o.OpenInterest, o.NotionalUSD); err != nil {
			return fmt.Errorf("%w: insert open interest: %v", models.ErrStorage, err)
		}
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------
// Premium Index
// -----------------------------------------------------------------------------

func (d *SQLBackend) GetPremiumIndex(ctx context.Context, symbol string, r models.MTimeRange) ([]models.MPremiumIndex, error) {
	query := d.DB.Rebind(`
		SELECT symbol, timestamp, mark_price, index_price, premium
		FROM premium_index
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp
	`)

	var out []models.MPremiumIndex
	rows, err := d.DB.QueryxContext(ctx, query, symbol, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("%w: get premium index: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.MPremiumIndex
		if err := rows.Scan(&p.Symbol, &p.Timestamp, &p.MarkPrice, &p.IndexPrice, &p.Premium); err != nil {
			return nil, fmt.Errorf("%w: scan premium index: %v", models.ErrStorage, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLBackend) SavePremiumIndex(ctx context.Context, samples []models.MPremiumIndex) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", models.ErrStorage, err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO premium_index (symbol, timestamp, mark_price, index_price, premium)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			mark_price = EXCLUDED.mark_price,
			index_price = EXCLUDED.index_price,
			premium = EXCLUDED.premium
	`)
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: prepare premium index: %v", models.ErrStorage, err)
	}
	defer stmt.Close()

	for _, p := range samples {
		if _, err := stmt.ExecContext(ctx, p.Symbol, p.Timestamp, p.MarkPrice, p.IndexPrice, p.Premium); err != nil {
			return fmt.Errorf("%w: insert premium index: %v", models.ErrStorage, err)
		}
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------
// Metadata
// -----------------------------------------------------------------------------

func (d *SQLBackend) AvailableSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := d.DB.SelectContext(ctx, &symbols, `SELECT DISTINCT symbol FROM candles ORDER BY symbol`)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("%w: available symbols: %v", models.ErrStorage, err)
	}
	return symbols, nil
}

// -----------------------------------------------------------------------------

func (d *SQLBackend) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
