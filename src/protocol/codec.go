package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"market-data-service/src/models"
)

// -----------------------------------------------------------------------------
// Compact Payload Codecs
//
// Fixed-width big-endian rows, one encoder per bufferable data type. Fixed
// widths keep decoding allocation-free on the consumer side and make the
// record count verifiable from the byte length alone.
// -----------------------------------------------------------------------------

const (
	candleRowBytes  = 56 // openTime, closeTime int64 + OHLC, volume float64
	fundingRowBytes = 24 // fundingTime int64 + rate, markPrice float64
	oiRowBytes      = 24 // timestamp int64 + openInterest, notional float64
	premiumRowBytes = 32 // timestamp int64 + mark, index, premium float64
)

// -----------------------------------------------------------------------------

func putInt64(buf []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(v))
}

func putFloat64(buf []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
}

func readInt64(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}

func readFloat64(buf []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}

// -----------------------------------------------------------------------------
// Candles
// -----------------------------------------------------------------------------

// EncodeCandles renders bars as fixed-width rows.
func EncodeCandles(bars []models.MCandle) []byte {
	buf := make([]byte, 0, len(bars)*candleRowBytes)
	for _, b := range bars {
		buf = putInt64(buf, b.OpenTime)
		buf = putInt64(buf, b.CloseTime)
		buf = putFloat64(buf, b.Open)
		buf = putFloat64(buf, b.High)
		buf = putFloat64(buf, b.Low)
		buf = putFloat64(buf, b.Close)
		buf = putFloat64(buf, b.Volume)
	}
	return buf
}

// DecodeCandles parses fixed-width candle rows.
func DecodeCandles(payload []byte) ([]models.MCandle, error) {
	if len(payload)%candleRowBytes != 0 {
		return nil, fmt.Errorf("%w: candle payload length %d not a row multiple", models.ErrProtocol, len(payload))
	}
	bars := make([]models.MCandle, 0, len(payload)/candleRowBytes)
	for off := 0; off < len(payload); off += candleRowBytes {
		row := payload[off:]
		bars = append(bars, models.MCandle{
			OpenTime:  readInt64(row),
			CloseTime: readInt64(row[8:]),
			Open:      readFloat64(row[16:]),
			High:      readFloat64(row[24:]),
			Low:       readFloat64(row[32:]),
			Close:     readFloat64(row[40:]),
			Volume:    readFloat64(row[48:]),
			Closed:    true,
		})
	}
	return bars, nil
}

// -----------------------------------------------------------------------------
// Funding Rates
// -----------------------------------------------------------------------------

// EncodeFundingRates renders settlements as fixed-width rows.
func EncodeFundingRates(rows []models.MFundingRate) []byte {
	buf := make([]byte, 0, len(rows)*fundingRowBytes)
	for _, r := range rows {
		buf = putInt64(buf, r.FundingTime)
		buf = putFloat64(buf, r.Rate)
		buf = putFloat64(buf, r.MarkPrice)
	}
	return buf
}

// DecodeFundingRates parses fixed-width funding rows.
func DecodeFundingRates(payload []byte) ([]models.MFundingRate, error) {
	if len(payload)%fundingRowBytes != 0 {
		return nil, fmt.Errorf("%w: funding payload length %d not a row multiple", models.ErrProtocol, len(payload))
	}
	rows := make([]models.MFundingRate, 0, len(payload)/fundingRowBytes)
	for off := 0; off < len(payload); off += fundingRowBytes {
		row := payload[off:]
		rows = append(rows, models.MFundingRate{
			FundingTime: readInt64(row),
			Rate:        readFloat64(row[8:]),
			MarkPrice:   readFloat64(row[16:]),
		})
	}
	return rows, nil
}

// -----------------------------------------------------------------------------
// Open Interest
// -----------------------------------------------------------------------------

// EncodeOpenInterest renders samples as fixed-width rows.
func EncodeOpenInterest(rows []models.MOpenInterest) []byte {
	buf := make([]byte, 0, len(rows)*oiRowBytes)
	for _, r := range rows {
		buf = putInt64(buf, r.Timestamp)
		buf = putFloat64(buf, r.OpenInterest)
		buf = putFloat64(buf, r.NotionalUSD)
	}
	return buf
}

// DecodeOpenInterest parses fixed-width open-interest rows.
func DecodeOpenInterest(payload []byte) ([]models.MOpenInterest, error) {
	if len(payload)%oiRowBytes != 0 {
		return nil, fmt.Errorf("%w: open-interest payload length %d not a row multiple", models.ErrProtocol, len(payload))
	}
	rows := make([]models.MOpenInterest, 0, len(payload)/oiRowBytes)
	for off := 0; off < len(payload); off += oiRowBytes {
		row := payload[off:]
		rows = append(rows, models.MOpenInterest{
			Timestamp:    readInt64(row),
			OpenInterest: readFloat64(row[8:]),
			NotionalUSD:  readFloat64(row[16:]),
		})
	}
	return rows, nil
}

// -----------------------------------------------------------------------------
// Premium Index
// -----------------------------------------------------------------------------

// EncodePremiumIndex renders samples as fixed-width rows.
func EncodePremiumIndex(rows []models.MPremiumIndex) []byte {
	buf := make([]byte, 0, len(rows)*premiumRowBytes)
	for _, r := range rows {
		buf = putInt64(buf, r.Timestamp)
		buf = putFloat64(buf, r.MarkPrice)
		buf = putFloat64(buf, r.IndexPrice)
		buf = putFloat64(buf, r.Premium)
	}
	return buf
}

// DecodePremiumIndex parses fixed-width premium-index rows.
func DecodePremiumIndex(payload []byte) ([]models.MPremiumIndex, error) {
	if len(payload)%premiumRowBytes != 0 {
		return nil, fmt.Errorf("%w: premium payload length %d not a row multiple", models.ErrProtocol, len(payload))
	}
	rows := make([]models.MPremiumIndex, 0, len(payload)/premiumRowBytes)
	for off := 0; off < len(payload); off += premiumRowBytes {
		row := payload[off:]
		rows = append(rows, models.MPremiumIndex{
			Timestamp:  readInt64(row),
			MarkPrice:  readFloat64(row[8:]),
			IndexPrice: readFloat64(row[16:]),
			Premium:    readFloat64(row[24:]),
		})
	}
	return rows, nil
}
