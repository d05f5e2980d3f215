package quant

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// PriceMicros represents a price multiplied by 1,000,000 (10^6).
// E.g., 0.000018 USDT = 18 PriceMicros.
type PriceMicros int64

// QtySats represents a quantity multiplied by 100,000,000 (10^8).
// E.g., 1.0 BONK = 100,000,000 QtySats.
type QtySats int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

const (
	PriceScale = 1_000_000
	QtyScale   = 100_000_000

	priceDecimals = 6
	qtyDecimals   = 8
)

// PriceFromString parses a numeric string into PriceMicros.
// No float64 on the hotpath; extra fractional digits are truncated.
func PriceFromString(s string) (PriceMicros, error) {
	v, err := parseFixedPoint(s, priceDecimals)
	return PriceMicros(v), err
}

// QtyFromString parses a numeric string into QtySats.
func QtyFromString(s string) (QtySats, error) {
	v, err := parseFixedPoint(s, qtyDecimals)
	return QtySats(v), err
}

// PriceFromDecimal converts an exact decimal into PriceMicros, truncating
// below micro resolution. Rounding direction is the caller's concern.
func PriceFromDecimal(d decimal.Decimal) PriceMicros {
	return PriceMicros(d.Shift(priceDecimals).IntPart())
}

// QtyFromDecimal converts an exact decimal into QtySats, truncating below
// satoshi resolution.
func QtyFromDecimal(d decimal.Decimal) QtySats {
	return QtySats(d.Shift(qtyDecimals).IntPart())
}

// Decimal returns the exact decimal value of the price.
func (p PriceMicros) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -priceDecimals)
}

// Decimal returns the exact decimal value of the quantity.
func (q QtySats) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -qtyDecimals)
}

func (p PriceMicros) String() string {
	return fmt.Sprintf("%.6f", float64(p)/PriceScale)
}

func (q QtySats) String() string {
	return fmt.Sprintf("%.8f", float64(q)/QtyScale)
}

// NextSeq generates the next sequence number atomically.
func NextSeq(ptr *uint64) uint64 {
	return atomic.AddUint64(ptr, 1)
}

// ParseTimeStamp converts a millisecond string to TimeStamp (micros).
func ParseTimeStamp(s string) (TimeStamp, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TimeStamp(ms * 1000), nil
}

// parseFixedPoint parses a decimal string into an int64 scaled by 10^decimals.
// Example: parseFixedPoint("1.23", 6) -> 1,230,000.
func parseFixedPoint(s string, decimals int) (int64, error) {
	if s == "" || s == "null" {
		return 0, nil
	}

	intStr, fracStr := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intStr, fracStr = s[:dot], s[dot+1:]
	}

	neg := strings.HasPrefix(intStr, "-")
	if neg {
		intStr = intStr[1:]
	}

	var intPart int64
	if intStr != "" {
		var err error
		intPart, err = strconv.ParseInt(intStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer part %q: %w", s, err)
		}
	}
	for i := 0; i < decimals; i++ {
		intPart *= 10
	}

	if len(fracStr) > decimals {
		fracStr = fracStr[:decimals]
	}
	var fracPart int64
	if fracStr != "" {
		var err error
		fracPart, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fraction part %q: %w", s, err)
		}
		for i := len(fracStr); i < decimals; i++ {
			fracPart *= 10
		}
	}

	if neg {
		return -(intPart + fracPart), nil
	}
	return intPart + fracPart, nil
}
