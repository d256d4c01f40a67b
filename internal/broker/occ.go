package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/zerodte/execd/internal/domain"
)

// OCCSymbol builds the OCC-style option symbol: ticker padded to 6 chars,
// expiry as YYMMDD, C or P, and strike*1000 as an 8-digit zero-padded
// integer. This is a pure function of its inputs: the same (ticker, expiry,
// right, strike) always yields the same symbol, and distinct inputs never
// collide (the expiry and strike components are positionally disjoint).
func OCCSymbol(ticker string, expiry time.Time, right domain.Direction, strike float64) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return "", fmt.Errorf("broker: occ symbol: empty ticker")
	}
	if len(ticker) > 6 {
		return "", fmt.Errorf("broker: occ symbol: ticker %q longer than 6 chars", ticker)
	}

	var rightCode string
	switch right {
	case domain.DirectionCall:
		rightCode = "C"
	case domain.DirectionPut:
		rightCode = "P"
	default:
		return "", fmt.Errorf("broker: occ symbol: right must be CALL or PUT, got %q", right)
	}

	if strike <= 0 {
		return "", fmt.Errorf("broker: occ symbol: strike must be positive, got %v", strike)
	}

	strikeThousandths := int64(strike*1000 + 0.5)

	return fmt.Sprintf("%-6s%s%s%08d", ticker, expiry.Format("060102"), rightCode, strikeThousandths), nil
}

// ParseExpiry parses the spec's YYYY-MM-DD expiry string into a time.Time
// at midnight UTC, the form OCCSymbol expects.
func ParseExpiry(expiry string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return time.Time{}, fmt.Errorf("broker: parse expiry %q: %w", expiry, err)
	}
	return t, nil
}
