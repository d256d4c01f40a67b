package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/domain"
)

func mustExpiry(t *testing.T, s string) time.Time {
	t.Helper()
	exp, err := ParseExpiry(s)
	require.NoError(t, err)
	return exp
}

func TestOCCSymbol_KnownValue(t *testing.T) {
	sym, err := OCCSymbol("SPY", mustExpiry(t, "2024-12-09"), domain.DirectionCall, 605)
	require.NoError(t, err)
	assert.Equal(t, "SPY   241209C00605000", sym)
}

func TestOCCSymbol_PutRight(t *testing.T) {
	sym, err := OCCSymbol("SPY", mustExpiry(t, "2024-12-09"), domain.DirectionPut, 600.5)
	require.NoError(t, err)
	assert.Equal(t, "SPY   241209P00600500", sym)
}

func TestOCCSymbol_InjectiveOverDistinctInputs(t *testing.T) {
	base, err := OCCSymbol("SPY", mustExpiry(t, "2024-12-09"), domain.DirectionCall, 605)
	require.NoError(t, err)

	variants := []string{}
	diffTicker, _ := OCCSymbol("QQQ", mustExpiry(t, "2024-12-09"), domain.DirectionCall, 605)
	diffExpiry, _ := OCCSymbol("SPY", mustExpiry(t, "2024-12-10"), domain.DirectionCall, 605)
	diffRight, _ := OCCSymbol("SPY", mustExpiry(t, "2024-12-09"), domain.DirectionPut, 605)
	diffStrike, _ := OCCSymbol("SPY", mustExpiry(t, "2024-12-09"), domain.DirectionCall, 606)
	variants = append(variants, diffTicker, diffExpiry, diffRight, diffStrike)

	for _, v := range variants {
		assert.NotEqual(t, base, v)
	}
}

func TestOCCSymbol_Deterministic(t *testing.T) {
	a, err := OCCSymbol("SPY", mustExpiry(t, "2024-12-09"), domain.DirectionCall, 605)
	require.NoError(t, err)
	b, err := OCCSymbol("SPY", mustExpiry(t, "2024-12-09"), domain.DirectionCall, 605)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOCCSymbol_RejectsEmptyTicker(t *testing.T) {
	_, err := OCCSymbol("", mustExpiry(t, "2024-12-09"), domain.DirectionCall, 605)
	assert.Error(t, err)
}

func TestOCCSymbol_RejectsBadRight(t *testing.T) {
	_, err := OCCSymbol("SPY", mustExpiry(t, "2024-12-09"), domain.DirectionBuy, 605)
	assert.Error(t, err)
}

func TestOCCSymbol_RejectsNonPositiveStrike(t *testing.T) {
	_, err := OCCSymbol("SPY", mustExpiry(t, "2024-12-09"), domain.DirectionCall, 0)
	assert.Error(t, err)
}
