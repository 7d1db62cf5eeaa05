package instruments

import (
	"testing"

	"TradeReview/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
instruments:
  - symbol: reliance
    exchange: NSE
    name: Reliance Industries
    currency: INR
    aliases: [RIL]
  - symbol: AAPL
    exchange: NASDAQ
    name: Apple Inc.
    currency: USD
`

func TestResolve(t *testing.T) {
	s, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	for _, ref := range []string{"RELIANCE", " reliance ", "ril", "NSE:RELIANCE"} {
		inst, ok := s.Resolve(ref)
		require.True(t, ok, ref)
		assert.Equal(t, "RELIANCE", inst.Symbol)
		assert.Equal(t, "NSE", inst.Exchange)
	}

	_, ok := s.Resolve("MSFT")
	assert.False(t, ok)
}

func TestResolveReturnsCopy(t *testing.T) {
	s, err := Parse([]byte(sample))
	require.NoError(t, err)

	inst, _ := s.Resolve("AAPL")
	inst.Name = "changed"
	again, _ := s.Resolve("AAPL")
	assert.Equal(t, "Apple Inc.", again.Name)
}

func TestConflictingAlias(t *testing.T) {
	_, err := New([]models.Instrument{
		{Symbol: "A", Aliases: []string{"X"}},
		{Symbol: "B", Aliases: []string{"x"}},
	})
	require.Error(t, err)
}
