package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioS1TopOfBookBasics(t *testing.T) {
	b := New(7)
	require.NoError(t, b.HandleNewOrder(1, Buy, 100, 5, 1, false))
	require.NoError(t, b.HandleNewOrder(2, Buy, 101, 3, 2, false))
	require.NoError(t, b.HandleNewOrder(3, Sell, 105, 2, 3, false))

	bidPx, bidQty := b.BestBid()
	askPx, askQty := b.BestAsk()
	assert.Equal(t, int32(101), bidPx)
	assert.Equal(t, uint32(3), bidQty)
	assert.Equal(t, int32(105), askPx)
	assert.Equal(t, uint32(2), askQty)
}

func TestScenarioS2TradePartialThenFull(t *testing.T) {
	b := New(7)
	require.NoError(t, b.HandleNewOrder(1, Buy, 100, 5, 1, false))
	require.NoError(t, b.HandleNewOrder(2, Buy, 101, 3, 2, false))
	require.NoError(t, b.HandleNewOrder(3, Sell, 105, 2, 3, false))

	require.NoError(t, b.HandleTrade(3, 1, 4))
	_, askQty := b.BestAsk()
	assert.Equal(t, uint32(1), askQty)

	require.NoError(t, b.HandleTrade(3, 1, 5))
	askPx, askQty := b.BestAsk()
	assert.Equal(t, int32(0), askPx)
	assert.Equal(t, uint32(0), askQty)
	_, ok := b.Order(3)
	assert.False(t, ok)
}

func TestScenarioS3ModifyAcrossPrice(t *testing.T) {
	b := New(7)
	require.NoError(t, b.HandleNewOrder(1, Buy, 100, 5, 1, false))
	require.NoError(t, b.HandleNewOrder(2, Buy, 101, 3, 2, false))
	require.NoError(t, b.HandleNewOrder(3, Sell, 105, 2, 3, false))

	require.NoError(t, b.HandleModifyOrder(2, Buy, 99, 3, 4, true))
	bidPx, bidQty := b.BestBid()
	assert.Equal(t, int32(100), bidPx)
	assert.Equal(t, uint32(5), bidQty)
}

func TestDuplicateOrderIDIsFatal(t *testing.T) {
	b := New(1)
	require.NoError(t, b.HandleNewOrder(1, Buy, 10, 1, 1, false))
	err := b.HandleNewOrder(1, Buy, 10, 1, 2, false)
	require.Error(t, err)
	fe, ok := err.(*FatalError)
	require.True(t, ok)
	assert.Equal(t, FatalDuplicateOrder, fe.Kind)
}

func TestZeroQuantityNewOrderIsFatal(t *testing.T) {
	b := New(1)
	err := b.HandleNewOrder(1, Buy, 10, 0, 1, false)
	require.Error(t, err)
	fe, ok := err.(*FatalError)
	require.True(t, ok)
	assert.Equal(t, FatalZeroQuantity, fe.Kind)
}

func TestNegativePriceNewOrderIsDiscardedNotFatal(t *testing.T) {
	b := New(1)
	err := b.HandleNewOrder(1, Buy, -1, 5, 1, false)
	require.NoError(t, err)
	_, ok := b.Order(1)
	assert.False(t, ok)
}

func TestZeroPriceIsValid(t *testing.T) {
	b := New(1)
	require.NoError(t, b.HandleNewOrder(1, Buy, 0, 5, 1, false))
	px, qty := b.BestBid()
	assert.Equal(t, int32(0), px)
	assert.Equal(t, uint32(5), qty)
}

func TestModifyOfUnknownOrderIsNonFatalSkip(t *testing.T) {
	b := New(1)
	err := b.HandleModifyOrder(99, Buy, 10, 1, 1, false)
	assert.NoError(t, err)
}

func TestDeleteOfUnknownOrderIsSilentSkip(t *testing.T) {
	b := New(1)
	err := b.HandleDeleteOrder(99, 1)
	assert.NoError(t, err)
}

func TestTradeOfUnknownOrderIsSilentSkip(t *testing.T) {
	b := New(1)
	err := b.HandleTrade(99, 1, 1)
	assert.NoError(t, err)
}

func TestTradeExceedingRestingQuantityIsFatal(t *testing.T) {
	b := New(1)
	require.NoError(t, b.HandleNewOrder(1, Buy, 10, 5, 1, false))
	err := b.HandleTrade(1, 6, 2)
	require.Error(t, err)
	fe, ok := err.(*FatalError)
	require.True(t, ok)
	assert.Equal(t, FatalTradeExceedsQuantity, fe.Kind)
}

func TestCrossedBookFatalOnlyInSteadyState(t *testing.T) {
	b := New(1)
	require.NoError(t, b.HandleNewOrder(1, Buy, 110, 5, 1, false))
	// A crossed book during catch-up is tolerated silently.
	err := b.HandleNewOrder(2, Sell, 100, 5, 2, false)
	require.NoError(t, err)

	b2 := New(1)
	require.NoError(t, b2.HandleNewOrder(1, Buy, 110, 5, 1, true))
	err = b2.HandleNewOrder(2, Sell, 100, 5, 2, true)
	require.Error(t, err)
	fe, ok := err.(*FatalError)
	require.True(t, ok)
	assert.Equal(t, FatalCrossedBook, fe.Kind)
}

// Property 4: round-trip add/delete.
func TestRoundTripAddDelete(t *testing.T) {
	b := New(1)
	require.NoError(t, b.HandleNewOrder(1, Buy, 100, 5, 1, true))
	require.NoError(t, b.HandleNewOrder(2, Buy, 100, 7, 2, true))

	require.NoError(t, b.HandleNewOrder(3, Sell, 200, 9, 3, true))
	require.NoError(t, b.HandleDeleteOrder(3, 4))

	px, qty := b.BestAsk()
	assert.Equal(t, int32(0), px)
	assert.Equal(t, uint32(0), qty)
	_, ok := b.Order(3)
	assert.False(t, ok)
}

// Property 5: modify idempotence.
func TestModifyIdempotence(t *testing.T) {
	b := New(1)
	require.NoError(t, b.HandleNewOrder(1, Buy, 100, 5, 1, true))
	before, _ := b.Order(1)
	beforePx, beforeQty := b.BestBid()

	require.NoError(t, b.HandleModifyOrder(1, before.Side, before.Price, before.Quantity, 2, true))

	after, _ := b.Order(1)
	assert.Equal(t, before, after)
	afterPx, afterQty := b.BestBid()
	assert.Equal(t, beforePx, afterPx)
	assert.Equal(t, beforeQty, afterQty)
}

// Property 6: trade linearity.
func TestTradeLinearity(t *testing.T) {
	b1 := New(1)
	require.NoError(t, b1.HandleNewOrder(1, Buy, 100, 10, 1, true))
	require.NoError(t, b1.HandleTrade(1, 3, 2))
	require.NoError(t, b1.HandleTrade(1, 4, 3))

	b2 := New(1)
	require.NoError(t, b2.HandleNewOrder(1, Buy, 100, 10, 1, true))
	require.NoError(t, b2.HandleTrade(1, 7, 2))

	px1, qty1 := b1.BestBid()
	px2, qty2 := b2.BestBid()
	assert.Equal(t, px2, px1)
	assert.Equal(t, qty2, qty1)
	o1, _ := b1.Order(1)
	o2, _ := b2.Order(1)
	assert.Equal(t, o2.Quantity, o1.Quantity)
}

func TestAggregateAcrossMultipleOrdersAtSameLevel(t *testing.T) {
	b := New(1)
	require.NoError(t, b.HandleNewOrder(1, Buy, 100, 5, 1, true))
	require.NoError(t, b.HandleNewOrder(2, Buy, 100, 7, 2, true))
	_, qty := b.BestBid()
	assert.Equal(t, uint32(12), qty)

	require.NoError(t, b.HandleDeleteOrder(1, 3))
	_, qty = b.BestBid()
	assert.Equal(t, uint32(7), qty)
}

func TestResetClearsBook(t *testing.T) {
	b := New(1)
	require.NoError(t, b.HandleNewOrder(1, Buy, 100, 5, 1, true))
	require.NoError(t, b.HandleNewOrder(2, Sell, 200, 5, 2, true))

	b.Reset()

	assert.Equal(t, 0, b.NumOrders())
	px, qty := b.BestBid()
	assert.Equal(t, int32(0), px)
	assert.Equal(t, uint32(0), qty)
	px, qty = b.BestAsk()
	assert.Equal(t, int32(0), px)
	assert.Equal(t, uint32(0), qty)
	assert.Equal(t, uint32(0), b.LastSeq)
}
