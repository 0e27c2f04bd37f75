package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/mdfeed/internal/book"
)

func TestBookForCreatesLazily(t *testing.T) {
	r := New()
	b1 := r.BookFor(7)
	b2 := r.BookFor(7)
	assert.Same(t, b1, b2)
}

func TestTrackAndRoute(t *testing.T) {
	r := New()
	b := r.BookFor(7)
	require.NoError(t, b.HandleNewOrder(1, book.Buy, 100, 5, 1, true))
	r.Track(1, 7)

	got, ok := r.Route(1)
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestRouteUnknownOrderIsMiss(t *testing.T) {
	r := New()
	_, ok := r.Route(999)
	assert.False(t, ok)
}

func TestUntrackRemovesRoute(t *testing.T) {
	r := New()
	r.BookFor(7)
	r.Track(1, 7)
	r.Untrack(1)

	_, ok := r.Route(1)
	assert.False(t, ok)
}

// Scenario S6: snapshot reset drops stale order_index entries for the
// symbol being reset.
func TestResetBookDropsStaleOrderIndexEntries(t *testing.T) {
	r := New()
	b := r.BookFor(7)
	require.NoError(t, b.HandleNewOrder(1, book.Buy, 100, 5, 1, true))
	require.NoError(t, b.HandleNewOrder(2, book.Buy, 99, 4, 2, true))
	require.NoError(t, b.HandleNewOrder(3, book.Sell, 105, 2, 3, true))
	r.Track(1, 7)
	r.Track(2, 7)
	r.Track(3, 7)

	reset := r.ResetBook(7)
	assert.Same(t, b, reset, "the same Book is cleared in place, not replaced")
	assert.Equal(t, 0, reset.NumOrders())

	for _, id := range []uint64{1, 2, 3} {
		_, ok := r.Route(id)
		assert.False(t, ok, "order %d must no longer route anywhere after reset", id)
	}
}

func TestResetBookEagerlyCreatesForUnseenSymbol(t *testing.T) {
	r := New()
	b := r.ResetBook(42)
	require.NotNil(t, b)
	assert.Equal(t, uint32(42), b.Symbol)
}

func TestSymbolsListsRegisteredBooks(t *testing.T) {
	r := New()
	r.BookFor(1)
	r.BookFor(2)
	assert.ElementsMatch(t, []uint32{1, 2}, r.Symbols())
}
