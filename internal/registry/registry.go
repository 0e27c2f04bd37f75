// Package registry owns the mapping from symbol to its book and from
// order_id to the symbol that order belongs to, keeping the two in
// sync behind a single type rather than as two containers a caller
// must remember to update together.
package registry

import "github.com/luxfi/mdfeed/internal/book"

// Registry is driven entirely from the single-threaded event loop in
// cmd/mdfeed; it carries no internal locking, the same way
// internal/book and internal/sequence do not.
type Registry struct {
	books      map[uint32]*book.Book
	orderIndex map[uint64]uint32
	log        Logger
}

// Logger is the subset of github.com/luxfi/log.Logger used here.
type Logger interface {
	Warn(msg string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...interface{}) {}

func New() *Registry {
	return &Registry{
		books:      make(map[uint32]*book.Book),
		orderIndex: make(map[uint64]uint32),
		log:        noopLogger{},
	}
}

// SetLogger installs a logger used for Route's warning about an
// order_index entry whose symbol has no book, and handed to every book
// created afterwards; defaults to a no-op. Unknown order ids are not
// logged.
func (r *Registry) SetLogger(l Logger) { r.log = l }

// BookFor returns the book for symbol, creating an empty one lazily
// if this is the first time the symbol has been seen (the NEW_ORDER
// path of the book lifecycle).
func (r *Registry) BookFor(symbol uint32) *book.Book {
	b, ok := r.books[symbol]
	if !ok {
		b = book.New(symbol)
		b.Log = r.log
		r.books[symbol] = b
	}
	return b
}

// ResetBook clears (or eagerly creates) the book for symbol, used on
// every snapshot for that symbol. Any order_index entries that
// pointed at the old book's orders are dropped: they no longer route
// anywhere once the book beneath them is gone.
func (r *Registry) ResetBook(symbol uint32) *book.Book {
	if old, ok := r.books[symbol]; ok {
		for id, sym := range r.orderIndex {
			if sym == symbol {
				delete(r.orderIndex, id)
			}
		}
		old.Reset()
		return old
	}
	b := book.New(symbol)
	b.Log = r.log
	r.books[symbol] = b
	return b
}

// Track registers order_id as resting in symbol's book. Called
// whenever the book creates a resting order (NEW_ORDER, and the
// snapshot bootstrap path, which reuses the same NEW_ORDER handling).
func (r *Registry) Track(orderID uint64, symbol uint32) {
	r.orderIndex[orderID] = symbol
}

// Untrack drops order_id's routing entry, called whenever the book
// destroys a resting order (DELETE_ORDER, or a TRADE that drains an
// order to zero).
func (r *Registry) Untrack(orderID uint64) {
	delete(r.orderIndex, orderID)
}

// Route resolves which book an order_id belongs to. A message whose
// order_id is unknown is silently ignored by the caller — this is a
// route-miss, not a protocol warning.
func (r *Registry) Route(orderID uint64) (*book.Book, bool) {
	symbol, ok := r.orderIndex[orderID]
	if !ok {
		return nil, false
	}
	b, ok := r.books[symbol]
	if !ok {
		r.log.Warn("order_index points to a symbol with no book", "order_id", orderID, "symbol", symbol)
		return nil, false
	}
	return b, true
}

// Symbols returns every symbol with a registered book, for metrics
// and diagnostics.
func (r *Registry) Symbols() []uint32 {
	out := make([]uint32, 0, len(r.books))
	for s := range r.books {
		out = append(out, s)
	}
	return out
}
