// Package book implements a single instrument's order book: the
// resting-order map, the two ordered price-level maps, and the
// four-operation state machine (new, modify, delete, trade) that
// keeps them consistent.
package book

// Book holds one symbol's resting orders and aggregated price
// levels. It has no knowledge of sequencing or synchronization state;
// whether a crossed book is tolerated or fatal is passed in per call
// by the caller (the sync controller), which is the component that
// actually knows whether the book is in steady state.
type Book struct {
	Symbol  uint32
	LastSeq uint32
	orders  map[uint64]*Order
	bids    *levels // descending: highest bid first
	asks    *levels // ascending: lowest ask first
	Log     Logger
}

// New creates an empty book for symbol.
func New(symbol uint32) *Book {
	return &Book{
		Symbol: symbol,
		orders: make(map[uint64]*Order),
		bids:   newLevels(true),
		asks:   newLevels(false),
		Log:    noopLogger{},
	}
}

func (b *Book) sideLevels(s Side) *levels {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// NumOrders reports the number of resting orders, mainly for tests
// and for the snapshot-reset path in the registry.
func (b *Book) NumOrders() int { return len(b.orders) }

// Order returns the resting order for id, if any.
func (b *Book) Order(id uint64) (Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// BestBid returns the highest bid price and its aggregate quantity,
// or (0, 0) if the bid side is empty.
func (b *Book) BestBid() (price int32, qty uint32) {
	p, q, ok := b.bids.best()
	if !ok {
		return 0, 0
	}
	return p, q
}

// BestAsk returns the lowest ask price and its aggregate quantity, or
// (0, 0) if the ask side is empty.
func (b *Book) BestAsk() (price int32, qty uint32) {
	p, q, ok := b.asks.best()
	if !ok {
		return 0, 0
	}
	return p, q
}

func (b *Book) crossed() bool {
	bidPx, bidQty := b.BestBid()
	askPx, askQty := b.BestAsk()
	if bidQty == 0 || askQty == 0 {
		return false
	}
	return bidPx >= askPx
}

// checkCrossed enforces invariant 5: fatal only when steady reports
// the book has left catch-up and is operating live-only.
func (b *Book) checkCrossed(steady bool) error {
	if steady && b.crossed() {
		bidPx, _ := b.BestBid()
		askPx, _ := b.BestAsk()
		return fatalf(FatalCrossedBook, b.Symbol, "best_bid=%d >= best_ask=%d", bidPx, askPx)
	}
	return nil
}

// HandleNewOrder inserts a new resting order and adds its quantity to
// its price level. Duplicate order_id and zero quantity are fatal
// protocol violations; a negative price is a malformed order and is
// logged and skipped rather than applied.
func (b *Book) HandleNewOrder(id uint64, side Side, price int32, qty uint32, seq uint32, steady bool) error {
	if qty == 0 {
		return fatalf(FatalZeroQuantity, b.Symbol, "new_order id=%d has zero quantity", id)
	}
	if _, exists := b.orders[id]; exists {
		return fatalf(FatalDuplicateOrder, b.Symbol, "new_order id=%d already resting", id)
	}
	if price < 0 {
		b.Log.Warn("new_order with negative price discarded", "order_id", id, "price", price)
		b.LastSeq = seq
		return nil
	}

	b.orders[id] = &Order{ID: id, Symbol: b.Symbol, Side: side, Price: price, Quantity: qty}
	b.sideLevels(side).add(price, qty)
	b.LastSeq = seq
	return b.checkCrossed(steady)
}

// HandleModifyOrder replaces an existing order's side, price, and
// quantity wholesale. A missing order is a non-fatal warning. A
// modify to zero quantity is treated the same as NEW_ORDER's zero
// quantity: a protocol violation, since it would otherwise leave a
// zero-quantity order in the resting set (invariant 2).
func (b *Book) HandleModifyOrder(id uint64, newSide Side, newPrice int32, newQty uint32, seq uint32, steady bool) error {
	old, exists := b.orders[id]
	if !exists {
		b.Log.Warn("modify of unknown order", "order_id", id)
		b.LastSeq = seq
		return nil
	}
	if newQty == 0 {
		return fatalf(FatalZeroQuantity, b.Symbol, "modify_order id=%d replaces with zero quantity", id)
	}

	if err := b.sideLevels(old.Side).subtract(old.Price, old.Quantity); err != nil {
		return b.withSymbol(err)
	}

	if newPrice < 0 {
		delete(b.orders, id)
		b.Log.Warn("modify_order with negative price discarded old order", "order_id", id, "price", newPrice)
		b.LastSeq = seq
		return nil
	}

	old.Side = newSide
	old.Price = newPrice
	old.Quantity = newQty
	b.sideLevels(newSide).add(newPrice, newQty)
	b.LastSeq = seq
	return b.checkCrossed(steady)
}

// HandleDeleteOrder removes an order entirely. A missing order is a
// silent skip: it may already have been fully traded away.
func (b *Book) HandleDeleteOrder(id uint64, seq uint32) error {
	old, exists := b.orders[id]
	if !exists {
		b.LastSeq = seq
		return nil
	}
	if err := b.sideLevels(old.Side).subtract(old.Price, old.Quantity); err != nil {
		return b.withSymbol(err)
	}
	delete(b.orders, id)
	b.LastSeq = seq
	return nil
}

// HandleTrade reduces an order's resting quantity by tradeQty,
// destroying the order if that drains it to zero. A missing order is
// a silent skip; trade quantity exceeding the order's resting
// quantity is fatal.
func (b *Book) HandleTrade(id uint64, tradeQty uint32, seq uint32) error {
	old, exists := b.orders[id]
	if !exists {
		b.LastSeq = seq
		return nil
	}
	if tradeQty > old.Quantity {
		return fatalf(FatalTradeExceedsQuantity, b.Symbol, "trade id=%d qty=%d exceeds resting %d", id, tradeQty, old.Quantity)
	}
	if err := b.sideLevels(old.Side).subtract(old.Price, tradeQty); err != nil {
		return b.withSymbol(err)
	}
	old.Quantity -= tradeQty
	if old.Quantity == 0 {
		delete(b.orders, id)
	}
	b.LastSeq = seq
	return nil
}

func (b *Book) withSymbol(err error) error {
	if fe, ok := err.(*FatalError); ok {
		fe.Symbol = b.Symbol
	}
	return err
}

// Reset clears the book in place, used when a new snapshot arrives
// for a symbol that already has a book: it is reset — cleared and
// recreated — on any subsequent snapshot for the same symbol.
func (b *Book) Reset() {
	b.orders = make(map[uint64]*Order)
	b.bids = newLevels(true)
	b.asks = newLevels(false)
	b.LastSeq = 0
}
