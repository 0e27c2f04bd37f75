package book

// Side is BUY or SELL. Kept distinct from wire.Side so this package
// has no dependency on the decoder: callers translate at the edge.
type Side uint8

const (
	Buy Side = iota
	Sell
)

// Order is a single resting order. It is never exposed outside the
// owning Book by reference for mutation: callers change it only
// through the four handle_* operations and read it as a copy via
// Book.Order.
type Order struct {
	ID       uint64
	Symbol   uint32
	Side     Side
	Price    int32
	Quantity uint32
}

// Logger is the subset of github.com/luxfi/log.Logger this package
// needs. Declared locally so book stays importable without pulling in
// a concrete logging implementation; any *log.Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...interface{}) {}
