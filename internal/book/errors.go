package book

import "fmt"

// FatalKind distinguishes the invariant violations that mean this
// process's view of the book can no longer be trusted. A FatalError is
// never swallowed: the caller must stop applying messages and terminate.
type FatalKind int

const (
	FatalDuplicateOrder FatalKind = iota
	FatalZeroQuantity
	FatalUnderflow
	FatalTradeExceedsQuantity
	FatalCrossedBook
	FatalLiveSequenceGap
	FatalBufferOverflow
)

func (k FatalKind) String() string {
	switch k {
	case FatalDuplicateOrder:
		return "duplicate_order"
	case FatalZeroQuantity:
		return "zero_quantity"
	case FatalUnderflow:
		return "level_underflow"
	case FatalTradeExceedsQuantity:
		return "trade_exceeds_quantity"
	case FatalCrossedBook:
		return "crossed_book"
	case FatalLiveSequenceGap:
		return "live_sequence_gap"
	case FatalBufferOverflow:
		return "live_buffer_overflow"
	default:
		return "unknown"
	}
}

// FatalError is the dedicated fatal-error type the design notes call
// for: invariant violations surface as a typed error instead of a log
// line buried among benign paths, leaving the top-level loop to decide
// to terminate.
type FatalError struct {
	Kind   FatalKind
	Symbol uint32
	Detail string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal[%s] symbol=%d: %s", e.Kind, e.Symbol, e.Detail)
}

func fatalf(kind FatalKind, symbol uint32, format string, args ...interface{}) *FatalError {
	return &FatalError{Kind: kind, Symbol: symbol, Detail: fmt.Sprintf(format, args...)}
}
