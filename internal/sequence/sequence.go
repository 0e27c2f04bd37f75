// Package sequence tracks, per symbol, the next sequence number
// expected on a NEW_ORDER message and classifies arrivals as
// catch-up-stale, applicable, or a fatal live-feed gap.
package sequence

import "fmt"

// GapError reports a fatal live-feed sequence gap: the feed skipped
// or reordered a sequence number after catch-up completed, meaning
// this process's view of the symbol's book can no longer be trusted
// without a fresh snapshot.
type GapError struct {
	Symbol   uint32
	Expected uint32
	Received uint32
}

func (e *GapError) Error() string {
	return fmt.Sprintf("symbol %d: live sequence gap, expected %d, received %d", e.Symbol, e.Expected, e.Received)
}

// Outcome is what the caller should do with the NEW_ORDER message
// that was just classified.
type Outcome int

const (
	// Apply means the message should be handed to the book and the
	// expected counter advanced.
	Apply Outcome = iota
	// Discard means the message is stale catch-up traffic: it has
	// already been superseded by a later sequence number during
	// replay and must not be applied.
	Discard
)

// Tracker holds expected_seq[symbol] for every symbol seen so far.
// It has no locking: it is only ever driven from the single-threaded
// event loop.
type Tracker struct {
	expected map[uint32]uint32
}

func New() *Tracker {
	return &Tracker{expected: make(map[uint32]uint32)}
}

// Init sets expected_seq[symbol] from a snapshot's last_md_seq_num:
// expected_seq[y] = last_md_seq_num + 1.
func (t *Tracker) Init(symbol uint32, lastSeqNum uint32) {
	t.expected[symbol] = lastSeqNum + 1
}

// Expected reports the current expected sequence number for symbol,
// and whether the symbol has been initialized at all.
func (t *Tracker) Expected(symbol uint32) (uint32, bool) {
	v, ok := t.expected[symbol]
	return v, ok
}

// Classify decides what to do with a NEW_ORDER carrying (symbol, seq)
// and, on Apply, advances expected_seq[symbol] to seq+1. caughtUp is
// the sync controller's global state: before catch-up completes, a
// forward jump is tolerated (the replay stream fills gaps out of
// order relative to live) and a seq behind expected is silently
// stale; after catch-up, any seq other than exactly expected is a
// fatal desynchronization.
//
// A symbol with no prior Init is treated as expected=seq: the first
// message for a symbol establishes its own baseline rather than being
// rejected as out of order.
func (t *Tracker) Classify(symbol uint32, seq uint32, caughtUp bool) (Outcome, error) {
	expected, known := t.expected[symbol]
	if !known {
		t.expected[symbol] = seq + 1
		return Apply, nil
	}

	if !caughtUp {
		if seq < expected {
			return Discard, nil
		}
		t.expected[symbol] = seq + 1
		return Apply, nil
	}

	if seq != expected {
		return Discard, &GapError{Symbol: symbol, Expected: expected, Received: seq}
	}
	t.expected[symbol] = seq + 1
	return Apply, nil
}
