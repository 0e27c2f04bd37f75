// Package sink implements the BBO sink: it consumes top-of-book
// records in the exact order the sync controller produces them and
// writes them out as CSV, batching writes for throughput. Follows
// aggregator.go's buffer-then-flush shape (a mutex-guarded slice
// drained on a trigger), adapted from a ticker-driven background
// goroutine to a purely synchronous flush-on-threshold-or-demand
// model: background threads and shared mutable state have no place on
// the engine's critical path, and a sink write is explicitly one of
// the two suspension points the event loop itself drives.
package sink

import (
	"bufio"
	"fmt"
	"io"

	"github.com/luxfi/mdfeed/internal/syncctl"
)

// DefaultBatchSize is the number of records buffered before Emit
// triggers an automatic flush.
const DefaultBatchSize = 256

// Sink implements syncctl.Sink: an in-memory batch of records flushed
// to an underlying writer either automatically once the batch fills
// or explicitly via Flush (called by the controller on the
// CATCHING_UP -> LIVE cutover and by cmd/mdfeed on shutdown).
type Sink struct {
	w          *bufio.Writer
	batchSize  int
	buf        []syncctl.BBORecord
	headerSent bool

	// forward, if set, receives every record right after it is
	// written, used to fan the same stream out to the WebSocket
	// monitor without that monitor being a second source of truth.
	forward func(syncctl.BBORecord)
}

// New wraps w (typically an *os.File) as a Sink with the default
// batch size.
func New(w io.Writer) *Sink {
	return &Sink{
		w:         bufio.NewWriter(w),
		batchSize: DefaultBatchSize,
	}
}

// SetBatchSize overrides the default batch size; mainly for tests
// that want to force a flush after a small, deterministic number of
// records.
func (s *Sink) SetBatchSize(n int) { s.batchSize = n }

// SetForward installs a callback invoked with every record as it is
// written, used by cmd/mdfeed to wire the WebSocket BBO monitor.
func (s *Sink) SetForward(f func(syncctl.BBORecord)) { s.forward = f }

// Emit appends a record to the current batch, flushing automatically
// once the batch reaches its configured size. The sink never
// reorders: records are written in exactly the order Emit receives
// them.
func (s *Sink) Emit(record syncctl.BBORecord) {
	s.buf = append(s.buf, record)
	if len(s.buf) >= s.batchSize {
		s.writeBatch()
		// A write error is sticky in bufio.Writer and is returned by
		// the next Flush call.
		s.w.Flush()
	}
}

// Flush writes any partially-filled batch immediately, called on the
// CATCHING_UP -> LIVE cutover and on process shutdown so no buffered
// record is lost.
func (s *Sink) Flush() error {
	s.writeBatch()
	return s.w.Flush()
}

func (s *Sink) writeBatch() {
	if !s.headerSent {
		fmt.Fprintln(s.w, "seq_num,symbol,bid_price,bid_qty,ask_price,ask_qty")
		s.headerSent = true
	}
	for _, r := range s.buf {
		fmt.Fprintf(s.w, "%d,%d,%d,%d,%d,%d\n", r.SeqNum, r.Symbol, r.BidPx, r.BidQty, r.AskPx, r.AskQty)
		if s.forward != nil {
			s.forward(r)
		}
	}
	s.buf = s.buf[:0]
}
