// Package syncctl implements the three-state synchronization
// controller: INIT, CATCHING_UP, and LIVE. It owns the book registry,
// the per-symbol sequence tracker, the live-datagram buffer, and the
// BBO sink, and is the one place the "caught up" / "received
// snapshot" flags live, rather than spread as ambient booleans across
// the components it drives.
package syncctl

import (
	"time"

	"github.com/luxfi/mdfeed/internal/book"
	"github.com/luxfi/mdfeed/internal/registry"
	"github.com/luxfi/mdfeed/internal/sequence"
	"github.com/luxfi/mdfeed/internal/wire"
)

// State is the controller's position in the INIT -> CATCHING_UP ->
// LIVE state machine.
type State int

const (
	StateInit State = iota
	StateCatchingUp
	StateLive
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateCatchingUp:
		return "CATCHING_UP"
	case StateLive:
		return "LIVE"
	default:
		return "UNKNOWN"
	}
}

// QuietTicksThreshold is the number of consecutive idle polls (at the
// poll interval CatchUpPollInterval) that mark replay traffic as
// finished. A heuristic: a production design would negotiate
// end-of-replay explicitly instead of inferring it from silence.
const QuietTicksThreshold = 100

// CatchUpPollInterval is the poll timeout used in INIT/CATCHING_UP to
// drive the quiet-tick heuristic.
const CatchUpPollInterval = 10 * time.Millisecond

// MaxLiveBuffer bounds the number of datagrams buffered from the live
// channel during INIT/CATCHING_UP. Exceeding it is fatal: correctness
// cannot be guaranteed past that point.
const MaxLiveBuffer = 100_000

// Sink is the subset of internal/sink.Sink the controller needs: one
// BBO record per successful mutating operation, plus an explicit
// flush on the CATCHING_UP -> LIVE cutover.
type Sink interface {
	Emit(record BBORecord)
	Flush() error
}

// BBORecord is one top-of-book snapshot emitted after a
// book-modifying operation.
type BBORecord struct {
	SeqNum uint32
	Symbol uint32
	BidPx  int32
	BidQty uint32
	AskPx  int32
	AskQty uint32
}

// Logger is the subset of github.com/luxfi/log.Logger used here.
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Debug(string, ...interface{}) {}

// Metrics is the subset of internal/metrics.Registry this package
// reports to. New installs a no-op implementation, so a Controller
// with no metrics installed simply skips reporting; the field itself
// must not be nil.
type Metrics interface {
	ObserveState(state string)
	IncDecoded(kind string)
	IncDiscarded(reason string)
	IncFatal(kind string)
	SetLiveBufferDepth(n int)
}

// Controller drives the whole engine. It is not safe for concurrent
// use: it is called exclusively from the single cooperative event
// loop in cmd/mdfeed.
type Controller struct {
	state            State
	receivedSnapshot bool
	quietTicks       int

	registry *registry.Registry
	tracker  *sequence.Tracker
	sink     Sink
	log      Logger
	metrics  Metrics

	liveBuffer [][]byte
}

// New creates a Controller in the INIT state.
func New(sink Sink) *Controller {
	return &Controller{
		state:    StateInit,
		registry: registry.New(),
		tracker:  sequence.New(),
		sink:     sink,
		log:      noopLogger{},
		metrics:  noopMetrics{},
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveState(string)    {}
func (noopMetrics) IncDecoded(string)      {}
func (noopMetrics) IncDiscarded(string)    {}
func (noopMetrics) IncFatal(string)        {}
func (noopMetrics) SetLiveBufferDepth(int) {}

// SetLogger installs a logger; defaults to a no-op. It also reaches
// the registry and, transitively, every book it creates from then on,
// so a dangling order_index entry or a discarded malformed order logs
// through the same sink as the controller's own state-transition
// messages. Route-misses on unknown order ids are counted in metrics,
// not logged.
func (c *Controller) SetLogger(l Logger) {
	c.log = l
	c.registry.SetLogger(l)
}

// SetMetrics installs a metrics sink; defaults to a no-op.
func (c *Controller) SetMetrics(m Metrics) { c.metrics = m }

// State reports the controller's current position in the state
// machine, mainly for diagnostics and tests.
func (c *Controller) State() State { return c.state }

// PollTimeout returns the readiness-wait timeout appropriate to the
// current state: short and fixed during INIT/CATCHING_UP to drive the
// quiet-tick heuristic, zero (meaning "block indefinitely" to the
// caller) once LIVE.
func (c *Controller) PollTimeout() time.Duration {
	if c.state == StateLive {
		return 0
	}
	return CatchUpPollInterval
}

// NotifyIdlePoll is called once per wakeup in which neither channel
// produced a datagram within PollTimeout. It advances the quiet-tick
// counter and, once the threshold is reached with a snapshot already
// received, performs the CATCHING_UP -> LIVE cutover.
func (c *Controller) NotifyIdlePoll() error {
	if c.state != StateCatchingUp {
		return nil
	}
	c.quietTicks++
	if c.quietTicks < QuietTicksThreshold || !c.receivedSnapshot {
		return nil
	}
	return c.cutoverToLive()
}

func (c *Controller) markActive() {
	c.quietTicks = 0
}

// IngestReplay processes one datagram from the replay channel. A
// snapshot is always processed, regardless of state: receiving a
// snapshot for symbol y at any time resets that symbol's book. An
// ordinary replay message is processed only while not yet LIVE; once
// LIVE the replay channel is ignored.
func (c *Controller) IngestReplay(raw []byte) error {
	c.markActive()
	msg, ok := wire.Decode(raw)
	if !ok {
		c.metrics.IncDiscarded("decode_benign")
		return nil
	}
	if msg.Kind == wire.KindSnapshot {
		return c.applySnapshot(msg.Snapshot)
	}
	if c.state == StateLive {
		c.metrics.IncDiscarded("replay_ignored_live")
		return nil
	}
	return c.applyMessage(msg, false)
}

// IngestLive processes one datagram from the live channel. Before
// LIVE it is buffered verbatim for later draining; once LIVE it is
// applied directly under strict sequencing.
func (c *Controller) IngestLive(raw []byte) error {
	c.markActive()
	if c.state != StateLive {
		if len(c.liveBuffer) >= MaxLiveBuffer {
			c.metrics.IncFatal("live_buffer_overflow")
			return &book.FatalError{Kind: book.FatalBufferOverflow, Detail: "live buffer exceeded capacity during catch-up"}
		}
		cp := append([]byte(nil), raw...)
		c.liveBuffer = append(c.liveBuffer, cp)
		c.metrics.SetLiveBufferDepth(len(c.liveBuffer))
		return nil
	}

	msg, ok := wire.Decode(raw)
	if !ok {
		c.metrics.IncDiscarded("decode_benign")
		return nil
	}
	if msg.Kind == wire.KindSnapshot {
		return c.applySnapshot(msg.Snapshot)
	}
	return c.applyMessage(msg, true)
}

// cutoverToLive drains the live buffer in arrival order applying the
// catch-up stale-seq filter, flushes the sink, and transitions to
// LIVE.
func (c *Controller) cutoverToLive() error {
	buffered := c.liveBuffer
	c.liveBuffer = nil

	for _, raw := range buffered {
		msg, ok := wire.Decode(raw)
		if !ok {
			c.metrics.IncDiscarded("decode_benign")
			continue
		}
		if msg.Kind == wire.KindSnapshot {
			if err := c.applySnapshot(msg.Snapshot); err != nil {
				return err
			}
			continue
		}
		if err := c.applyMessage(msg, false); err != nil {
			return err
		}
	}

	if err := c.sink.Flush(); err != nil {
		return err
	}

	c.state = StateLive
	c.metrics.ObserveState(c.state.String())
	c.log.Info("sync controller cut over to live", "buffered", len(buffered))
	return nil
}

func (c *Controller) applySnapshot(snap *wire.Snapshot) error {
	for _, group := range snap.Groups {
		bk := c.registry.ResetBook(group.Symbol)
		c.tracker.Init(group.Symbol, group.LastSeqNum)
		bk.LastSeq = group.LastSeqNum

		for _, no := range group.Orders {
			side := bookSide(no.Side)
			if err := bk.HandleNewOrder(no.OrderID, side, no.Price, no.Quantity, group.LastSeqNum, false); err != nil {
				c.metrics.IncFatal("snapshot_invariant")
				return err
			}
			if _, rests := bk.Order(no.OrderID); rests {
				c.registry.Track(no.OrderID, group.Symbol)
			}
		}
		c.log.Info("applied snapshot", "symbol", group.Symbol, "last_seq", group.LastSeqNum, "orders", len(group.Orders))
	}

	c.receivedSnapshot = true
	if c.state == StateInit {
		c.state = StateCatchingUp
		c.metrics.ObserveState(c.state.String())
	}
	return nil
}

func (c *Controller) applyMessage(msg wire.Message, steady bool) error {
	switch msg.Kind {
	case wire.KindNewOrder:
		return c.applyNewOrder(msg.NewOrder, steady)
	case wire.KindDeleteOrder:
		return c.applyDeleteOrder(msg.DeleteOrder)
	case wire.KindModifyOrder:
		return c.applyModifyOrder(msg.ModifyOrder, steady)
	case wire.KindTrade:
		return c.applyTrade(msg.Trade)
	case wire.KindHeartbeat:
		c.metrics.IncDecoded("heartbeat")
		return nil
	default:
		return nil
	}
}

func (c *Controller) applyNewOrder(no *wire.NewOrder, steady bool) error {
	outcome, err := c.tracker.Classify(no.Symbol, no.SeqNum, steady)
	if err != nil {
		c.metrics.IncFatal("live_sequence_gap")
		return err
	}
	if outcome == sequence.Discard {
		c.metrics.IncDiscarded("stale_seq")
		return nil
	}

	bk := c.registry.BookFor(no.Symbol)
	if err := bk.HandleNewOrder(no.OrderID, bookSide(no.Side), no.Price, no.Quantity, no.SeqNum, steady); err != nil {
		c.metrics.IncFatal("new_order_invariant")
		return err
	}
	if _, rests := bk.Order(no.OrderID); rests {
		c.registry.Track(no.OrderID, no.Symbol)
	}
	c.metrics.IncDecoded("new_order")
	c.emitBBO(bk, no.SeqNum)
	return nil
}

func (c *Controller) applyDeleteOrder(do *wire.DeleteOrder) error {
	bk, ok := c.registry.Route(do.OrderID)
	if !ok {
		c.metrics.IncDiscarded("route_miss")
		return nil
	}
	if err := bk.HandleDeleteOrder(do.OrderID, do.SeqNum); err != nil {
		c.metrics.IncFatal("level_underflow")
		return err
	}
	if _, stillRests := bk.Order(do.OrderID); !stillRests {
		c.registry.Untrack(do.OrderID)
	}
	c.metrics.IncDecoded("delete_order")
	c.emitBBO(bk, do.SeqNum)
	return nil
}

func (c *Controller) applyModifyOrder(mo *wire.ModifyOrder, steady bool) error {
	bk, ok := c.registry.Route(mo.OrderID)
	if !ok {
		c.metrics.IncDiscarded("route_miss")
		return nil
	}
	if err := bk.HandleModifyOrder(mo.OrderID, bookSide(mo.Side), mo.Price, mo.Quantity, mo.SeqNum, steady); err != nil {
		c.metrics.IncFatal("modify_invariant")
		return err
	}
	if _, stillRests := bk.Order(mo.OrderID); !stillRests {
		c.registry.Untrack(mo.OrderID)
	}
	c.metrics.IncDecoded("modify_order")
	c.emitBBO(bk, mo.SeqNum)
	return nil
}

func (c *Controller) applyTrade(tr *wire.Trade) error {
	bk, ok := c.registry.Route(tr.OrderID)
	if !ok {
		c.metrics.IncDiscarded("route_miss")
		return nil
	}
	if err := bk.HandleTrade(tr.OrderID, tr.Quantity, tr.SeqNum); err != nil {
		c.metrics.IncFatal("trade_invariant")
		return err
	}
	if _, stillRests := bk.Order(tr.OrderID); !stillRests {
		c.registry.Untrack(tr.OrderID)
	}
	c.metrics.IncDecoded("trade")
	c.emitBBO(bk, tr.SeqNum)
	return nil
}

func (c *Controller) emitBBO(bk *book.Book, seq uint32) {
	bidPx, bidQty := bk.BestBid()
	askPx, askQty := bk.BestAsk()
	c.sink.Emit(BBORecord{
		SeqNum: seq,
		Symbol: bk.Symbol,
		BidPx:  bidPx,
		BidQty: bidQty,
		AskPx:  askPx,
		AskQty: askQty,
	})
}

func bookSide(s wire.Side) book.Side {
	if s == wire.Sell {
		return book.Sell
	}
	return book.Buy
}
