// Package wire decodes raw market-data datagrams into typed messages.
//
// The decoder is a pure function from bytes to an enumerated message: no
// aliasing of the input buffer, no unsafe casts. Every record (top-level
// message or an embedded snapshot record) declares its own length; the
// decoder advances the cursor by exactly that length and never reads past
// the end of the buffer it was given.
package wire

import "encoding/binary"

// Magic numbers classify a datagram before any other field is trusted.
const (
	MagicNumber         uint32 = 0x4d444631 // "MDF1": live/replay market-data stream
	SnapshotMagicNumber uint32 = 0x4d444632 // "MDF2": snapshot stream
)

// MsgType tags a record's payload shape. Values are internal to this
// decoder; the exchange's own tag values are not part of this spec.
type MsgType uint16

const (
	MsgHeartbeat    MsgType = 0
	MsgNewOrder     MsgType = 1
	MsgDeleteOrder  MsgType = 2
	MsgModifyOrder  MsgType = 3
	MsgTrade        MsgType = 4
	MsgTradeSummary MsgType = 5
	MsgSnapshotInfo MsgType = 6
)

// Side mirrors the wire's 0=BUY, 1=SELL encoding.
type Side uint8

const (
	Buy  Side = 0
	Sell Side = 1
)

// topHeaderSize is the 12-byte md_header: u32 magic, u16 msg_type, u16
// length, u32 seq_num.
const topHeaderSize = 12

// nestedHeaderSize is the 8-byte header on records embedded inside a
// snapshot datagram: u16 msg_type, u16 length, u32 seq_num. It omits the
// magic number, which is a once-per-datagram framing concept.
const nestedHeaderSize = 8

// Kind enumerates what Decode recognized.
type Kind int

const (
	// KindNone means the datagram carried no recognized message: unknown
	// magic number, a buffer too short for even a header, or a
	// msg_type this decoder chooses to discard (TRADE_SUMMARY and any
	// other unknown type are "accepted and ignored" per the wire spec).
	KindNone Kind = iota
	KindNewOrder
	KindDeleteOrder
	KindModifyOrder
	KindTrade
	KindHeartbeat
	KindSnapshot
)

// NewOrder is the decoded NEW_ORDER payload, used both for top-level
// messages and for records embedded in a snapshot.
type NewOrder struct {
	OrderID  uint64
	Symbol   uint32
	Side     Side
	Price    int32
	Quantity uint32
	SeqNum   uint32
}

// DeleteOrder is the decoded DELETE_ORDER payload.
type DeleteOrder struct {
	OrderID uint64
	SeqNum  uint32
}

// ModifyOrder is the decoded MODIFY_ORDER payload: a full replacement of
// side, price, and quantity, never a delta.
type ModifyOrder struct {
	OrderID  uint64
	Side     Side
	Price    int32
	Quantity uint32
	SeqNum   uint32
}

// Trade is the decoded TRADE payload.
type Trade struct {
	OrderID  uint64
	Quantity uint32
	SeqNum   uint32
}

// Heartbeat carries nothing beyond its sequence number.
type Heartbeat struct {
	SeqNum uint32
}

// SnapshotGroup is one (SNAPSHOT_INFO, bid_count+ask_count NEW_ORDER
// records) group from a snapshot datagram. Embedded NEW_ORDER records
// within a group are not split into bids/asks here; their Side field
// says which they are.
type SnapshotGroup struct {
	Symbol     uint32
	LastSeqNum uint32
	BidCount   uint32
	AskCount   uint32
	Orders     []NewOrder
}

// Snapshot is the fully decoded payload of a snapshot datagram: zero or
// more groups, one per symbol the datagram declares.
type Snapshot struct {
	Groups []SnapshotGroup
}

// Message is the tagged union Decode produces. Exactly one of the typed
// fields is non-nil, matching Kind.
type Message struct {
	Kind        Kind
	NewOrder    *NewOrder
	DeleteOrder *DeleteOrder
	ModifyOrder *ModifyOrder
	Trade       *Trade
	Heartbeat   *Heartbeat
	Snapshot    *Snapshot
}

// Decode classifies a raw datagram by its magic number and parses it.
// The second return value is false exactly when the datagram carried no
// recognized message — this is not an error, the datagram is simply
// discarded by the caller.
func Decode(data []byte) (Message, bool) {
	if len(data) < 4 {
		return Message{}, false
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	switch magic {
	case MagicNumber:
		return decodeMarketData(data)
	case SnapshotMagicNumber:
		return decodeSnapshot(data)
	default:
		return Message{}, false
	}
}

func decodeMarketData(data []byte) (Message, bool) {
	if len(data) < topHeaderSize {
		return Message{}, false
	}
	msgType := MsgType(binary.LittleEndian.Uint16(data[4:6]))
	length := int(binary.LittleEndian.Uint16(data[6:8]))
	seqNum := binary.LittleEndian.Uint32(data[8:12])
	if length < topHeaderSize || length > len(data) {
		return Message{}, false
	}
	payload := data[topHeaderSize:length]

	switch msgType {
	case MsgNewOrder:
		no, ok := parseNewOrderPayload(payload, seqNum)
		if !ok {
			return Message{}, false
		}
		return Message{Kind: KindNewOrder, NewOrder: &no}, true
	case MsgDeleteOrder:
		if len(payload) < 8 {
			return Message{}, false
		}
		return Message{Kind: KindDeleteOrder, DeleteOrder: &DeleteOrder{
			OrderID: binary.LittleEndian.Uint64(payload[0:8]),
			SeqNum:  seqNum,
		}}, true
	case MsgModifyOrder:
		mo, ok := parseModifyOrderPayload(payload, seqNum)
		if !ok {
			return Message{}, false
		}
		return Message{Kind: KindModifyOrder, ModifyOrder: &mo}, true
	case MsgTrade:
		if len(payload) < 12 {
			return Message{}, false
		}
		return Message{Kind: KindTrade, Trade: &Trade{
			OrderID:  binary.LittleEndian.Uint64(payload[0:8]),
			Quantity: binary.LittleEndian.Uint32(payload[8:12]),
			SeqNum:   seqNum,
		}}, true
	case MsgHeartbeat:
		return Message{Kind: KindHeartbeat, Heartbeat: &Heartbeat{SeqNum: seqNum}}, true
	default:
		// TRADE_SUMMARY and any other unknown msg_type: accepted,
		// ignored, not an error.
		return Message{}, false
	}
}

func parseNewOrderPayload(payload []byte, seqNum uint32) (NewOrder, bool) {
	if len(payload) < 21 {
		return NewOrder{}, false
	}
	return NewOrder{
		OrderID:  binary.LittleEndian.Uint64(payload[0:8]),
		Symbol:   binary.LittleEndian.Uint32(payload[8:12]),
		Side:     Side(payload[12]),
		Price:    int32(binary.LittleEndian.Uint32(payload[13:17])),
		Quantity: binary.LittleEndian.Uint32(payload[17:21]),
		SeqNum:   seqNum,
	}, true
}

func parseModifyOrderPayload(payload []byte, seqNum uint32) (ModifyOrder, bool) {
	if len(payload) < 17 {
		return ModifyOrder{}, false
	}
	return ModifyOrder{
		OrderID:  binary.LittleEndian.Uint64(payload[0:8]),
		Side:     Side(payload[8]),
		Price:    int32(binary.LittleEndian.Uint32(payload[9:13])),
		Quantity: binary.LittleEndian.Uint32(payload[13:17]),
		SeqNum:   seqNum,
	}, true
}

// decodeSnapshot parses the (SNAPSHOT_INFO, records...) groups following
// the outer 12-byte container header. Trailing bytes that don't form a
// complete, well-typed record terminate decoding silently — whatever
// groups parsed so far are returned as a (possibly empty) success.
func decodeSnapshot(data []byte) (Message, bool) {
	if len(data) < topHeaderSize {
		return Message{}, false
	}
	cursor := topHeaderSize
	var groups []SnapshotGroup

	for {
		group, next, ok := decodeSnapshotGroup(data, cursor)
		if !ok {
			break
		}
		groups = append(groups, group)
		cursor = next
	}

	return Message{Kind: KindSnapshot, Snapshot: &Snapshot{Groups: groups}}, true
}

func decodeSnapshotGroup(data []byte, cursor int) (SnapshotGroup, int, bool) {
	msgType, length, ok := readNestedHeader(data, cursor)
	if !ok || msgType != MsgSnapshotInfo {
		return SnapshotGroup{}, cursor, false
	}
	payload := data[cursor+nestedHeaderSize : cursor+length]
	if len(payload) < 16 {
		return SnapshotGroup{}, cursor, false
	}
	group := SnapshotGroup{
		Symbol:     binary.LittleEndian.Uint32(payload[0:4]),
		LastSeqNum: binary.LittleEndian.Uint32(payload[4:8]),
		BidCount:   binary.LittleEndian.Uint32(payload[8:12]),
		AskCount:   binary.LittleEndian.Uint32(payload[12:16]),
	}
	cursor += length

	total := group.BidCount + group.AskCount
	group.Orders = make([]NewOrder, 0, total)
	for i := uint32(0); i < total; i++ {
		no, next, ok := decodeSnapshotOrder(data, cursor)
		if !ok {
			// A short group still terminates decoding of the whole
			// datagram, per "trailing bytes that do not form a
			// complete, well-typed record terminate decoding
			// silently" — but the group itself is incomplete, so it
			// is dropped rather than returned half-populated.
			return SnapshotGroup{}, cursor, false
		}
		group.Orders = append(group.Orders, no)
		cursor = next
	}
	return group, cursor, true
}

func decodeSnapshotOrder(data []byte, cursor int) (NewOrder, int, bool) {
	msgType, length, ok := readNestedHeader(data, cursor)
	if !ok || msgType != MsgNewOrder {
		return NewOrder{}, cursor, false
	}
	payload := data[cursor+nestedHeaderSize : cursor+length]
	no, ok := parseNewOrderPayload(payload, 0)
	if !ok {
		return NewOrder{}, cursor, false
	}
	return no, cursor + length, true
}

// readNestedHeader reads the 8-byte embedded-record header at cursor and
// returns its msg_type and total record length (header included). It
// fails closed: any truncation or an out-of-range length is reported as
// !ok rather than a partial read.
func readNestedHeader(data []byte, cursor int) (MsgType, int, bool) {
	if cursor+nestedHeaderSize > len(data) {
		return 0, 0, false
	}
	msgType := MsgType(binary.LittleEndian.Uint16(data[cursor : cursor+2]))
	length := int(binary.LittleEndian.Uint16(data[cursor+2 : cursor+4]))
	if length < nestedHeaderSize || cursor+length > len(data) {
		return 0, 0, false
	}
	return msgType, length, true
}
