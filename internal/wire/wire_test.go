package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putTopHeader(buf []byte, magic uint32, msgType MsgType, length int, seq uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(msgType))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(length))
	binary.LittleEndian.PutUint32(buf[8:12], seq)
}

func encodeNewOrder(seq uint32, orderID uint64, symbol uint32, side Side, price int32, qty uint32) []byte {
	buf := make([]byte, topHeaderSize+21)
	putTopHeader(buf, MagicNumber, MsgNewOrder, len(buf), seq)
	p := buf[topHeaderSize:]
	binary.LittleEndian.PutUint64(p[0:8], orderID)
	binary.LittleEndian.PutUint32(p[8:12], symbol)
	p[12] = byte(side)
	binary.LittleEndian.PutUint32(p[13:17], uint32(price))
	binary.LittleEndian.PutUint32(p[17:21], qty)
	return buf
}

func TestDecodeNewOrder(t *testing.T) {
	buf := encodeNewOrder(7, 1, 42, Buy, 100, 5)

	msg, ok := Decode(buf)
	require.True(t, ok)
	require.Equal(t, KindNewOrder, msg.Kind)
	assert.Equal(t, uint64(1), msg.NewOrder.OrderID)
	assert.Equal(t, uint32(42), msg.NewOrder.Symbol)
	assert.Equal(t, Buy, msg.NewOrder.Side)
	assert.Equal(t, int32(100), msg.NewOrder.Price)
	assert.Equal(t, uint32(5), msg.NewOrder.Quantity)
	assert.Equal(t, uint32(7), msg.NewOrder.SeqNum)
}

func TestDecodeDeleteOrder(t *testing.T) {
	buf := make([]byte, topHeaderSize+8)
	putTopHeader(buf, MagicNumber, MsgDeleteOrder, len(buf), 9)
	binary.LittleEndian.PutUint64(buf[topHeaderSize:], 55)

	msg, ok := Decode(buf)
	require.True(t, ok)
	require.Equal(t, KindDeleteOrder, msg.Kind)
	assert.Equal(t, uint64(55), msg.DeleteOrder.OrderID)
	assert.Equal(t, uint32(9), msg.DeleteOrder.SeqNum)
}

func TestDecodeModifyOrder(t *testing.T) {
	buf := make([]byte, topHeaderSize+17)
	putTopHeader(buf, MagicNumber, MsgModifyOrder, len(buf), 3)
	p := buf[topHeaderSize:]
	binary.LittleEndian.PutUint64(p[0:8], 7)
	p[8] = byte(Sell)
	binary.LittleEndian.PutUint32(p[9:13], uint32(200))
	binary.LittleEndian.PutUint32(p[13:17], 10)

	msg, ok := Decode(buf)
	require.True(t, ok)
	require.Equal(t, KindModifyOrder, msg.Kind)
	assert.Equal(t, uint64(7), msg.ModifyOrder.OrderID)
	assert.Equal(t, Sell, msg.ModifyOrder.Side)
	assert.Equal(t, int32(200), msg.ModifyOrder.Price)
	assert.Equal(t, uint32(10), msg.ModifyOrder.Quantity)
}

func TestDecodeTrade(t *testing.T) {
	buf := make([]byte, topHeaderSize+12)
	putTopHeader(buf, MagicNumber, MsgTrade, len(buf), 4)
	p := buf[topHeaderSize:]
	binary.LittleEndian.PutUint64(p[0:8], 3)
	binary.LittleEndian.PutUint32(p[8:12], 2)

	msg, ok := Decode(buf)
	require.True(t, ok)
	require.Equal(t, KindTrade, msg.Kind)
	assert.Equal(t, uint64(3), msg.Trade.OrderID)
	assert.Equal(t, uint32(2), msg.Trade.Quantity)
}

func TestDecodeHeartbeat(t *testing.T) {
	buf := make([]byte, topHeaderSize)
	putTopHeader(buf, MagicNumber, MsgHeartbeat, len(buf), 1)

	msg, ok := Decode(buf)
	require.True(t, ok)
	require.Equal(t, KindHeartbeat, msg.Kind)
	assert.Equal(t, uint32(1), msg.Heartbeat.SeqNum)
}

func TestDecodeUnknownMagicIsBenign(t *testing.T) {
	buf := make([]byte, topHeaderSize)
	putTopHeader(buf, 0xffffffff, MsgHeartbeat, len(buf), 1)

	_, ok := Decode(buf)
	assert.False(t, ok)
}

func TestDecodeUnknownMsgTypeIsBenign(t *testing.T) {
	buf := make([]byte, topHeaderSize)
	putTopHeader(buf, MagicNumber, MsgTradeSummary, len(buf), 1)

	_, ok := Decode(buf)
	assert.False(t, ok, "TRADE_SUMMARY is accepted and ignored, not decoded into a message")

	putTopHeader(buf, MagicNumber, MsgType(999), len(buf), 1)
	_, ok = Decode(buf)
	assert.False(t, ok, "genuinely unknown msg_type is also accepted and ignored")
}

func TestDecodeTruncatedBufferIsBenign(t *testing.T) {
	_, ok := Decode(nil)
	assert.False(t, ok)

	_, ok = Decode([]byte{1, 2, 3})
	assert.False(t, ok)

	// Header present but declared length exceeds the buffer.
	buf := make([]byte, topHeaderSize+5)
	putTopHeader(buf, MagicNumber, MsgNewOrder, topHeaderSize+21, 1)
	_, ok = Decode(buf)
	assert.False(t, ok)
}

func TestDecodeNeverReadsPastDeclaredLength(t *testing.T) {
	// A NEW_ORDER record followed by trailing garbage must decode
	// cleanly using only its own declared length.
	order := encodeNewOrder(1, 1, 1, Buy, 1, 1)
	buf := append(append([]byte{}, order...), 0xAA, 0xBB, 0xCC)

	msg, ok := Decode(buf)
	require.True(t, ok)
	assert.Equal(t, KindNewOrder, msg.Kind)
}

func encodeSnapshotOrder(orderID uint64, symbol uint32, side Side, price int32, qty uint32) []byte {
	buf := make([]byte, nestedHeaderSize+21)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(MsgNewOrder))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(buf)))
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	p := buf[nestedHeaderSize:]
	binary.LittleEndian.PutUint64(p[0:8], orderID)
	binary.LittleEndian.PutUint32(p[8:12], symbol)
	p[12] = byte(side)
	binary.LittleEndian.PutUint32(p[13:17], uint32(price))
	binary.LittleEndian.PutUint32(p[17:21], qty)
	return buf
}

func encodeSnapshotInfo(symbol, lastSeq, bidCount, askCount uint32) []byte {
	buf := make([]byte, nestedHeaderSize+16)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(MsgSnapshotInfo))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(buf)))
	p := buf[nestedHeaderSize:]
	binary.LittleEndian.PutUint32(p[0:4], symbol)
	binary.LittleEndian.PutUint32(p[4:8], lastSeq)
	binary.LittleEndian.PutUint32(p[8:12], bidCount)
	binary.LittleEndian.PutUint32(p[12:16], askCount)
	return buf
}

func TestDecodeSnapshotSingleGroup(t *testing.T) {
	var buf []byte
	top := make([]byte, topHeaderSize)
	putTopHeader(top, SnapshotMagicNumber, 0, 0, 0)
	buf = append(buf, top...)
	buf = append(buf, encodeSnapshotInfo(7, 42, 2, 1)...)
	buf = append(buf, encodeSnapshotOrder(1, 7, Buy, 100, 5)...)
	buf = append(buf, encodeSnapshotOrder(2, 7, Buy, 101, 3)...)
	buf = append(buf, encodeSnapshotOrder(3, 7, Sell, 105, 2)...)

	msg, ok := Decode(buf)
	require.True(t, ok)
	require.Equal(t, KindSnapshot, msg.Kind)
	require.Len(t, msg.Snapshot.Groups, 1)
	g := msg.Snapshot.Groups[0]
	assert.Equal(t, uint32(7), g.Symbol)
	assert.Equal(t, uint32(42), g.LastSeqNum)
	require.Len(t, g.Orders, 3)
	assert.Equal(t, uint64(3), g.Orders[2].OrderID)
}

func TestDecodeSnapshotMultipleGroups(t *testing.T) {
	var buf []byte
	top := make([]byte, topHeaderSize)
	putTopHeader(top, SnapshotMagicNumber, 0, 0, 0)
	buf = append(buf, top...)
	buf = append(buf, encodeSnapshotInfo(1, 10, 1, 0)...)
	buf = append(buf, encodeSnapshotOrder(1, 1, Buy, 50, 1)...)
	buf = append(buf, encodeSnapshotInfo(2, 20, 0, 1)...)
	buf = append(buf, encodeSnapshotOrder(2, 2, Sell, 60, 1)...)

	msg, ok := Decode(buf)
	require.True(t, ok)
	require.Len(t, msg.Snapshot.Groups, 2)
	assert.Equal(t, uint32(1), msg.Snapshot.Groups[0].Symbol)
	assert.Equal(t, uint32(2), msg.Snapshot.Groups[1].Symbol)
}

func TestDecodeSnapshotTruncatedTrailerStopsSilently(t *testing.T) {
	var buf []byte
	top := make([]byte, topHeaderSize)
	putTopHeader(top, SnapshotMagicNumber, 0, 0, 0)
	buf = append(buf, top...)
	buf = append(buf, encodeSnapshotInfo(1, 10, 2, 0)...)
	buf = append(buf, encodeSnapshotOrder(1, 1, Buy, 50, 1)...)
	// Second declared order is missing entirely: truncate here.

	msg, ok := Decode(buf)
	require.True(t, ok, "a malformed trailing group still yields a successful decode of what preceded it")
	assert.Empty(t, msg.Snapshot.Groups, "the incomplete group itself is dropped, not half-populated")
}

func TestDecodeSnapshotEmptyIsStillRecognized(t *testing.T) {
	top := make([]byte, topHeaderSize)
	putTopHeader(top, SnapshotMagicNumber, 0, 0, 0)

	msg, ok := Decode(top)
	require.True(t, ok)
	assert.Empty(t, msg.Snapshot.Groups)
}
