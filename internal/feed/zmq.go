package feed

import (
	"syscall"
	"time"

	zmq4 "github.com/pebbe/zmq4"
)

// ZMQChannel wraps a ZeroMQ PULL socket as a Channel. It mirrors the
// bind/SetRcvhwm/SetRcvbuf/SetRcvtimeo setup the zmq-exchange and
// x-chain order processors use, generalized to the two-channel
// (live/replay) shape this engine needs: each logical channel is its
// own socket bound to its own address, the way the exchange's two
// multicast groups map onto independent sockets.
type ZMQChannel struct {
	kind   ChannelKind
	ctx    *zmq4.Context
	socket *zmq4.Socket
}

// NewZMQChannel creates a PULL socket, binds it to addr, and sets a
// receive high-water-mark and buffer matching the exchange's own
// high-throughput defaults.
func NewZMQChannel(kind ChannelKind, addr string, rcvhwm, rcvbufBytes int) (*ZMQChannel, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, err
	}
	socket, err := ctx.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.SetRcvhwm(rcvhwm); err != nil {
		socket.Close()
		return nil, err
	}
	if err := socket.SetRcvbuf(rcvbufBytes); err != nil {
		socket.Close()
		return nil, err
	}
	if err := socket.Bind(addr); err != nil {
		socket.Close()
		return nil, err
	}
	return &ZMQChannel{kind: kind, ctx: ctx, socket: socket}, nil
}

// Recv blocks up to timeout for the next datagram. timeout<=0 means
// block indefinitely (the LIVE-state convention from
// syncctl.Controller.PollTimeout), translated to ZMQ's own -1
// infinite-timeout sentinel. A timeout surfaces from the underlying
// socket as EAGAIN, which this method translates to ok=false rather
// than an error.
func (c *ZMQChannel) Recv(timeout time.Duration) (Datagram, bool, error) {
	zmqTimeout := timeout
	if timeout <= 0 {
		zmqTimeout = -1 * time.Millisecond
	}
	if err := c.socket.SetRcvtimeo(zmqTimeout); err != nil {
		return Datagram{}, false, err
	}
	raw, err := c.socket.RecvBytes(0)
	if err != nil {
		if errno, ok := err.(zmq4.Errno); ok && errno == zmq4.Errno(syscall.EAGAIN) {
			return Datagram{}, false, nil
		}
		return Datagram{}, false, err
	}
	return Datagram{Channel: c.kind, Payload: raw, Received: time.Now()}, true, nil
}

// Close releases the socket and its context.
func (c *ZMQChannel) Close() error {
	err := c.socket.Close()
	if tErr := c.ctx.Term(); tErr != nil && err == nil {
		err = tErr
	}
	return err
}
