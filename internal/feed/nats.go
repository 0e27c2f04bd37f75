package feed

import (
	"time"

	"github.com/nats-io/nats.go"
)

// NATSChannel wraps a NATS subject subscription as a Channel: the
// subscription callback pushes raw payloads into a buffered Go
// channel, and Recv selects on it with a timer — the same
// callback-to-channel bridge dex-server's own QueueSubscribe uses,
// adapted here so the blocking-with-timeout contract matches
// ZMQChannel exactly.
type NATSChannel struct {
	kind ChannelKind
	conn *nats.Conn
	sub  *nats.Subscription
	msgs chan []byte
}

// NewNATSChannel connects to url and subscribes to subject as part of
// queue group queueGroup (load-balanced delivery across any peer
// consumers, mirroring dex-server's own "dex-servers" queue group).
func NewNATSChannel(kind ChannelKind, url, subject, queueGroup string, bufferSize int) (*NATSChannel, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	ch := &NATSChannel{
		kind: kind,
		conn: conn,
		msgs: make(chan []byte, bufferSize),
	}
	sub, err := conn.QueueSubscribe(subject, queueGroup, func(m *nats.Msg) {
		select {
		case ch.msgs <- m.Data:
		default:
			// Subscriber channel full: drop rather than block the
			// NATS client's delivery goroutine.
		}
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	ch.sub = sub
	return ch, nil
}

// Recv blocks up to timeout for the next datagram delivered by the
// subscription callback. timeout<=0 means block indefinitely, the
// LIVE-state convention from syncctl.Controller.PollTimeout.
func (c *NATSChannel) Recv(timeout time.Duration) (Datagram, bool, error) {
	if timeout <= 0 {
		payload := <-c.msgs
		return Datagram{Channel: c.kind, Payload: payload, Received: time.Now()}, true, nil
	}
	select {
	case payload := <-c.msgs:
		return Datagram{Channel: c.kind, Payload: payload, Received: time.Now()}, true, nil
	case <-time.After(timeout):
		return Datagram{}, false, nil
	}
}

// Close unsubscribes and closes the underlying NATS connection.
func (c *NATSChannel) Close() error {
	if err := c.sub.Unsubscribe(); err != nil {
		c.conn.Close()
		return err
	}
	c.conn.Close()
	return nil
}
