package kernel

import (
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/justapithecus/vkernel/wire"
)

// channel is one bound socket plus the signing key. Sends are serialized;
// zmq4 sockets are not safe for unsynchronized concurrent writes.
type channel struct {
	name string
	sock zmq4.Socket
	key  []byte

	mu sync.Mutex
}

func newChannel(name string, sock zmq4.Socket, key []byte) *channel {
	return &channel{name: name, sock: sock, key: key}
}

// Send encodes and signs msg and transmits it as one multipart message.
func (c *channel) Send(msg *wire.Message) error {
	frames, err := wire.Encode(msg, c.key)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sock.SendMulti(zmq4.NewMsgFrom(frames...)); err != nil {
		return fmt.Errorf("%s: send: %w", c.name, err)
	}
	return nil
}

// recv returns the raw frames of the next message, identities included.
func (c *channel) recv() ([][]byte, error) {
	msg, err := c.sock.Recv()
	if err != nil {
		return nil, err
	}
	return msg.Frames, nil
}

var _ Sender = (*channel)(nil)
