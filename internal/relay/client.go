package relay

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Client is the relay's handle on one connection. The relay only queues
// frames; the transport drains Outbound() and writes them to the socket.
type Client struct {
	id   string
	send chan []byte

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewClient creates a client with an outbound queue of bufferSize frames.
func NewClient(bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Client{
		id:   uuid.NewString(),
		send: make(chan []byte, bufferSize),
	}
}

// ID is the connection handle stored in presence entries.
func (c *Client) ID() string {
	return c.id
}

// Outbound yields queued frames until the client is closed.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Dropped returns how many frames were discarded because the queue was full.
func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// enqueue never blocks: a slow consumer loses frames instead of stalling the
// room.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.dropped++
		if c.dropped%100 == 1 {
			log.Printf("[Relay] Send buffer full for client %s, dropped %d frame(s)", c.id, c.dropped)
		}
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
