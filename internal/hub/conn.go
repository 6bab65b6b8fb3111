package hub

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var errDetached = errors.New("hub: connection detached")

// Conn is one open SSE stream. It belongs to the global channel when
// StreamerID is empty, otherwise to exactly one streamer channel. A Conn is
// never reattached once it has been unsubscribed.
type Conn struct {
	ID         string
	StreamerID string

	mu       sync.Mutex
	w        io.Writer
	detached bool

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(streamerID string, w io.Writer) *Conn {
	return &Conn{
		ID:         uuid.NewString(),
		StreamerID: streamerID,
		w:          w,
		closed:     make(chan struct{}),
	}
}

// Closed is closed once the connection has been detached from the hub, either
// by Unsubscribe or after a failed write.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Comment writes an SSE comment line, used for heartbeats.
func (c *Conn) Comment(text string) error {
	return c.write([]byte(fmt.Sprintf(": %s\n\n", text)))
}

func (c *Conn) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.detached {
		return errDetached
	}
	_, err := c.w.Write(frame)
	return err
}

func (c *Conn) detach() {
	c.mu.Lock()
	c.detached = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
}

const maxEventNameLength = 64

// ValidEventName reports whether name can be written as the event field of an
// SSE frame. A line break would let the name start new fields of its own.
func ValidEventName(name string) bool {
	return name != "" && len(name) <= maxEventNameLength && !strings.ContainsAny(name, "\r\n")
}

// frame renders one SSE event. data must be single-line JSON.
func frame(event string, data []byte) []byte {
	buf := make([]byte, 0, len(event)+len(data)+16)
	buf = append(buf, "event: "...)
	buf = append(buf, event...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	return buf
}
