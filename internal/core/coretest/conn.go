// Package coretest provides in-memory core.Connection doubles for tests.
package coretest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/google/uuid"
)

// Conn records every frame it accepts. Fail makes TrySend return the
// given error instead.
type Conn struct {
	id core.ConnID

	mu     sync.Mutex
	frames []core.Frame
	fail   error
	closed bool
}

func NewConn() *Conn {
	return &Conn{id: core.ConnID(uuid.NewString())}
}

func (c *Conn) ID() core.ConnID { return c.id }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Fail(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

// Reset forgets recorded frames.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// Decoded returns recorded frames as generic JSON objects.
func (c *Conn) Decoded() []map[string]any {
	frames := c.Frames()
	out := make([]map[string]any, 0, len(frames))
	for _, f := range frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// OfType returns recorded frames whose "type" field equals typ.
func (c *Conn) OfType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range c.Decoded() {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}
