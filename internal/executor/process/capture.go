package process

import (
	"bytes"
	"sync"
)

// CappedBuffer keeps at most limit bytes and silently discards the rest,
// while still reporting full writes so the child's pipe keeps draining.
// A limit <= 0 keeps everything.
type CappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

// NewCappedBuffer returns a buffer that keeps at most limit bytes.
func NewCappedBuffer(limit int) *CappedBuffer {
	return &CappedBuffer{limit: limit}
}

func (c *CappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(p)
	if c.limit > 0 {
		room := c.limit - c.buf.Len()
		if room <= 0 {
			c.truncated = c.truncated || n > 0
			return n, nil
		}
		if len(p) > room {
			p = p[:room]
			c.truncated = true
		}
	}
	c.buf.Write(p)
	return n, nil
}

// Note appends a supervisor message. Notes bypass the limit so that a
// timeout message is never lost to truncation.
func (c *CappedBuffer) Note(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.WriteString(s)
}

func (c *CappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *CappedBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
