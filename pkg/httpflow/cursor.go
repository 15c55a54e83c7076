package httpflow

import "github.com/valyala/bytebufferpool"

// cursor tracks one direction's position within the current chunk plus its
// absolute position in the whole connection stream, and accumulates bytes
// into a bounded line buffer. It generalizes the teacher's
// readUntilHeadersEnd buffer-growth loop (http11/parser.go) from "grow
// until \r\n\r\n found" to two composable primitives — advance and
// copyIntoLine — that can suspend mid-line and resume when more bytes
// arrive (spec §4.1).
type cursor struct {
	chunk []byte
	pos   int

	absOffset int64
	lastByte  int // sentinel -1 when the last advance yielded nothing

	line     *bytebufferpool.ByteBuffer
	softHit  bool // field-long already flagged for the line in progress
	overflow bool // hard limit exceeded for the line in progress

	softLimit int
	hardLimit int
}

func newCursor(softLimit, hardLimit int) *cursor {
	return &cursor{
		lastByte:  -1,
		line:      bytebufferpool.Get(),
		softLimit: softLimit,
		hardLimit: hardLimit,
	}
}

func (c *cursor) release() {
	bytebufferpool.Put(c.line)
	c.line = nil
}

// setLimits rebinds the soft/hard line-length thresholds, used when the
// same cursor moves from request-line parsing to header-line parsing
// (the two phases carry distinct configured limits; spec §4.6 "field
// soft/hard limits").
func (c *cursor) setLimits(soft, hard int) {
	c.softLimit = soft
	c.hardLimit = hard
}

// feed rebinds the cursor to a new chunk of input. Any bytes left unread
// from a previous chunk must have already been consumed (the state
// machine always drains a chunk down to NeedMore before the driver hands
// it another one).
func (c *cursor) feed(data []byte) {
	c.chunk = data
	c.pos = 0
}

// remaining reports how many unread bytes are left in the current chunk.
func (c *cursor) remaining() int {
	return len(c.chunk) - c.pos
}

// advance consumes and returns the next byte, or NeedMore if the chunk is
// exhausted.
func (c *cursor) advance() (byte, Result) {
	if c.pos >= len(c.chunk) {
		c.lastByte = -1
		return 0, NeedMore
	}
	b := c.chunk[c.pos]
	c.pos++
	c.absOffset++
	c.lastByte = int(b)
	return b, Ok
}

// peek returns the next byte without consuming it, or (0, false) if the
// chunk is exhausted.
func (c *cursor) peek() (byte, bool) {
	if c.pos >= len(c.chunk) {
		return 0, false
	}
	return c.chunk[c.pos], true
}

// skip consumes n bytes without copying them anywhere (used for raw body
// forwarding, where the bytes are handed to a hook directly instead of
// being accumulated into the line buffer). It returns the consumed bytes,
// fewer than n if the chunk ran out first.
func (c *cursor) skip(n int) []byte {
	avail := c.remaining()
	if n > avail {
		n = avail
	}
	start := c.pos
	c.pos += n
	c.absOffset += int64(n)
	return c.chunk[start : start+n]
}

// copyIntoLine appends b (a byte the caller already took with advance)
// to the bounded line buffer. It reports field-long (soft overflow, logged once per line by the caller)
// via the softHit flag and signals Fatal once the hard limit is exceeded.
func (c *cursor) copyIntoLine(b byte) Result {
	if c.line.Len() >= c.hardLimit {
		c.overflow = true
		return Fatal
	}
	c.line.WriteByte(b)
	if !c.softHit && c.line.Len() >= c.softLimit {
		c.softHit = true
	}
	return Ok
}

// resetLine clears the line buffer and its soft/overflow markers, ready
// for the next line.
func (c *cursor) resetLine() {
	c.line.Reset()
	c.softHit = false
	c.overflow = false
}

// lineBytes returns the accumulated line buffer's current contents. The
// slice is only valid until the next resetLine or release call.
func (c *cursor) lineBytes() []byte {
	return c.line.B
}
