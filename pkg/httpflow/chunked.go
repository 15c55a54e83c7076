package httpflow

// chunkedState enumerates the sub-states of a chunked-body decode (spec
// §4.4: BODY_CHUNKED_LENGTH, BODY_CHUNKED_DATA, BODY_CHUNKED_DATA_END,
// BODY_CHUNKED_TRAILER). Unlike the teacher's ChunkedReader, which blocks
// on a bufio.Reader inside Read, every state here is a resumable step: a
// short chunk boundary mid-size-line or mid-data yields NeedMore and the
// decoder's fields retain exactly enough to pick back up where it left
// off.
type chunkedState int

const (
	chunkedLength chunkedState = iota
	chunkedExtension
	chunkedData
	chunkedDataCRLF
	chunkedTrailer
	chunkedDone
)

// maxChunkSize bounds a single chunk-size value to prevent an attacker
// from claiming a chunk length so large that downstream accounting
// overflows or a DoS results.
const maxChunkSize = 1 << 40

// chunkedDecoder decodes a chunked transfer-coded body (RFC 7230 §4.1)
// one cursor step at a time. It is owned by a direction's body state
// (see reqstate.go/respstate.go) and reset between transactions.
type chunkedDecoder struct {
	state          chunkedState
	sizeAccum      uint64
	sizeDigits     int
	bytesRemaining uint64
	totalRead      uint64
	maxBodySize    uint64

	trailer *HeaderSet
	flags   Flags
}

func newChunkedDecoder() *chunkedDecoder {
	return &chunkedDecoder{trailer: newHeaderSet()}
}

func (d *chunkedDecoder) reset() {
	d.state = chunkedLength
	d.sizeAccum = 0
	d.sizeDigits = 0
	d.bytesRemaining = 0
	d.totalRead = 0
	d.flags = 0
	d.trailer.reset()
}

// step advances the decoder using bytes available on cur, invoking
// onData with each contiguous slice of decoded chunk payload. It returns
// Ok once the terminating trailer section (possibly empty) has been
// fully consumed, NeedMore if cur was exhausted first, or Fatal on a
// malformed chunk-size/CRLF (spec §4.4 "invalid-chunking").
func (d *chunkedDecoder) step(c *cursor, onData func([]byte)) (Result, *ParseError) {
	for {
		switch d.state {
		case chunkedLength:
			res, perr := d.stepLength(c)
			if res != Ok {
				return res, perr
			}

		case chunkedExtension:
			res, perr := d.stepExtension(c)
			if res != Ok {
				return res, perr
			}

		case chunkedData:
			res := d.stepData(c, onData)
			if res != Ok {
				return res, nil
			}

		case chunkedDataCRLF:
			res, perr := d.stepDataCRLF(c)
			if res != Ok {
				return res, perr
			}

		case chunkedTrailer:
			res, perr := d.stepTrailer(c)
			if res != Ok {
				return res, perr
			}

		case chunkedDone:
			return Ok, nil
		}
	}
}

func (d *chunkedDecoder) stepLength(c *cursor) (Result, *ParseError) {
	for {
		b, res := c.advance()
		if res != Ok {
			return NeedMore, nil
		}
		if b == cr {
			continue
		}
		if b == lf {
			if d.sizeDigits == 0 {
				return Fatal, newFatal(ErrCodeInvalidChunking, c.absOffset, "empty chunk-size line")
			}
			if d.sizeAccum == 0 {
				d.state = chunkedTrailer
			} else {
				d.bytesRemaining = d.sizeAccum
				d.state = chunkedData
			}
			d.sizeAccum = 0
			d.sizeDigits = 0
			return Ok, nil
		}
		if b == ';' {
			d.state = chunkedExtension
			return Ok, nil
		}
		v := digitValue(b, 16)
		if v < 0 {
			d.flags |= FlagInvalidChunking
			return Fatal, newFatal(ErrCodeInvalidChunking, c.absOffset, "non-hex byte %q in chunk-size", b)
		}
		d.sizeDigits++
		d.sizeAccum = d.sizeAccum<<4 | uint64(v)
		if d.sizeAccum > maxChunkSize {
			return Fatal, newFatal(ErrCodeInvalidChunking, c.absOffset, "chunk-size exceeds limit")
		}
	}
}

// stepExtension discards chunk-extension bytes up to the terminating LF.
// Extensions are never surfaced to hooks (RFC 7230 §4.1.1 notes few
// implementations parse them, and smuggling research treats unparsed
// extensions as the safer default).
func (d *chunkedDecoder) stepExtension(c *cursor) (Result, *ParseError) {
	for {
		b, res := c.advance()
		if res != Ok {
			return NeedMore, nil
		}
		if b == lf {
			if d.sizeAccum == 0 {
				d.state = chunkedTrailer
			} else {
				d.bytesRemaining = d.sizeAccum
				d.state = chunkedData
			}
			d.sizeAccum = 0
			d.sizeDigits = 0
			return Ok, nil
		}
	}
}

func (d *chunkedDecoder) stepData(c *cursor, onData func([]byte)) Result {
	if d.bytesRemaining == 0 {
		d.state = chunkedDataCRLF
		return Ok
	}
	avail := c.remaining()
	if avail == 0 {
		return NeedMore
	}
	want := d.bytesRemaining
	if uint64(avail) < want {
		want = uint64(avail)
	}
	data := c.skip(int(want))
	d.bytesRemaining -= uint64(len(data))
	d.totalRead += uint64(len(data))
	if len(data) > 0 {
		onData(data)
	}
	if d.bytesRemaining == 0 {
		d.state = chunkedDataCRLF
	}
	return Ok
}

func (d *chunkedDecoder) stepDataCRLF(c *cursor) (Result, *ParseError) {
	b, res := c.advance()
	if res != Ok {
		return NeedMore, nil
	}
	if b != cr {
		if b != lf {
			d.flags |= FlagInvalidChunking
			return Fatal, newFatal(ErrCodeInvalidChunking, c.absOffset, "missing CRLF after chunk data")
		}
		d.state = chunkedLength
		return Ok, nil
	}
	b, res = c.advance()
	if res != Ok {
		return NeedMore, nil
	}
	if b != lf {
		d.flags |= FlagInvalidChunking
		return Fatal, newFatal(ErrCodeInvalidChunking, c.absOffset, "missing LF after chunk data CR")
	}
	d.state = chunkedLength
	return Ok, nil
}

// stepTrailer consumes trailer field-lines (RFC 7230 §4.1.2) the same
// way the header-block reader does, terminating on an empty line.
func (d *chunkedDecoder) stepTrailer(c *cursor) (Result, *ParseError) {
	for {
		b, res := c.advance()
		if res != Ok {
			return NeedMore, nil
		}
		if res := c.copyIntoLine(b); res == Fatal {
			return Fatal, newFatal(ErrCodeFieldTooLong, c.absOffset, "trailer line exceeds limit")
		}
		if b != lf {
			continue
		}
		line, _ := chomp(c.lineBytes())
		cls := d.trailer.Collect(line)
		c.resetLine()
		if cls == classTerminator {
			d.state = chunkedDone
			return Ok, nil
		}
	}
}
