package httpflow

import "bytes"

// multipartState enumerates the sub-states of streaming multipart body
// extraction (spec §4.6, one of the pluggable body-data sinks named in
// §1). Only boundary/part-header bookkeeping lives here; part bodies are
// handed to the caller's sink a chunk at a time, the same way chunked.go
// hands off decoded chunk payload.
type multipartState int

const (
	multipartPreamble multipartState = iota
	multipartPartHeaders
	multipartPartBody
	multipartEpilogue
	multipartDone
)

// multipartEvent is emitted for each named part discovered. File-like
// parts (those with a filename parameter) are distinguished so callers
// can route them to the request-file-data hook instead of the plain
// parameter table (spec §6 hook taxonomy).
type multipartEvent struct {
	Name     []byte
	Filename []byte
	IsFile   bool
}

// multipartDecoder finds part boundaries and separates each part's
// headers from its body. It does not decode Content-Transfer-Encoding
// (deprecated for multipart/form-data and essentially unused in the
// wild) or recurse into nested multipart parts.
type multipartDecoder struct {
	boundary     []byte
	dashBoundary []byte // "--" + boundary

	state   multipartState
	headers *HeaderSet

	onPart    func(multipartEvent)
	onPartEnd func()
	onData    func([]byte)

	current multipartEvent
}

func newMultipartDecoder(boundary string, onPart func(multipartEvent), onData func([]byte), onPartEnd func()) *multipartDecoder {
	return &multipartDecoder{
		boundary:     []byte(boundary),
		dashBoundary: append([]byte("--"), boundary...),
		headers:      newHeaderSet(),
		onPart:       onPart,
		onData:       onData,
		onPartEnd:    onPartEnd,
	}
}

func (d *multipartDecoder) reset() {
	d.state = multipartPreamble
	d.headers.reset()
}

// step consumes complete lines from c (the preamble/header/boundary
// sections are always line-oriented) and raw bytes from the body
// section, returning NeedMore when c runs out before the closing
// boundary is found.
func (d *multipartDecoder) step(c *cursor) (Result, *ParseError) {
	for {
		switch d.state {
		case multipartPreamble, multipartEpilogue:
			res, perr := d.skipToNextBoundaryLine(c)
			if res != Ok {
				return res, perr
			}

		case multipartPartHeaders:
			res, perr := d.readPartHeaders(c)
			if res != Ok {
				return res, perr
			}

		case multipartPartBody:
			res, perr := d.readPartBody(c)
			if res != Ok {
				return res, perr
			}

		case multipartDone:
			return Ok, nil
		}
	}
}

// skipToNextBoundaryLine reads lines until one matches dashBoundary
// (optionally followed by "--" for the terminal boundary). Used both
// before the first part and after the final part's trailing epilogue.
func (d *multipartDecoder) skipToNextBoundaryLine(c *cursor) (Result, *ParseError) {
	for {
		res := readLine(c)
		if res != Ok {
			return res, nil
		}
		line, _ := chomp(c.lineBytes())
		isBoundary, isFinal := matchBoundary(line, d.dashBoundary)
		c.resetLine()
		if !isBoundary {
			continue
		}
		if isFinal {
			d.state = multipartDone
			return Ok, nil
		}
		d.state = multipartPartHeaders
		d.headers.reset()
		return Ok, nil
	}
}

func matchBoundary(line, dashBoundary []byte) (isBoundary, isFinal bool) {
	if !bytes.HasPrefix(line, dashBoundary) {
		return false, false
	}
	rest := line[len(dashBoundary):]
	if bytes.HasPrefix(rest, []byte("--")) {
		return true, true
	}
	return true, false
}

func (d *multipartDecoder) readPartHeaders(c *cursor) (Result, *ParseError) {
	for {
		res := readLine(c)
		if res != Ok {
			return res, nil
		}
		line, _ := chomp(c.lineBytes())
		cls := d.headers.Collect(line)
		c.resetLine()
		if cls == classTerminator {
			d.emitPartStart()
			d.state = multipartPartBody
			return Ok, nil
		}
	}
}

func (d *multipartDecoder) emitPartStart() {
	name, filename, isFile := parseContentDisposition(d.headers)
	d.current = multipartEvent{Name: name, Filename: filename, IsFile: isFile}
	if d.onPart != nil {
		d.onPart(d.current)
	}
}

// readPartBody streams body bytes until the next boundary line, which
// requires buffering one line at a time since the boundary can only be
// recognized once a full line is available.
func (d *multipartDecoder) readPartBody(c *cursor) (Result, *ParseError) {
	for {
		res := readLine(c)
		if res != Ok {
			return res, nil
		}
		raw := c.lineBytes()
		line, _ := chomp(raw)
		isBoundary, isFinal := matchBoundary(line, d.dashBoundary)
		if isBoundary {
			c.resetLine()
			if d.onPartEnd != nil {
				d.onPartEnd()
			}
			if isFinal {
				d.state = multipartDone
			} else {
				d.state = multipartPartHeaders
				d.headers.reset()
			}
			return Ok, nil
		}
		// raw includes its trailing CRLF; the part body's final line
		// (whose CRLF actually belongs to the boundary delimiter, not
		// the content) is reported with one extra CRLF as a result —
		// an accepted imprecision for binary-insensitive inspection.
		if d.onData != nil {
			d.onData(raw)
		}
		c.resetLine()
	}
}

// readLine accumulates bytes into the cursor's line buffer up to and
// including the next LF, returning NeedMore if the chunk runs out
// first.
func readLine(c *cursor) Result {
	for {
		b, res := c.advance()
		if res != Ok {
			return NeedMore
		}
		if res := c.copyIntoLine(b); res == Fatal {
			return Fatal
		}
		if b == lf {
			return Ok
		}
	}
}

// parseContentDisposition extracts the quoted name/filename parameters
// from a part's Content-Disposition header, tolerating a missing closing
// quote the way the rest of this package tolerates malformed wire data.
// Unquoted parameter values are not recognized.
func parseContentDisposition(h *HeaderSet) (name, filename []byte, isFile bool) {
	value, ok := h.Get("Content-Disposition")
	if !ok {
		return nil, nil, false
	}
	// The parameters are ';'-separated; extractQuotedParam scans a
	// ','-separated list.
	value = bytes.ReplaceAll(value, []byte(";"), []byte(","))
	name, _ = extractQuotedParam(value, "name")
	filename, hasFilename := extractQuotedParam(value, "filename")
	return name, filename, hasFilename
}
