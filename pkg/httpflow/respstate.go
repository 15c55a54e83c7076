package httpflow

import "bytes"

// respState enumerates the response-side pipeline stages of spec §4.5,
// symmetric to reqState with the addition of a dedicated
// close-delimited body stage.
type respState int

const (
	respIdle respState = iota
	respLine
	respHeaders
	respBodyDetermine
	respBodyIdentity
	respBodyChunked
	respBodyCloseDelimited
	respFinalize
)

// responseSide drives one Connection's response-direction state
// machine (spec §4.5). It pulls the next waiting transaction off the
// connection's FIFO rather than owning its own (spec §4.6 "Transaction
// matching").
type responseSide struct {
	conn *Connection
	cur  *cursor

	state respState
	tx    *Transaction

	chunked          *chunkedDecoder
	contentRemaining int64

	sawNeedMoreInHead bool
	streamClosed      bool

	decompressor Decompressor

	latched bool
	fatal   *ParseError
}

func newResponseSide(conn *Connection) *responseSide {
	return &responseSide{
		conn:    conn,
		cur:     newCursor(conn.Config.ResponseLineSoftLimit, conn.Config.ResponseLineHardLimit),
		chunked: newChunkedDecoder(),
	}
}

func (r *responseSide) Feed(data []byte, closed bool) (Result, *ParseError) {
	if r.latched {
		if len(data) == 0 {
			return NeedMore, nil
		}
		return Fatal, r.fatal
	}
	r.streamClosed = closed
	r.cur.feed(data)
	for {
		var res Result
		var perr *ParseError
		switch r.state {
		case respIdle:
			res, perr = r.stepIdle()
		case respLine:
			res, perr = r.stepLine()
		case respHeaders:
			res, perr = r.stepHeaders()
		case respBodyDetermine:
			res, perr = r.stepBodyDetermine()
		case respBodyIdentity:
			res, perr = r.stepBodyIdentity()
		case respBodyChunked:
			res, perr = r.stepBodyChunked()
		case respBodyCloseDelimited:
			res, perr = r.stepBodyCloseDelimited()
		case respFinalize:
			res, perr = r.stepFinalize()
		}
		switch res {
		case Fatal:
			r.latched = true
			r.fatal = perr
			r.conn.recordFatal(perr)
			return Fatal, perr
		case NeedMore:
			return NeedMore, nil
		}
	}
}

func (r *responseSide) stepIdle() (Result, *ParseError) {
	_, havePeek := r.cur.peek()
	if !havePeek {
		return NeedMore, nil
	}

	idx := r.conn.outNextTxIndex
	tx := r.conn.Transaction(idx)
	if tx == nil {
		return Fatal, newFatal(ErrCodeDesyncedResponse, r.cur.absOffset, "no matching request transaction at index %d", idx)
	}
	r.tx = tx

	if len(r.conn.transactions) > idx+1 {
		r.conn.Pipelined = true
		tx.Pipelined = true
	}

	tx.advance(ProgressResponseLine)
	r.sawNeedMoreInHead = false
	if err := r.conn.Config.Hooks.Dispatch(HookResponseStart, tx, nil); err != nil {
		return Fatal, toParseError(err, r.cur.absOffset)
	}

	if tx.RequestIsSimple {
		// HTTP/0.9: "response treated as body-only from the first byte
		// with no status line or headers" (spec §4.5, scenario 5).
		tx.ResponseProtoNum = -1
		r.state = respBodyCloseDelimited
		return Ok, nil
	}

	r.cur.setLimits(r.conn.Config.ResponseLineSoftLimit, r.conn.Config.ResponseLineHardLimit)
	r.state = respLine
	return Ok, nil
}

func (r *responseSide) stepLine() (Result, *ParseError) {
	for {
		b, res := r.cur.advance()
		if res != Ok {
			r.sawNeedMoreInHead = true
			return NeedMore, nil
		}
		if res := r.cur.copyIntoLine(b); res == Fatal {
			return Fatal, newFatal(ErrCodeFieldTooLong, r.cur.absOffset, "status line exceeds hard limit")
		}
		if b != lf {
			continue
		}
		if r.cur.softHit {
			r.conn.flagOnce(r.tx, FlagFieldLong, r.cur.absOffset, "status line exceeded soft limit")
		}
		line, _ := chomp(r.cur.lineBytes())
		r.cur.resetLine()
		if len(trimLWS(line)) == 0 {
			// Ignorable blank line before the status line, such as the
			// empty line that ends a headerless interim 1xx response.
			continue
		}
		return r.parseStatusLine(line)
	}
}

func (r *responseSide) parseStatusLine(line []byte) (Result, *ParseError) {
	fields := splitFieldsN(line, 3)

	var protoField, codeField, reasonField []byte
	if len(fields) > 0 {
		protoField = fields[0]
	}
	if len(fields) > 1 {
		codeField = fields[1]
	}
	if len(fields) > 2 {
		reasonField = fields[2]
	}

	r.tx.ResponseProtocol = append([]byte(nil), protoField...)
	r.tx.ResponseProtoNum = parseProtocol(protoField)
	r.tx.ResponseReason = append([]byte(nil), reasonField...)
	if !allText(reasonField) {
		r.conn.flagOnce(r.tx, FlagStatusLineInvalid, r.cur.absOffset, "reason phrase contains a non-TEXT byte")
	}

	status := parsePositiveIntegerWhitespace(codeField, 10)
	if status < 100 || status > 999 {
		r.conn.flagOnce(r.tx, FlagStatusLineInvalid, r.cur.absOffset, "status code outside [100,999]")
		if status < 0 {
			status = 0
		}
	}
	r.tx.ResponseStatus = int(status)

	if err := r.conn.Config.Hooks.Dispatch(HookResponseLine, r.tx, line); err != nil {
		return Fatal, toParseError(err, r.cur.absOffset)
	}

	if r.tx.ResponseStatus >= 100 && r.tx.ResponseStatus <= 199 && r.tx.RequestMethodID != MethodHEAD {
		r.tx.ResponseHeaders.reset()
		r.tx.Seen100Continue++
		if r.tx.Seen100Continue > 1 {
			return Fatal, newFatal(ErrCodeDuplicate100Continue, r.cur.absOffset, "second interim 1xx response on the same transaction")
		}
		r.cur.setLimits(r.conn.Config.ResponseLineSoftLimit, r.conn.Config.ResponseLineHardLimit)
		r.state = respLine
		return Ok, nil
	}

	r.cur.setLimits(r.conn.Config.HeaderLineSoftLimit, r.conn.Config.HeaderLineHardLimit)
	r.state = respHeaders
	return Ok, nil
}

func (r *responseSide) stepHeaders() (Result, *ParseError) {
	for {
		b, res := r.cur.advance()
		if res != Ok {
			r.sawNeedMoreInHead = true
			return NeedMore, nil
		}
		if res := r.cur.copyIntoLine(b); res == Fatal {
			return Fatal, newFatal(ErrCodeFieldTooLong, r.cur.absOffset, "response header line exceeds hard limit")
		}
		if b != lf {
			continue
		}
		if r.cur.softHit {
			r.conn.flagOnce(r.tx, FlagFieldLong, r.cur.absOffset, "response header line exceeded soft limit")
		}
		line, _ := chomp(r.cur.lineBytes())
		cls := r.tx.ResponseHeaders.Collect(line)
		r.cur.resetLine()

		if r.tx.ResponseHeaders.lastCollectWasOrphanFold {
			r.conn.flagOnce(r.tx, FlagInvalidFolding, r.cur.absOffset, "folded response header with no pending header")
		}

		if cls != classTerminator {
			continue
		}
		return r.finishHeaders()
	}
}

func (r *responseSide) finishHeaders() (Result, *ParseError) {
	mergeHeaderSetFlags(r.conn, r.tx, r.tx.ResponseHeaders, r.cur.absOffset)

	if r.sawNeedMoreInHead {
		r.conn.flagOnce(r.tx, FlagMultiPacketHead, r.cur.absOffset, "response head spanned more than one feed call")
	}

	if err := r.conn.Config.Hooks.Dispatch(HookResponseHeaders, r.tx, nil); err != nil {
		return Fatal, toParseError(err, r.cur.absOffset)
	}

	r.tx.advance(ProgressResponseBody)
	r.state = respBodyDetermine
	return Ok, nil
}

func (r *responseSide) stepBodyDetermine() (Result, *ParseError) {
	if noResponseBodyExpected(r.tx.ResponseStatus, r.tx.RequestMethodID) {
		r.tx.ResponseTransfer = TransferNone
		r.state = respFinalize
		return Ok, nil
	}

	teValue, hasTE := r.tx.ResponseHeaders.Get("Transfer-Encoding")
	if hasTE && bytes.Contains(bytes.ToLower(teValue), []byte("chunked")) {
		r.tx.ResponseTransfer = TransferChunked
		r.chunked.reset()
		r.chunked.trailer = r.tx.ResponseTrailers
		r.bindDecompressor()
		r.state = respBodyChunked
		return Ok, nil
	}

	if clValue, ok := r.tx.ResponseHeaders.Get("Content-Length"); ok {
		v := parsePositiveIntegerWhitespace(clValue, 10)
		if v >= 0 {
			r.tx.ResponseTransfer = TransferIdentity
			r.tx.ResponseEntityLen = v
			r.contentRemaining = v
			r.bindDecompressor()
			if v == 0 {
				r.state = respFinalize
				return Ok, nil
			}
			r.state = respBodyIdentity
			return Ok, nil
		}
	}

	if ctValue, ok := r.tx.ResponseHeaders.Get("Content-Type"); ok {
		mediaType, _ := parseContentType(ctValue)
		if mediaType == "multipart/byteranges" {
			r.conn.appendLog(LogLevelError, 0, r.tx.Index, r.cur.absOffset,
				"multipart/byteranges response body is unsupported; falling back to close-delimited framing")
		}
	}

	r.tx.ResponseTransfer = TransferNone
	r.bindDecompressor()
	r.state = respBodyCloseDelimited
	return Ok, nil
}

// bindDecompressor instantiates a streaming Decompressor when response
// decompression is enabled and Content-Encoding names a supported
// coding (spec §4.5 "Decompression").
func (r *responseSide) bindDecompressor() {
	r.decompressor = nil
	if !r.conn.Config.ResponseDecompressionEnabled {
		return
	}
	ceValue, ok := r.tx.ResponseHeaders.Get("Content-Encoding")
	if !ok {
		return
	}
	ce := bytes.ToLower(trimLWS(ceValue))
	sink := func(data []byte) {
		r.conn.Config.Hooks.Dispatch(HookResponseBodyData, r.tx, data)
	}
	switch {
	case bytesEqualFold(ce, []byte("gzip")), bytesEqualFold(ce, []byte("x-gzip")):
		r.tx.ResponseEncoding = ContentEncodingGzip
		r.decompressor = NewGzipDecompressor(sink)
	case bytesEqualFold(ce, []byte("deflate")), bytesEqualFold(ce, []byte("x-deflate")):
		r.tx.ResponseEncoding = ContentEncodingDeflate
		r.decompressor = NewDeflateDecompressor(sink)
	}
}

func (r *responseSide) stepBodyIdentity() (Result, *ParseError) {
	for r.contentRemaining > 0 {
		avail := r.cur.remaining()
		if avail == 0 {
			return NeedMore, nil
		}
		want := r.contentRemaining
		if int64(avail) < want {
			want = int64(avail)
		}
		data := r.cur.skip(int(want))
		r.contentRemaining -= int64(len(data))
		r.dispatchBodyData(data)
	}
	r.teardownDecompressor()
	r.state = respFinalize
	return Ok, nil
}

func (r *responseSide) stepBodyChunked() (Result, *ParseError) {
	res, perr := r.chunked.step(r.cur, func(data []byte) {
		r.dispatchBodyData(data)
	})
	if res != Ok {
		return res, perr
	}
	if r.chunked.flags.Has(FlagInvalidChunking) {
		r.conn.flagOnce(r.tx, FlagInvalidChunking, r.cur.absOffset, "malformed chunked response body")
	}
	r.tx.ResponseEntityLen = int64(r.chunked.totalRead)
	r.teardownDecompressor()
	if r.tx.ResponseTrailers.Len() > 0 {
		r.tx.advance(ProgressResponseTrailer)
		if err := r.conn.Config.Hooks.Dispatch(HookResponseTrailer, r.tx, nil); err != nil {
			return Fatal, toParseError(err, r.cur.absOffset)
		}
	}
	r.state = respFinalize
	return Ok, nil
}

// stepBodyCloseDelimited forwards whatever bytes are available and
// never completes on its own — only an explicit stream-closed signal
// (spec §4.5 "Close-delimited: when the outer driver signals
// stream-closed with a zero-length chunk, finalize; otherwise always
// return NEED_MORE").
func (r *responseSide) stepBodyCloseDelimited() (Result, *ParseError) {
	if avail := r.cur.remaining(); avail > 0 {
		data := r.cur.skip(avail)
		r.tx.ResponseEntityLen += int64(len(data))
		r.dispatchBodyData(data)
	}
	if r.streamClosed {
		r.teardownDecompressor()
		r.state = respFinalize
		return Ok, nil
	}
	return NeedMore, nil
}

func (r *responseSide) dispatchBodyData(data []byte) {
	if r.decompressor != nil {
		if _, err := r.decompressor.Write(data); err != nil {
			r.conn.flagOnce(r.tx, FlagDecompressionError, r.cur.absOffset, err.Error())
		}
		return
	}
	r.conn.Config.Hooks.Dispatch(HookResponseBodyData, r.tx, data)
}

// teardownDecompressor flushes and destroys the decompressor, matching
// spec §4.5's "sentinel empty data event flushes the decompressor and
// tears it down" and §5's "Memory discipline" (decompressor owns its
// window buffer and must be destroyed on end-of-body).
func (r *responseSide) teardownDecompressor() {
	if r.decompressor == nil {
		return
	}
	if err := r.decompressor.Close(); err != nil {
		r.conn.flagOnce(r.tx, FlagDecompressionError, r.cur.absOffset, err.Error())
	}
	r.decompressor = nil
}

func (r *responseSide) stepFinalize() (Result, *ParseError) {
	if err := r.conn.Config.Hooks.Dispatch(HookResponseComplete, r.tx, nil); err != nil {
		return Fatal, toParseError(err, r.cur.absOffset)
	}
	r.tx.advance(ProgressDone)
	r.conn.outNextTxIndex++
	if r.conn.Config.AutoDestroyTransaction {
		r.conn.detachTransaction(r.tx.Index)
	}
	r.tx = nil
	r.state = respIdle
	return Ok, nil
}
