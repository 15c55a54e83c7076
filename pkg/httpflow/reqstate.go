package httpflow

import "bytes"

// reqState enumerates the request-side pipeline stages of spec §4.4, in
// the same textual order the spec lists them (IDLE, LINE, HEADERS,
// BODY_DETERMINE, BODY_IDENTITY, the chunked sub-states collapsed into
// one delegated stage, FINALIZE).
type reqState int

const (
	reqIdle reqState = iota
	reqLine
	reqHeaders
	reqBodyDetermine
	reqBodyIdentity
	reqBodyChunked
	reqBodyMultipart
	reqFinalize
)

// requestSide drives one Connection's request-direction state machine
// (spec §4.4). It generalizes the teacher's linear Parser.Parse
// (http11/parser.go), which blocked on an io.Reader until a whole
// request was available, into the resumable per-step design spec §5
// requires: each call to Feed advances as far as the supplied chunk
// allows and returns NeedMore at the point it ran out of bytes.
type requestSide struct {
	conn *Connection
	cur  *cursor

	state reqState
	tx    *Transaction

	chunked *chunkedDecoder

	contentRemaining int64
	ignoredLines     int
	headersTotalLen  int
	headStartOffset  int64
	sawNeedMoreInHead bool

	urlSink   *urlencodedSink
	multipart *multipartDecoder
	bodyCur   *cursor // secondary cursor multipart reads line structure from

	// transcoder converts RequestEncoding bytes to UTF-8 (spec §4.6
	// "internal and request encodings") before a cookie or form
	// parameter value is stored. It is bound only when RequestEncoding
	// differs from InternalEncoding; InternalEncoding is used for that
	// comparison only, and the output is UTF-8 whatever it names.
	// nil when the two configured encodings match or the requested
	// charset isn't recognized.
	transcoder Transcoder

	latched bool
	fatal   *ParseError
}

func newRequestSide(conn *Connection) *requestSide {
	r := &requestSide{
		conn:    conn,
		cur:     newCursor(conn.Config.RequestLineSoftLimit, conn.Config.RequestLineHardLimit),
		chunked: newChunkedDecoder(),
		bodyCur: newCursor(conn.Config.HeaderLineSoftLimit, conn.Config.HeaderLineHardLimit),
	}
	if conn.Config.RequestEncoding != "" && conn.Config.RequestEncoding != conn.Config.InternalEncoding {
		if t, ok := NewTranscoder(conn.Config.RequestEncoding); ok {
			r.transcoder = t
		}
	}
	return r
}

// transcodeValue converts b to UTF-8 if a transcoder is
// bound, returning b unchanged on a nil transcoder or a decode error
// (a passive inspector must still surface the value, not drop it).
func (r *requestSide) transcodeValue(b []byte) []byte {
	if r.transcoder == nil || len(b) == 0 {
		return b
	}
	out, err := r.transcoder.ToUTF8(nil, b)
	if err != nil {
		return b
	}
	return out
}

// Feed drives the state machine as far as data permits. closed signals
// that the outer driver has observed end-of-stream (spec §6
// "close(timestamp) ... zero-length feeds"); it only matters to states
// that otherwise have no other way to know the body has ended.
func (r *requestSide) Feed(data []byte, closed bool) (Result, *ParseError) {
	if r.latched {
		if len(data) == 0 {
			// Spec §5 "Cancellation": a latched direction still accepts
			// zero-length close calls; there is nothing further for the
			// request side to finalize, so this is a silent no-op.
			return NeedMore, nil
		}
		return Fatal, r.fatal
	}
	_ = closed
	r.cur.feed(data)
	for {
		var res Result
		var perr *ParseError
		switch r.state {
		case reqIdle:
			res, perr = r.stepIdle()
		case reqLine:
			res, perr = r.stepLine()
		case reqHeaders:
			res, perr = r.stepHeaders()
		case reqBodyDetermine:
			res, perr = r.stepBodyDetermine()
		case reqBodyIdentity:
			res, perr = r.stepBodyIdentity()
		case reqBodyChunked:
			res, perr = r.stepBodyChunked()
		case reqBodyMultipart:
			res, perr = r.stepBodyMultipart()
		case reqFinalize:
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
		// Ok: the state already advanced; loop to re-enter it (or
		// whatever it transitioned to) against any bytes still left in
		// the chunk.
	}
}

func (r *requestSide) stepIdle() (Result, *ParseError) {
	if _, ok := r.cur.peek(); !ok {
		return NeedMore, nil
	}
	r.tx = r.conn.allocateTransaction()
	r.tx.advance(ProgressRequestLine)
	r.ignoredLines = 0
	r.headersTotalLen = 0
	r.sawNeedMoreInHead = false
	r.headStartOffset = r.cur.absOffset
	r.cur.setLimits(r.conn.Config.RequestLineSoftLimit, r.conn.Config.RequestLineHardLimit)
	r.state = reqLine
	return Ok, nil
}

func (r *requestSide) stepLine() (Result, *ParseError) {
	for {
		b, res := r.cur.advance()
		if res != Ok {
			r.sawNeedMoreInHead = true
			return NeedMore, nil
		}
		if res := r.cur.copyIntoLine(b); res == Fatal {
			return Fatal, newFatal(ErrCodeFieldTooLong, r.cur.absOffset, "request line exceeds hard limit")
		}
		if b != lf {
			continue
		}
		if r.cur.softHit {
			r.conn.flagOnce(r.tx, FlagFieldLong, r.cur.absOffset, "request line exceeded soft limit")
		}
		line, _ := chomp(r.cur.lineBytes())
		r.cur.resetLine()

		trimmed := trimLWS(line)
		if len(trimmed) == 0 {
			// Ignorable leading blank/whitespace-only line (spec §4.4
			// LINE "ignorable (empty/whitespace leading lines)").
			r.ignoredLines++
			if r.conn.Config.Personality == PersonalityIIS {
				r.conn.flagOnce(r.tx, FlagRequestSmuggling, r.cur.absOffset, "leading blank line before request-line (IIS personality)")
			}
			continue
		}

		return r.parseRequestLine(line)
	}
}

func (r *requestSide) parseRequestLine(line []byte) (Result, *ParseError) {
	fields := splitFieldsN(line, 3)
	switch len(fields) {
	case 0:
		return Fatal, newFatal(ErrCodeFieldTooLong, r.cur.absOffset, "empty request line")
	case 1:
		r.tx.RequestMethod = append([]byte(nil), fields[0]...)
		r.tx.RequestURIRaw = nil
		r.tx.RequestProtoNum = 9
		r.tx.RequestIsSimple = true
	case 2:
		r.tx.RequestMethod = append([]byte(nil), fields[0]...)
		r.tx.RequestURIRaw = append([]byte(nil), fields[1]...)
		r.tx.RequestProtoNum = 9
		r.tx.RequestIsSimple = true
	default:
		r.tx.RequestMethod = append([]byte(nil), fields[0]...)
		r.tx.RequestURIRaw = append([]byte(nil), fields[1]...)
		r.tx.RequestProtocol = append([]byte(nil), fields[2]...)
		r.tx.RequestProtoNum = parseProtocol(fields[2])
	}
	r.tx.RequestMethodID = ParseMethodID(r.tx.RequestMethod)

	if err := r.conn.Config.Hooks.Dispatch(HookRequestLine, r.tx, line); err != nil {
		return Fatal, toParseError(err, r.cur.absOffset)
	}

	if r.tx.RequestMethodID == MethodCONNECT {
		r.tx.RequestURI = ParseAuthority(r.tx.RequestURIRaw)
	} else {
		r.tx.RequestURI = ParseURI(r.tx.RequestURIRaw)
	}

	if r.tx.RequestIsSimple {
		// HTTP/0.9: no headers, no body (spec §4.4 "for HTTP/0.9,
		// directly to a body-less finalize").
		r.state = reqFinalize
		return Ok, nil
	}

	r.cur.setLimits(r.conn.Config.HeaderLineSoftLimit, r.conn.Config.HeaderLineHardLimit)
	r.state = reqHeaders
	return Ok, nil
}

func (r *requestSide) stepHeaders() (Result, *ParseError) {
	for {
		b, res := r.cur.advance()
		if res != Ok {
			r.sawNeedMoreInHead = true
			return NeedMore, nil
		}
		if res := r.cur.copyIntoLine(b); res == Fatal {
			return Fatal, newFatal(ErrCodeFieldTooLong, r.cur.absOffset, "header line exceeds hard limit")
		}
		if b != lf {
			continue
		}
		if r.cur.softHit {
			r.conn.flagOnce(r.tx, FlagFieldLong, r.cur.absOffset, "header line exceeded soft limit")
		}
		line, _ := chomp(r.cur.lineBytes())
		r.headersTotalLen += len(line)
		cls := r.tx.RequestHeaders.Collect(line)
		r.cur.resetLine()

		if r.tx.RequestHeaders.lastCollectWasOrphanFold {
			r.conn.flagOnce(r.tx, FlagInvalidFolding, r.cur.absOffset, "folded header line with no pending header")
		}

		if r.headersTotalLen >= r.conn.Config.HeadersTotalHardLimit {
			return Fatal, newFatal(ErrCodeFieldTooLong, r.cur.absOffset, "request headers exceed total hard limit")
		}
		if r.headersTotalLen >= r.conn.Config.HeadersTotalSoftLimit {
			r.conn.flagOnce(r.tx, FlagFieldLong, r.cur.absOffset, "request headers exceeded total soft limit")
		}

		if cls != classTerminator {
			continue
		}
		return r.finishHeaders()
	}
}

func (r *requestSide) finishHeaders() (Result, *ParseError) {
	r.mergeHeaderLineFlags()

	if r.sawNeedMoreInHead {
		r.conn.flagOnce(r.tx, FlagMultiPacketHead, r.cur.absOffset, "request head spanned more than one feed call")
	}

	if err := r.conn.Config.Hooks.Dispatch(HookRequestHeaders, r.tx, nil); err != nil {
		return Fatal, toParseError(err, r.cur.absOffset)
	}

	if hostHeader, ok := r.tx.RequestHeaders.Get("Host"); ok && r.tx.RequestURI != nil {
		NormalizeURI(r.tx.RequestURI, hostHeader, r.conn.LocalPort, r.conn.RemotePort, r.conn.Config)
		if r.tx.RequestURI.Flags.Has(FlagAmbiguousHost) {
			r.conn.flagOnce(r.tx, FlagAmbiguousHost, r.cur.absOffset, "URI host disagrees with Host header")
		}
	} else if r.tx.RequestURI != nil {
		NormalizeURI(r.tx.RequestURI, nil, r.conn.LocalPort, r.conn.RemotePort, r.conn.Config)
	}

	if r.tx.RequestURI != nil {
		pathFlags := ApplyPathNormalization(r.tx.RequestURI, r.conn.Config)
		if pathFlags.Has(FlagPathRawNul) {
			if r.conn.Config.PathRejectNul {
				return Fatal, newFatal(ErrCodeInvalidPath, r.cur.absOffset, "raw NUL byte in request path")
			}
			r.conn.flagOnce(r.tx, FlagPathRawNul, r.cur.absOffset, "raw NUL byte in request path")
		}
		if pathFlags.Has(FlagPathEncodedNul) {
			if r.conn.Config.PathRejectNul {
				return Fatal, newFatal(ErrCodeInvalidPath, r.cur.absOffset, "%00-encoded NUL in request path")
			}
			r.conn.flagOnce(r.tx, FlagPathEncodedNul, r.cur.absOffset, "%00-encoded NUL in request path")
		}
		if pathFlags.Has(FlagPathInvalidEncoding) {
			if r.conn.Config.PathRejectInvalidEncoding {
				return Fatal, newFatal(ErrCodeInvalidPath, r.cur.absOffset, "malformed percent-escape in request path")
			}
			r.conn.flagOnce(r.tx, FlagPathInvalidEncoding, r.cur.absOffset, "malformed percent-escape in request path")
		}
	}

	if err := r.conn.Config.Hooks.Dispatch(HookRequestURINormalize, r.tx, nil); err != nil {
		return Fatal, toParseError(err, r.cur.absOffset)
	}

	if r.conn.Config.CookieParsingEnabled {
		if cookieHeader, ok := r.tx.RequestHeaders.Get("Cookie"); ok {
			r.tx.RequestCookies = ParseCookieHeader(cookieHeader, r.conn.Config.CookieParamProcessor)
			if r.transcoder != nil {
				for i := range r.tx.RequestCookies {
					r.tx.RequestCookies[i].Value = r.transcodeValue(r.tx.RequestCookies[i].Value)
				}
			}
		}
	}
	if r.conn.Config.AuthParsingEnabled {
		if authHeader, ok := r.tx.RequestHeaders.Get("Authorization"); ok {
			r.tx.RequestAuth = ParseAuthorization(authHeader)
		}
	}

	r.tx.advance(ProgressRequestBody)
	r.state = reqBodyDetermine
	return Ok, nil
}

// mergeHeaderLineFlags ORs every raw header line's per-line flags into
// the owning transaction, logging each category once (spec §7 "Soft
// anomalies ... log event once per transaction per category").
func (r *requestSide) mergeHeaderLineFlags() {
	mergeHeaderSetFlags(r.conn, r.tx, r.tx.RequestHeaders, r.cur.absOffset)
}

func (r *requestSide) stepBodyDetermine() (Result, *ParseError) {
	hasCL, hasTE, transfer, contentLength := determineRequestTransfer(r.tx.RequestHeaders)

	if hasCL && hasTE {
		r.conn.flagOnce(r.tx, FlagRequestSmuggling, r.cur.absOffset, "both Content-Length and Transfer-Encoding present")
	}

	r.tx.RequestTransfer = transfer
	r.bindBodySink()

	switch transfer {
	case TransferChunked:
		r.chunked.reset()
		r.chunked.trailer = r.tx.RequestTrailers
		r.state = reqBodyChunked
		if r.multipart != nil {
			r.state = reqBodyMultipart
		}
		return Ok, nil
	case TransferIdentity:
		r.contentRemaining = contentLength
		r.tx.RequestEntityLen = contentLength
		if contentLength == 0 {
			r.state = reqFinalize
			return Ok, nil
		}
		r.state = reqBodyIdentity
		if r.multipart != nil {
			r.state = reqBodyMultipart
		}
		return Ok, nil
	default:
		r.state = reqFinalize
		return Ok, nil
	}
}

// determineRequestTransfer implements spec §4.4 BODY_DETERMINE.
func determineRequestTransfer(h *HeaderSet) (hasCL, hasTE bool, transfer TransferCoding, contentLength int64) {
	teValue, hasTE := h.Get("Transfer-Encoding")
	clValue, hasCL := h.Get("Content-Length")

	if hasTE && bytes.Contains(bytes.ToLower(teValue), []byte("chunked")) {
		return hasCL, hasTE, TransferChunked, 0
	}
	if hasCL {
		v := parsePositiveIntegerWhitespace(clValue, 10)
		if v >= 0 {
			return hasCL, hasTE, TransferIdentity, v
		}
	}
	return hasCL, hasTE, TransferNone, 0
}

// bindBodySink wires a urlencoded or multipart body-data sink for this
// transaction's request body, based on Content-Type (spec §4.6
// "URL-encoded bodies", "Multipart/form-data").
func (r *requestSide) bindBodySink() {
	r.urlSink = nil
	r.multipart = nil

	ctValue, ok := r.tx.RequestHeaders.Get("Content-Type")
	if !ok {
		return
	}
	mediaType, params := parseContentType(ctValue)

	switch mediaType {
	case "application/x-www-form-urlencoded":
		r.urlSink = newURLEncodedSink(r.conn.Config.CookieParamProcessor, func(name, value []byte) {
			r.tx.RequestParams = append(r.tx.RequestParams, CookieParam{Name: name, Value: r.transcodeValue(value)})
		})
	case "multipart/form-data":
		boundary, ok := params["boundary"]
		if !ok {
			return
		}
		var fieldName []byte
		var fieldValue []byte
		var isFile bool
		files := newFileExtractor(r.conn.Config.TempDir)
		r.multipart = newMultipartDecoder(string(boundary),
			func(ev multipartEvent) {
				fieldName = ev.Name
				fieldValue = fieldValue[:0]
				isFile = ev.IsFile
				if isFile {
					files.begin(ev.Name, ev.Filename)
					r.conn.Config.Hooks.Dispatch(HookRequestFileData, r.tx, nil)
				}
			},
			func(data []byte) {
				if isFile {
					files.write(data)
					r.conn.Config.Hooks.Dispatch(HookRequestFileData, r.tx, data)
					return
				}
				fieldValue = append(fieldValue, data...)
			},
			func() {
				if isFile {
					if ef := files.end(); ef != nil {
						r.tx.RequestFiles = append(r.tx.RequestFiles, *ef)
					}
					return
				}
				r.tx.RequestParams = append(r.tx.RequestParams, CookieParam{
					Name:  append([]byte(nil), fieldName...),
					Value: r.transcodeValue(append([]byte(nil), fieldValue...)),
				})
			},
		)
		r.multipart.reset()
	}
}

func (r *requestSide) stepBodyIdentity() (Result, *ParseError) {
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
	r.state = reqFinalize
	return Ok, nil
}

func (r *requestSide) stepBodyChunked() (Result, *ParseError) {
	res, perr := r.chunked.step(r.cur, func(data []byte) {
		r.dispatchBodyData(data)
	})
	if res != Ok {
		return res, perr
	}
	if r.chunked.flags.Has(FlagInvalidChunking) {
		r.conn.flagOnce(r.tx, FlagInvalidChunking, r.cur.absOffset, "malformed chunked request body")
	}
	r.tx.RequestEntityLen = int64(r.chunked.totalRead)
	if r.tx.RequestTrailers.Len() > 0 {
		r.tx.advance(ProgressRequestTrailer)
		if err := r.conn.Config.Hooks.Dispatch(HookRequestTrailer, r.tx, nil); err != nil {
			return Fatal, toParseError(err, r.cur.absOffset)
		}
	}
	r.state = reqFinalize
	return Ok, nil
}

func (r *requestSide) stepBodyMultipart() (Result, *ParseError) {
	if r.tx.RequestTransfer == TransferChunked {
		res, perr := r.chunked.step(r.cur, func(data []byte) {
			r.bodyCur.feed(data)
			r.multipart.step(r.bodyCur)
			r.dispatchBodyData(data)
		})
		if res != Ok {
			return res, perr
		}
		r.state = reqFinalize
		return Ok, nil
	}

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
		r.bodyCur.feed(data)
		r.multipart.step(r.bodyCur)
		r.dispatchBodyData(data)
	}
	r.state = reqFinalize
	return Ok, nil
}

// dispatchBodyData feeds raw request-body bytes into any bound
// urlencoded sink and also surfaces them to the generic
// request-body-data hook, so a caller-registered raw observer still
// sees every byte regardless of internal parsing (spec §4.6 "a streaming
// parser is attached to the request-body hook").
func (r *requestSide) dispatchBodyData(data []byte) {
	if r.urlSink != nil {
		r.urlSink.Write(data)
	}
	r.conn.Config.Hooks.Dispatch(HookRequestBodyData, r.tx, data)
}

func (r *requestSide) stepFinalize() (Result, *ParseError) {
	if r.urlSink != nil {
		r.urlSink.Close()
		r.urlSink.release()
		r.urlSink = nil
	}
	if err := r.conn.Config.Hooks.Dispatch(HookRequestComplete, r.tx, nil); err != nil {
		return Fatal, toParseError(err, r.cur.absOffset)
	}
	r.tx.advance(ProgressWaitingForResponse)
	if len(r.conn.transactions) > r.conn.outNextTxIndex+1 {
		r.conn.Pipelined = true
		r.tx.Pipelined = true
	}
	r.tx = nil
	r.state = reqIdle
	return Ok, nil
}

// toParseError wraps a hook-returned error as a ParseError so Fatal
// results always carry the structured diagnostic spec §7 expects, even
// when the error originated from caller code rather than this package.
func toParseError(err error, offset int64) *ParseError {
	if pe, ok := err.(*ParseError); ok {
		return pe
	}
	return newFatal(ErrCodeMemory, offset, "hook error: %v", err)
}

// mergeHeaderSetFlags is shared by the request and response sides
// (spec §7 "Soft anomalies ... recorded on the transaction").
func mergeHeaderSetFlags(conn *Connection, tx *Transaction, h *HeaderSet, offset int64) {
	for i := range h.Lines {
		line := &h.Lines[i]
		if line.Flags.Has(FlagFieldFolded) {
			conn.flagOnce(tx, FlagFieldFolded, offset, "header line folded via obsolete line-folding")
		}
		if line.Flags.Has(FlagFieldNulByte) {
			conn.flagOnce(tx, FlagFieldNulByte, offset, "header line contains NUL byte(s)")
		}
		if line.Flags.Has(FlagFieldInvalid) {
			conn.flagOnce(tx, FlagFieldInvalid, offset, "header name is not a valid token")
		}
		if line.Flags.Has(FlagFieldUnparseable) {
			conn.flagOnce(tx, FlagFieldUnparseable, offset, "header line has no colon")
		}
		if line.Flags.Has(FlagFieldRepeated) {
			conn.flagOnce(tx, FlagFieldRepeated, offset, "header name repeated; values comma-joined")
		}
	}
}
