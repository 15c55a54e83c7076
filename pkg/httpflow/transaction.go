package httpflow

// Progress is the monotonic lifecycle stage of one transaction (spec §3
// Transaction "Progress"). It only ever moves forward; a request and its
// response advance the same Progress value since both sides share one
// Transaction.
type Progress int

const (
	ProgressNew Progress = iota
	ProgressRequestLine
	ProgressRequestHeaders
	ProgressRequestBody
	ProgressRequestTrailer
	ProgressWaitingForResponse
	ProgressResponseLine
	ProgressResponseHeaders
	ProgressResponseBody
	ProgressResponseTrailer
	ProgressDone
)

func (p Progress) String() string {
	switch p {
	case ProgressNew:
		return "new"
	case ProgressRequestLine:
		return "request-line"
	case ProgressRequestHeaders:
		return "request-headers"
	case ProgressRequestBody:
		return "request-body"
	case ProgressRequestTrailer:
		return "request-trailer"
	case ProgressWaitingForResponse:
		return "wait"
	case ProgressResponseLine:
		return "response-line"
	case ProgressResponseHeaders:
		return "response-headers"
	case ProgressResponseBody:
		return "response-body"
	case ProgressResponseTrailer:
		return "response-trailer"
	case ProgressDone:
		return "done"
	default:
		return "unknown"
	}
}

// TransferCoding enumerates the request/response transfer-coding the
// framing decision settled on (spec §3 Transaction).
type TransferCoding int

const (
	TransferNone TransferCoding = iota
	TransferIdentity
	TransferChunked
)

// ContentEncoding enumerates the Content-Encoding the decompressor
// wiring recognized (spec §3 Transaction; spec §4.5 names gzip/deflate
// as the supported codings).
type ContentEncoding int

const (
	ContentEncodingNone ContentEncoding = iota
	ContentEncodingGzip
	ContentEncodingDeflate
)

// Transaction is one request/response exchange on a Connection (spec §3
// "Transaction"). Index is its stable slot in the owning Connection's
// transaction list — nullable so a transaction can be detached from a
// live connection without shifting everyone else's index (spec §3
// "stable index (nullable slots for detachment)").
type Transaction struct {
	Index int

	Progress Progress
	Flags    Flags

	// Request side.
	RequestMethod     []byte
	RequestMethodID   uint8
	RequestURIRaw     []byte
	RequestURI        *URI
	RequestProtocol   []byte
	RequestProtoNum   int
	RequestIsSimple   bool // HTTP/0.9 two-token request line
	RequestHeaders    *HeaderSet
	RequestTransfer   TransferCoding
	RequestEncoding   ContentEncoding
	RequestMsgLength  int64 // post-transform (decoded) length
	RequestEntityLen  int64 // pre-transform (wire) length
	RequestCookies    []CookieParam
	RequestAuth       AuthParams
	RequestParams     []CookieParam
	RequestTrailers   *HeaderSet
	RequestFiles      []ExtractedFile

	// Response side.
	ResponseProtocol  []byte
	ResponseProtoNum  int
	ResponseStatus    int
	ResponseReason    []byte
	ResponseHeaders   *HeaderSet
	ResponseTransfer  TransferCoding
	ResponseEncoding  ContentEncoding
	ResponseMsgLength int64
	ResponseEntityLen int64
	ResponseTrailers  *HeaderSet

	// Seen100Continue counts interim 1xx responses discarded before the
	// final status line (spec §4.5 "Interim 100-continue").
	Seen100Continue int

	// Pipelined reports whether this transaction overlapped another
	// outstanding one: it is set when this request completes while an
	// earlier response is still pending, and when this response starts
	// while a later request is already waiting.
	Pipelined bool
}

func newTransaction(index int) *Transaction {
	return &Transaction{
		Index:            index,
		RequestHeaders:   newHeaderSet(),
		ResponseHeaders:  newHeaderSet(),
		RequestTrailers:  newHeaderSet(),
		ResponseTrailers: newHeaderSet(),
		RequestProtoNum:  -1,
		ResponseProtoNum: -1,
	}
}

// advance moves Progress forward and never backward, matching spec §3's
// monotonic invariant. Calling it with a stage behind the current one is
// a caller bug, not a runtime error, so it's a silent no-op: the state
// machines that call it only ever step forward by construction.
func (t *Transaction) advance(to Progress) {
	if to > t.Progress {
		t.Progress = to
	}
}

// noResponseBodyExpected implements spec §4.5's no-body rules: 1xx,
// 204, 304, and any response to a HEAD request never carry a body
// regardless of framing headers present.
func noResponseBodyExpected(status int, requestMethodID uint8) bool {
	if requiresNoResponseBody(requestMethodID) {
		return true
	}
	if status >= 100 && status < 200 {
		return true
	}
	return status == 204 || status == 304
}
