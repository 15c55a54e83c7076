package httpflow

import (
	"net/url"

	"github.com/valyala/bytebufferpool"
)

// urlencodedSink streams an application/x-www-form-urlencoded body,
// scanning '&'/'=' boundaries across arbitrary chunk boundaries and
// handing each decoded name/value pair to the emit callback it was built
// with (which deposits it into the transaction's parameter table). It is
// one of the pluggable body-data sinks spec §1 calls out as an external
// collaborator.
type urlencodedSink struct {
	piece *bytebufferpool.ByteBuffer
	key   []byte
	inKey bool
	proc  ParamProcessor
	emit  func(name, value []byte)
}

func newURLEncodedSink(proc ParamProcessor, emit func(name, value []byte)) *urlencodedSink {
	if proc == nil {
		proc = DefaultParamProcessor
	}
	return &urlencodedSink{
		piece: bytebufferpool.Get(),
		inKey: true,
		proc:  proc,
		emit:  emit,
	}
}

func (s *urlencodedSink) release() {
	bytebufferpool.Put(s.piece)
	s.piece = nil
}

// Write feeds a contiguous slice of raw (still percent-encoded) body
// bytes. It may be called any number of times as chunks arrive.
func (s *urlencodedSink) Write(p []byte) {
	for _, b := range p {
		switch b {
		case '=':
			if s.inKey {
				s.key = append(s.key[:0], s.piece.B...)
				s.piece.Reset()
				s.inKey = false
				continue
			}
		case '&':
			s.flushPair()
			continue
		}
		s.piece.WriteByte(b)
	}
}

// Close flushes any pending key/value pair (a body with no trailing '&'
// still needs its last pair emitted).
func (s *urlencodedSink) Close() {
	if s.piece.Len() > 0 || len(s.key) > 0 || !s.inKey {
		s.flushPair()
	}
}

func (s *urlencodedSink) flushPair() {
	var name, value []byte
	if s.inKey {
		// No '=' was seen in this segment: it's a bare name with an
		// empty value.
		name = decodeFormComponent(s.piece.B)
	} else {
		name = decodeFormComponent(s.key)
		value = decodeFormComponent(s.piece.B)
	}
	s.piece.Reset()
	s.key = s.key[:0]
	s.inKey = true

	name, value = s.proc.Process(name, value)
	s.emit(name, value)
}

// decodeFormComponent percent-decodes and converts '+' to space, the
// application/x-www-form-urlencoded convention. A component containing a
// malformed percent escape is returned literally as a whole (no escape
// in it is decoded and '+' stays '+') rather than rejected, since a
// passive inspector must still surface whatever a lenient origin server
// would accept.
func decodeFormComponent(raw []byte) []byte {
	decoded, err := url.QueryUnescape(string(raw))
	if err != nil {
		return append([]byte(nil), raw...)
	}
	return []byte(decoded)
}
