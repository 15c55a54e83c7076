package httpflow

// Byte classification and small scalar parsers shared by the request and
// response state machines (spec §4.2). These are deliberately free
// functions over []byte, not methods, mirroring the teacher's
// trimLeadingSpace/trimTrailingSpace helpers in the old http11 parser.

const (
	sp = ' '
	ht = '\t'
	cr = '\r'
	lf = '\n'
	vt = '\v'
	ff = '\f'
)

// isLWS reports linear whitespace: space or tab.
func isLWS(c byte) bool {
	return c == sp || c == ht
}

// isSeparator reports RFC 2616 tspecials.
func isSeparator(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']', '?', '=', '{', '}', sp, ht:
		return true
	default:
		return false
	}
}

// isToken reports whether c may appear in an RFC 2616 token: printable
// ASCII excluding separators.
func isToken(c byte) bool {
	if c < 32 || c > 126 {
		return false
	}
	return !isSeparator(c)
}

// isText reports RFC 2616 TEXT: anything not a control character, or tab.
func isText(c byte) bool {
	return c >= 32 || c == ht
}

// allText reports whether every byte in b is RFC 2616 TEXT, used to flag
// a reason phrase carrying a raw control character (spec §4.5 status
// line parsing).
func allText(b []byte) bool {
	for _, c := range b {
		if !isText(c) {
			return false
		}
	}
	return true
}

// isSpace reports the broader "whitespace" class used when scanning
// around integers: SP, HT, VT, FF, CR, LF. Unlike isLWS (SP/HT only,
// the grammar's definition of folding whitespace), this tolerates the
// stray control bytes a lenient Content-Length/chunk-size scan can meet
// around a numeric field, matching this package's general stance of
// parsing malformed-but-recoverable wire data instead of rejecting it.
func isSpace(c byte) bool {
	switch c {
	case sp, ht, vt, ff, cr, lf:
		return true
	default:
		return false
	}
}

// chomp strips at most one trailing LF and, if present immediately before
// it, one trailing CR. It returns the trimmed slice and the number of
// bytes stripped (0, 1, or 2). A lone CR is never stripped — only a lone
// LF or a CR immediately followed by LF.
//
// chomp is idempotent for a buffer ending in at most one line terminator:
// the second call finds no trailing LF left to strip. A buffer ending in
// several terminators ("x\n\n") loses one per call.
func chomp(buf []byte) ([]byte, int) {
	n := len(buf)
	if n == 0 || buf[n-1] != lf {
		return buf, 0
	}
	n--
	if n > 0 && buf[n-1] == cr {
		n--
		return buf[:n], 2
	}
	return buf[:n], 1
}

// parseProtocol recognizes the exact 8-byte shape "HTTP/M.N" where M and N
// are single decimal digits. It returns 9 for "HTTP/0.9", 100 for
// "HTTP/1.0", 101 for "HTTP/1.1", and -1 for anything else (including
// lowercase, extra/missing digits, or wrong length).
func parseProtocol(s []byte) int {
	if len(s) != 8 {
		return -1
	}
	if s[0] != 'H' || s[1] != 'T' || s[2] != 'T' || s[3] != 'P' || s[4] != '/' || s[5] < '0' || s[5] > '9' || s[6] != '.' || s[7] < '0' || s[7] > '9' {
		return -1
	}
	major := s[5] - '0'
	minor := s[7] - '0'
	switch {
	case major == 0 && minor == 9:
		return 9
	case major == 1 && minor == 0:
		return 100
	case major == 1 && minor == 1:
		return 101
	default:
		return -1
	}
}

// unparseProtocol is the inverse of parseProtocol for the three numbers it
// produces, used by round-trip tests (spec §8).
func unparseProtocol(n int) []byte {
	switch n {
	case 9:
		return []byte("HTTP/0.9")
	case 100:
		return []byte("HTTP/1.0")
	case 101:
		return []byte("HTTP/1.1")
	default:
		return nil
	}
}

// Sentinels returned by parsePositiveIntegerWhitespace on malformed input.
const (
	errEmptyAfterWhitespace = -1001
	errTrailingGarbage      = -1002
	errOverflow             = -1
)

// parsePositiveIntegerWhitespace skips leading whitespace, parses a
// non-negative integer in the given base (10 or 16), requires only
// whitespace after the digits, and returns the value. "Whitespace" here
// is the broader isSpace class (not just LWS) since a Content-Length or
// chunk-size field is more likely to carry a stray CR/LF/VT/FF from a
// buggy client than to be split across a fold. Malformed input yields
// one of the negative sentinels above (spec §4.2).
func parsePositiveIntegerWhitespace(b []byte, base int) int64 {
	i := 0
	for i < len(b) && isSpace(b[i]) {
		i++
	}
	start := i
	var v int64
	for i < len(b) && digitValue(b[i], base) >= 0 {
		d := int64(digitValue(b[i], base))
		if v > (1<<63-1-d)/int64(base) {
			return errOverflow
		}
		v = v*int64(base) + d
		i++
	}
	if i == start {
		return errEmptyAfterWhitespace
	}
	for i < len(b) {
		if !isSpace(b[i]) {
			return errTrailingGarbage
		}
		i++
	}
	return v
}

func digitValue(c byte, base int) int {
	var v int
	switch {
	case c >= '0' && c <= '9':
		v = int(c - '0')
	case base == 16 && c >= 'a' && c <= 'f':
		v = int(c-'a') + 10
	case base == 16 && c >= 'A' && c <= 'F':
		v = int(c-'A') + 10
	default:
		return -1
	}
	if v >= base {
		return -1
	}
	return v
}

// splitFieldsN splits line into at most n whitespace-delimited fields:
// the first n-1 are individual LWS-delimited tokens, and the final field
// is everything left after skipping the LWS run that precedes it
// (so it may itself contain embedded spaces). This is exactly what both
// the request-line ("METHOD SP URI SP protocol") and status-line
// ("protocol SP code SP reason-phrase") grammars need, since a
// reason-phrase or an over-long request line's trailing tokens may
// contain spaces that must not be split further (spec §4.4 "three
// whitespace-delimited tokens").
func splitFieldsN(line []byte, n int) [][]byte {
	var fields [][]byte
	i := 0
	for len(fields) < n-1 {
		for i < len(line) && isLWS(line[i]) {
			i++
		}
		if i >= len(line) {
			return fields
		}
		start := i
		for i < len(line) && !isLWS(line[i]) {
			i++
		}
		fields = append(fields, line[start:i])
	}
	for i < len(line) && isLWS(line[i]) {
		i++
	}
	if i < len(line) {
		fields = append(fields, line[i:])
	}
	return fields
}

// trimLWS trims leading and trailing linear whitespace.
func trimLWS(b []byte) []byte {
	i := 0
	for i < len(b) && isLWS(b[i]) {
		i++
	}
	j := len(b)
	for j > i && isLWS(b[j-1]) {
		j--
	}
	return b[i:j]
}
