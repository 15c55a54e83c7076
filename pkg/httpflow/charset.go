package httpflow

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// Transcoder is the pluggable byte-to-byte charset converter spec §4.5
// names as an external collaborator: it lets a hook view a body or
// header value in UTF-8 regardless of the charset a Content-Type
// parameter declared on the wire.
type Transcoder interface {
	// ToUTF8 converts src (in the Transcoder's source charset) to UTF-8,
	// appending to dst and returning the result.
	ToUTF8(dst, src []byte) ([]byte, error)
}

type encodingTranscoder struct {
	enc encoding.Encoding
}

// NewTranscoder resolves a charset name (as found in a Content-Type
// "charset=" parameter) against the WHATWG/IANA alias tables htmlindex
// ships, falling back to the raw charmap registry for names htmlindex
// doesn't carry. It returns (nil, false) for unrecognized names so
// callers can flag FlagFieldInvalid rather than fail the transaction.
func NewTranscoder(charsetName string) (Transcoder, bool) {
	if enc, err := htmlindex.Get(charsetName); err == nil {
		return &encodingTranscoder{enc: enc}, true
	}
	if enc, ok := charmapByName(charsetName); ok {
		return &encodingTranscoder{enc: enc}, true
	}
	return nil, false
}

func (t *encodingTranscoder) ToUTF8(dst, src []byte) ([]byte, error) {
	decoded, err := t.enc.NewDecoder().Bytes(src)
	if err != nil {
		return dst, err
	}
	return append(dst, decoded...), nil
}

// charmapByName covers a handful of legacy single-byte charsets still
// seen in the wild (Windows code pages, ISO-8859 variants) that
// htmlindex already maps by their canonical/whatwg names but that
// appear on the wire under less common aliases.
func charmapByName(name string) (encoding.Encoding, bool) {
	switch normalizeCharsetName(name) {
	case "windows1252", "cp1252":
		return charmap.Windows1252, true
	case "windows1251", "cp1251":
		return charmap.Windows1251, true
	case "iso88591", "latin1":
		return charmap.ISO8859_1, true
	case "iso88592", "latin2":
		return charmap.ISO8859_2, true
	case "iso88595":
		return charmap.ISO8859_5, true
	case "koi8r":
		return charmap.KOI8R, true
	default:
		return nil, false
	}
}

func normalizeCharsetName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+32)
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			// skip separators: '-', '_', ' '
		}
	}
	return string(out)
}
