package httpflow

import (
	"bytes"
	"encoding/base64"
)

// AuthType enumerates the Authorization schemes spec §4.6 recognizes.
type AuthType int

const (
	AuthTypeUnknown AuthType = iota
	AuthTypeNone
	AuthTypeBasic
	AuthTypeDigest
)

// AuthParams holds whatever Authorization credentials were recoverable
// (spec §3 Transaction "cookie and auth parameters").
type AuthParams struct {
	Type     AuthType
	Username []byte
	Password []byte // Basic only; Digest never carries the password on the wire
}

// ParseAuthorization detects the Authorization scheme and extracts
// credentials. Unknown schemes set Type = AuthTypeUnknown, never an
// error — an unrecognized scheme is still syntactically a valid header
// and must not abort parsing.
func ParseAuthorization(value []byte) AuthParams {
	value = trimLWS(value)
	if len(value) == 0 {
		return AuthParams{Type: AuthTypeNone}
	}

	sp := bytes.IndexByte(value, ' ')
	if sp < 0 {
		return AuthParams{Type: AuthTypeUnknown}
	}
	scheme := value[:sp]
	rest := trimLWS(value[sp+1:])

	switch {
	case bytesEqualFold(scheme, []byte("Basic")):
		return parseBasicAuth(rest)
	case bytesEqualFold(scheme, []byte("Digest")):
		return parseDigestAuth(rest)
	default:
		return AuthParams{Type: AuthTypeUnknown}
	}
}

func parseBasicAuth(encoded []byte) AuthParams {
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(decoded, encoded)
	if err != nil {
		return AuthParams{Type: AuthTypeBasic}
	}
	decoded = decoded[:n]

	colon := bytes.IndexByte(decoded, ':')
	if colon < 0 {
		return AuthParams{Type: AuthTypeBasic, Username: decoded}
	}
	return AuthParams{
		Type:     AuthTypeBasic,
		Username: decoded[:colon],
		Password: decoded[colon+1:],
	}
}

// parseDigestAuth extracts username="..." via a quoted-string scan; the
// Digest scheme never transmits a recoverable password.
func parseDigestAuth(params []byte) AuthParams {
	username, ok := extractQuotedParam(params, "username")
	if !ok {
		return AuthParams{Type: AuthTypeDigest}
	}
	return AuthParams{Type: AuthTypeDigest, Username: username}
}

// extractQuotedParam finds `key="value"` (with optional LWS around '=')
// within a comma-separated auth-param list and returns the bytes between
// the quotes as-is (backslash escapes are not processed). It tolerates a missing closing quote by returning everything to
// the end of params, matching the teacher's general "never hard-fail on
// malformed wire data" stance.
func extractQuotedParam(params []byte, key string) ([]byte, bool) {
	idx := findParamKey(params, key)
	if idx < 0 {
		return nil, false
	}
	rest := params[idx:]
	eq := bytes.IndexByte(rest, '=')
	if eq < 0 {
		return nil, false
	}
	rest = trimLWS(rest[eq+1:])
	if len(rest) == 0 || rest[0] != '"' {
		return nil, false
	}
	rest = rest[1:]
	end := bytes.IndexByte(rest, '"')
	if end < 0 {
		return rest, true
	}
	return rest[:end], true
}

// findParamKey locates a bare, unquoted occurrence of key within a
// comma-separated auth-param list, case-insensitively, anchored at a
// segment boundary so it doesn't match inside another param's value.
func findParamKey(params []byte, key string) int {
	keyBytes := []byte(key)
	for _, segment := range bytes.Split(params, []byte(",")) {
		trimmed := trimLWS(segment)
		if len(trimmed) >= len(keyBytes) && bytesEqualFold(trimmed[:len(keyBytes)], keyBytes) {
			// Report the offset of this segment within the original
			// params slice.
			return bytes.Index(params, trimmed)
		}
	}
	return -1
}
