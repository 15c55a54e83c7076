package httpflow

import "bytes"

// CookieParam is one name/value pair parsed out of a Cookie header
// (spec §4.6 "cookie parsing").
type CookieParam struct {
	Name  []byte
	Value []byte
}

// ParamProcessor post-processes a raw name/value pair deposited into a
// transaction's cookie or parameter table. It is swappable via Config so
// a deployment can match whichever backend's parameter semantics it's
// inspecting traffic for (spec §4.6 names the configured processor
// explicitly, default no-transformation, with a PHP-style alternative).
type ParamProcessor interface {
	Process(name, value []byte) (processedName, processedValue []byte)
}

// identityParamProcessor performs no transformation, the spec's default.
type identityParamProcessor struct{}

func (identityParamProcessor) Process(name, value []byte) ([]byte, []byte) {
	return name, value
}

// DefaultParamProcessor is the no-transformation processor used when
// Config doesn't override it.
var DefaultParamProcessor ParamProcessor = identityParamProcessor{}

// phpParamProcessor trims leading whitespace from the name and converts
// interior whitespace to '_', matching PHP's superglobal key mangling so
// a cookie named "foo bar" is tracked under the same key PHP would use.
type phpParamProcessor struct{}

func (phpParamProcessor) Process(name, value []byte) ([]byte, []byte) {
	name = bytes.TrimLeft(name, " \t")
	out := make([]byte, len(name))
	for i, c := range name {
		if c == ' ' || c == '\t' {
			c = '_'
		}
		out[i] = c
	}
	return out, value
}

// PHPParamProcessor is the PHP-style alternative Config may select.
var PHPParamProcessor ParamProcessor = phpParamProcessor{}

// ParseCookieHeader splits a Cookie header value into name/value pairs
// per the legacy "Cookie v0" grammar: segments separated by ';', each
// split on the first '=' into name/value (empty value allowed).
// Name-only segments (no '=' at all) are ignored per spec §4.6.
func ParseCookieHeader(value []byte, proc ParamProcessor) []CookieParam {
	if proc == nil {
		proc = DefaultParamProcessor
	}
	var out []CookieParam
	for _, segment := range bytes.Split(value, []byte(";")) {
		segment = trimLWS(segment)
		if len(segment) == 0 {
			continue
		}
		eq := bytes.IndexByte(segment, '=')
		if eq < 0 {
			continue
		}
		name := trimLWS(segment[:eq])
		val := trimLWS(segment[eq+1:])
		name, val = proc.Process(name, val)
		out = append(out, CookieParam{Name: name, Value: val})
	}
	return out
}
