package httpflow

// Personality selects the request-line leniency and terminator behavior
// of a particular server implementation (spec §4.6 "server personality
// (Apache-2.2 or IIS variants)"), generalizing the teacher's single
// fixed parsing behavior into a configurable trait the way IronBee's
// htp_config selects a personality profile.
type Personality int

const (
	// PersonalityApache22 is the default: leading blank/whitespace-only
	// lines before the request line are ignored rather than rejected,
	// and a bare LF is accepted as a line terminator.
	PersonalityApache22 Personality = iota

	// PersonalityIIS is stricter about leading blank lines: they are
	// still skipped, but each transaction that has one is flagged
	// request-smuggling. Folded headers with no prior field to fold
	// into are flagged invalid-folding exactly as under Apache.
	PersonalityIIS
)

// PortSource selects which of a connection's known ports NormalizeURI
// falls back to when a request-target carries no explicit port and the
// Host header names none either (spec §4.6 "derives the default URI
// port from local or remote port per configuration").
type PortSource int

const (
	// PortSourceScheme picks 80/443 from the URI's scheme, ignoring the
	// connection's ports entirely.
	PortSourceScheme PortSource = iota
	// PortSourceLocal uses the connection's local (server-side) port.
	PortSourceLocal
	// PortSourceRemote uses the connection's remote (client-side) port.
	PortSourceRemote
)

// Config is the shared, immutable configuration object (spec §4.6
// "Shared resources"). A Config is safe to read concurrently from many
// connections; callers must never mutate one after a connection has
// begun using it — generalizing the teacher's DefaultConnectionConfig
// value-type convention (http11/connection.go) to a pointer type a
// Connection clones on write instead of copies by value.
type Config struct {
	Personality Personality

	// Soft/hard field length limits (spec §4.6 "field soft/hard
	// limits"). Soft sets FlagFieldLong and continues; hard is Fatal.
	RequestLineSoftLimit  int
	RequestLineHardLimit  int
	ResponseLineSoftLimit int
	ResponseLineHardLimit int
	HeaderLineSoftLimit   int
	HeaderLineHardLimit   int
	HeadersTotalSoftLimit int
	HeadersTotalHardLimit int

	// ResponseDecompressionEnabled controls whether codec.go's
	// Decompressors are wired into the response body pipeline.
	ResponseDecompressionEnabled bool

	// DefaultPortSource picks which of the connection's ports
	// NormalizeURI falls back to when neither the request-target nor
	// the Host header names one explicitly.
	DefaultPortSource PortSource

	// Path normalization passes (spec §4.6), each individually
	// toggleable.
	PathBackslashSeparators bool
	PathCompressSeparators  bool
	PathCaseInsensitive     bool
	PathDecodeSlashes       bool

	// PathDecodeUEncoding decodes IIS-style "%uXXXX" escapes into their
	// UTF-16 code unit's UTF-8 encoding (spec §4.6 "decode-%u").
	PathDecodeUEncoding bool

	// PathRejectInvalidEncoding controls what a malformed percent-escape
	// (a '%' not followed by two hex digits) does: when true it's Fatal,
	// when false (the default) it's flagged path-invalid-encoding and
	// left as literal bytes (spec §4.6 "invalid-encoding handling").
	PathRejectInvalidEncoding bool

	// PathRejectNul controls what a NUL byte in the path — raw or
	// %00-encoded — does: when true it's Fatal, when false (the
	// default) it's flagged path-raw-nul/path-encoded-nul and left in
	// place (spec §4.6 "raw/encoded NUL handling").
	PathRejectNul bool

	CookieParsingEnabled bool
	AuthParsingEnabled   bool
	CookieParamProcessor ParamProcessor

	// RequestEncoding/InternalEncoding name the charsets (looked up via
	// NewTranscoder) request bodies and internal string comparisons
	// respectively are assumed to use (spec §4.6 "internal and request
	// encodings").
	RequestEncoding  string
	InternalEncoding string

	// AutoDestroyTransaction mirrors IronBee's auto-destroy setting:
	// when true, a Connection frees a Transaction's slot as soon as its
	// response completes rather than waiting for explicit detachment.
	AutoDestroyTransaction bool

	// TempDir is where fileextract.go stages the file-like parts of a
	// multipart request body (spec §6 "temp directory for extracted
	// files"); when empty, no file is written.
	// Naming within it is not part of the wire contract.
	TempDir string

	Hooks *Hooks
}

// DefaultConfig returns the Apache-2.2-compatible configuration spec
// §4.6 describes as the default personality, with limits matching the
// teacher's constants.go (MaxRequestLineSize/MaxHeadersSize = 8192).
func DefaultConfig() *Config {
	return &Config{
		Personality: PersonalityApache22,

		RequestLineSoftLimit:  4096,
		RequestLineHardLimit:  8192,
		ResponseLineSoftLimit: 4096,
		ResponseLineHardLimit: 8192,
		HeaderLineSoftLimit:   4096,
		HeaderLineHardLimit:   8192,
		HeadersTotalSoftLimit: 8192,
		HeadersTotalHardLimit: 1 << 20,

		ResponseDecompressionEnabled: true,
		DefaultPortSource:            PortSourceScheme,

		PathBackslashSeparators: false,
		PathCompressSeparators:  true,
		PathCaseInsensitive:     false,
		PathDecodeSlashes:       false,

		PathDecodeUEncoding:       false,
		PathRejectInvalidEncoding: false,
		PathRejectNul:             false,

		CookieParsingEnabled: true,
		AuthParsingEnabled:   true,
		CookieParamProcessor: DefaultParamProcessor,

		RequestEncoding:  "utf-8",
		InternalEncoding: "utf-8",

		AutoDestroyTransaction: false,

		Hooks: newHooks(),
	}
}

// Option configures a Config at construction, the functional-options
// convention spec's ambient stack calls for (matching the teacher's
// preference for explicit DefaultXConfig() value construction, extended
// here since Config is shared and pointer-typed).
type Option func(*Config)

// NewConfig builds a Config from DefaultConfig with the given Options
// applied in order.
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithPersonality overrides the server personality.
func WithPersonality(p Personality) Option {
	return func(c *Config) { c.Personality = p }
}

// WithHeaderLimits overrides the header-line soft/hard limits.
func WithHeaderLimits(soft, hard int) Option {
	return func(c *Config) {
		c.HeaderLineSoftLimit = soft
		c.HeaderLineHardLimit = hard
	}
}

// WithResponseDecompression toggles automatic Content-Encoding handling.
func WithResponseDecompression(enabled bool) Option {
	return func(c *Config) { c.ResponseDecompressionEnabled = enabled }
}

// Clone deep-copies this Config for a connection that needs private
// hooks or limits (spec §4.6 "When a connection needs private
// configuration, it deep-copies the config and the hook lists").
func (c *Config) Clone() *Config {
	cloned := *c
	cloned.Hooks = c.Hooks.Clone()
	return &cloned
}
