package httpflow

import "bytes"

// HeaderField is one assembled, name-deduplicated header (spec §3
// "Header"). Lookup is case-insensitive; insertion order is preserved so
// VisitAll reproduces the wire order a hook would expect.
type HeaderField struct {
	Name  []byte
	Value []byte
	Flags Flags
}

// HeaderLine is the raw, not-yet-folded line a header came from (spec §3
// "HeaderLine"): useful to hooks that want to see exactly what arrived on
// the wire, NUL accounting included.
type HeaderLine struct {
	Raw            []byte
	NameLen        int // length of the name portion of Raw before folding
	NulCount       int
	FirstNulOffset int // -1 if no NUL was seen
	Flags          Flags
	Field          *HeaderField // back-link to the assembled header, once parsed
}

// headerClass is the outcome of classifying one chomped line during
// Collect (spec §4.3).
type headerClass int

const (
	classTerminator headerClass = iota
	classContinuation
	classNewHeader
)

// HeaderSet assembles raw header lines into deduplicated HeaderFields for
// one direction of one transaction (spec §4.3). It generalizes the
// teacher's fixed 32-slot Header (http11/header.go) into an
// append-only, unbounded ordered list, since passive inspection must
// never silently drop a header the way a performance server's inline cap
// might.
type HeaderSet struct {
	Lines  []HeaderLine
	Fields []HeaderField

	index map[string]int // lowercased name -> index into Fields

	pendingLine int // index into Lines currently being folded, or -1

	// lastCollectWasOrphanFold reports whether the most recent Collect
	// call saw a continuation line (leading LWS) with no header
	// pending to fold into (spec §4.3 "Flag invalid-folding on the
	// transaction if no header is pending"). The caller ORs this into
	// the owning transaction's flags since HeaderSet has no back-link
	// to it.
	lastCollectWasOrphanFold bool
}

func newHeaderSet() *HeaderSet {
	return &HeaderSet{
		index:       make(map[string]int, 16),
		pendingLine: -1,
	}
}

func (h *HeaderSet) reset() {
	h.Lines = h.Lines[:0]
	h.Fields = h.Fields[:0]
	for k := range h.index {
		delete(h.index, k)
	}
	h.pendingLine = -1
	h.lastCollectWasOrphanFold = false
}

// Len returns the number of assembled fields (0 for an untouched or
// reset HeaderSet, e.g. a chunked body with no trailer).
func (h *HeaderSet) Len() int {
	return len(h.Fields)
}

// Collect classifies one already-chomped raw line and folds/finalizes as
// needed. raw must not include the line terminator. It returns the
// line's classification; a classTerminator line also finalizes any
// pending header.
func (h *HeaderSet) Collect(raw []byte) headerClass {
	h.lastCollectWasOrphanFold = false

	if len(raw) == 0 {
		h.finalizePending()
		return classTerminator
	}

	if isLWS(raw[0]) {
		// Obsolete line folding (spec §4.3 "Starts with LWS").
		if h.pendingLine < 0 {
			h.lastCollectWasOrphanFold = true
			return classContinuation // caller sets invalid-folding
		}
		h.foldInto(h.pendingLine, raw)
		return classContinuation
	}

	h.finalizePending()
	h.startLine(raw)
	return classNewHeader
}

func (h *HeaderSet) startLine(raw []byte) {
	line := HeaderLine{
		Raw:            append([]byte(nil), raw...),
		FirstNulOffset: -1,
	}
	scanNuls(&line)
	h.Lines = append(h.Lines, line)
	h.pendingLine = len(h.Lines) - 1
}

func (h *HeaderSet) foldInto(idx int, continuation []byte) {
	line := &h.Lines[idx]
	trimmed := trimLWS(continuation)
	line.Raw = append(line.Raw, ' ')
	line.Raw = append(line.Raw, trimmed...)
	line.Flags |= FlagFieldFolded
	scanNuls(line)
}

func scanNuls(line *HeaderLine) {
	count := 0
	first := line.FirstNulOffset
	for i, b := range line.Raw {
		if b == 0 {
			count++
			if first < 0 {
				first = i
			}
		}
	}
	line.NulCount = count
	line.FirstNulOffset = first
	if count > 0 {
		line.Flags |= FlagFieldNulByte
	}
}

// finalizePending parses and deduplicates whatever line is currently
// pending, if any (spec §4.3 "Parse" and "Deduplicate").
func (h *HeaderSet) finalizePending() {
	if h.pendingLine < 0 {
		return
	}
	idx := h.pendingLine
	h.pendingLine = -1
	h.parseAndMerge(idx)
}

func (h *HeaderSet) parseAndMerge(lineIdx int) {
	line := &h.Lines[lineIdx]
	raw := line.Raw

	colon := bytes.IndexByte(raw, ':')
	var name, value []byte
	if colon < 0 {
		// No colon: whole line becomes the value of an empty name
		// (spec §4.3 "Parse").
		line.Flags |= FlagFieldUnparseable
		name = nil
		value = trimLWS(raw)
	} else {
		name = trimLWS(raw[:colon])
		value = trimLWS(raw[colon+1:])
		if !validToken(name) {
			line.Flags |= FlagFieldInvalid
		}
	}
	line.NameLen = len(name)

	key := lowerKey(name)
	if existingIdx, ok := h.index[key]; ok {
		existing := &h.Fields[existingIdx]
		existing.Value = append(append(append([]byte(nil), existing.Value...), ", "...), value...)
		existing.Flags |= FlagFieldRepeated
		line.Flags |= FlagFieldRepeated
		line.Field = existing
		return
	}

	field := HeaderField{
		Name:  append([]byte(nil), name...),
		Value: append([]byte(nil), value...),
		Flags: line.Flags,
	}
	h.Fields = append(h.Fields, field)
	newIdx := len(h.Fields) - 1
	h.index[key] = newIdx
	line.Field = &h.Fields[newIdx]
}

// validToken reports whether every byte of name is a valid RFC 2616
// token byte. An empty name is not a valid token either.
func validToken(name []byte) bool {
	if len(name) == 0 {
		return false
	}
	for _, c := range name {
		if !isToken(c) {
			return false
		}
	}
	return true
}

func lowerKey(name []byte) string {
	buf := make([]byte, len(name))
	for i, c := range name {
		if c >= 'A' && c <= 'Z' {
			c += 32
		}
		buf[i] = c
	}
	return string(buf)
}

// Get retrieves a field's value by case-insensitive name. Returns nil and
// false if absent.
func (h *HeaderSet) Get(name string) ([]byte, bool) {
	idx, ok := h.index[lowerKey([]byte(name))]
	if !ok {
		return nil, false
	}
	return h.Fields[idx].Value, true
}

// Has reports whether name is present, case-insensitively.
func (h *HeaderSet) Has(name string) bool {
	_, ok := h.index[lowerKey([]byte(name))]
	return ok
}

// bytesEqualFold compares two byte slices case-insensitively, ASCII only
// (header names and tokens are always ASCII per RFC 7230).
func bytesEqualFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 32
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 32
		}
		if ca != cb {
			return false
		}
	}
	return true
}
