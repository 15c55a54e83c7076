package httpflow

// Flags is the anomaly/state bitset shared by HeaderLine, Header and
// Transaction (spec §3 "Flags"). A single type is used everywhere so a
// header-line anomaly can be OR'd straight into the owning transaction's
// flags without translation.
type Flags uint32

const (
	FlagFieldUnparseable Flags = 1 << iota
	FlagFieldInvalid
	FlagFieldFolded
	FlagFieldRepeated
	FlagFieldLong
	FlagFieldNulByte
	FlagRequestSmuggling
	FlagInvalidFolding
	FlagInvalidChunking
	FlagMultiPacketHead
	FlagAmbiguousHost
	FlagStatusLineInvalid
	FlagPathEncodedNul
	FlagPathRawNul
	FlagPathInvalidEncoding
	FlagDecompressionError
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagFieldUnparseable, "field-unparseable"},
	{FlagFieldInvalid, "field-invalid"},
	{FlagFieldFolded, "field-folded"},
	{FlagFieldRepeated, "field-repeated"},
	{FlagFieldLong, "field-long"},
	{FlagFieldNulByte, "field-nul-byte"},
	{FlagRequestSmuggling, "request-smuggling"},
	{FlagInvalidFolding, "invalid-folding"},
	{FlagInvalidChunking, "invalid-chunking"},
	{FlagMultiPacketHead, "multi-packet-head"},
	{FlagAmbiguousHost, "ambiguous-host"},
	{FlagStatusLineInvalid, "status-line-invalid"},
	{FlagPathEncodedNul, "path-encoded-nul"},
	{FlagPathRawNul, "path-raw-nul"},
	{FlagPathInvalidEncoding, "path-invalid-encoding"},
	{FlagDecompressionError, "decompression-error"},
}

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// Names returns the set flags' names in declaration order, for
// diagnostics and tests.
func (f Flags) Names() []string {
	var out []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			out = append(out, fn.name)
		}
	}
	return out
}

func (f Flags) String() string {
	names := f.Names()
	if len(names) == 0 {
		return "none"
	}
	s := names[0]
	for _, n := range names[1:] {
		s += "," + n
	}
	return s
}
