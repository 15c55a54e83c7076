package httpflow

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"testing"
)

func gzipCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzip Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}
	return buf.Bytes()
}

func deflateCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("flate Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("flate Close: %v", err)
	}
	return buf.Bytes()
}

func TestGzipDecompressorSingleWrite(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to make sure there is enough content to span more than one deflate block")
	compressed := gzipCompress(t, want)

	var got []byte
	d := NewGzipDecompressor(func(p []byte) { got = append(got, p...) })
	if _, err := d.Write(compressed); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("decompressed = %q, want %q", got, want)
	}
}

// TestGzipDecompressorFragmentedWrites feeds the compressed stream one
// byte at a time, the way a chunked or streamed response body arrives.
// A naive bridge over compress/gzip latches io.ErrUnexpectedEOF on the
// first short read and never decodes anything again; this must not
// happen here.
func TestGzipDecompressorFragmentedWrites(t *testing.T) {
	want := bytes.Repeat([]byte("fragmented-gzip-body "), 200)
	compressed := gzipCompress(t, want)

	var got []byte
	d := NewGzipDecompressor(func(p []byte) { got = append(got, p...) })
	for i := 0; i < len(compressed); i++ {
		if _, err := d.Write(compressed[i : i+1]); err != nil {
			t.Fatalf("Write at byte %d: %v", i, err)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("decompressed %d bytes, want %d bytes; mismatch", len(got), len(want))
	}
}

func TestGzipDecompressorTwoWrites(t *testing.T) {
	want := bytes.Repeat([]byte("ab"), 5000)
	compressed := gzipCompress(t, want)
	mid := len(compressed) / 3

	var got []byte
	d := NewGzipDecompressor(func(p []byte) { got = append(got, p...) })
	if _, err := d.Write(compressed[:mid]); err != nil {
		t.Fatalf("Write first half: %v", err)
	}
	if _, err := d.Write(compressed[mid:]); err != nil {
		t.Fatalf("Write second half: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("decompressed mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestDeflateDecompressorFragmentedWrites(t *testing.T) {
	want := bytes.Repeat([]byte("deflate-body-content "), 300)
	compressed := deflateCompress(t, want)

	var got []byte
	d := NewDeflateDecompressor(func(p []byte) { got = append(got, p...) })
	for i := 0; i < len(compressed); i += 3 {
		end := i + 3
		if end > len(compressed) {
			end = len(compressed)
		}
		if _, err := d.Write(compressed[i:end]); err != nil {
			t.Fatalf("Write at %d: %v", i, err)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("decompressed = %q, want %q", got, want)
	}
}
