package httpflow

import "testing"

func TestParseProtocolRoundTrip(t *testing.T) {
	for _, n := range []int{9, 100, 101} {
		s := unparseProtocol(n)
		if s == nil {
			t.Fatalf("unparseProtocol(%d) = nil", n)
		}
		if got := parseProtocol(s); got != n {
			t.Errorf("parseProtocol(unparseProtocol(%d)) = %d, want %d", n, got, n)
		}
	}
}

func TestParseProtocolInvalid(t *testing.T) {
	cases := []string{"HTTP/1.1 ", "http/1.1", "HTTP/11", "FOO/1.1", ""}
	for _, c := range cases {
		if got := parseProtocol([]byte(c)); got != -1 {
			t.Errorf("parseProtocol(%q) = %d, want -1", c, got)
		}
	}
}

func TestUnparseProtocolUnknown(t *testing.T) {
	if got := unparseProtocol(42); got != nil {
		t.Errorf("unparseProtocol(42) = %q, want nil", got)
	}
}

func TestChomp(t *testing.T) {
	cases := []struct {
		in   string
		want string
		n    int
	}{
		{"foo\r\n", "foo", 2},
		{"foo\n", "foo", 1},
		{"foo\r", "foo\r", 0},
		{"foo", "foo", 0},
		{"\n", "", 1},
	}
	for _, tt := range cases {
		got, n := chomp([]byte(tt.in))
		if string(got) != tt.want || n != tt.n {
			t.Errorf("chomp(%q) = (%q, %d), want (%q, %d)", tt.in, got, n, tt.want, tt.n)
		}
	}
}

func TestAllText(t *testing.T) {
	if !allText([]byte("OK")) {
		t.Error("allText(\"OK\") = false, want true")
	}
	if !allText([]byte("Not Found")) {
		t.Error("allText(\"Not Found\") = false, want true")
	}
	if allText([]byte("OK\x00")) {
		t.Error("allText with NUL = true, want false")
	}
	if allText([]byte("OK\x01")) {
		t.Error("allText with control byte = true, want false")
	}
}
