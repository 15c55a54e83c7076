package httpflow

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	conn := NewConnection(DefaultConfig())
	if err := conn.Open("203.0.113.5", 51234, "203.0.113.1", 80, time.Unix(0, 0)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return conn
}

func TestConnectionSimpleGET(t *testing.T) {
	conn := newTestConnection(t)

	req := "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if res, perr := conn.FeedRequest(time.Unix(1, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	resp := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	if res, perr := conn.FeedResponse(time.Unix(1, 0), []byte(resp)); res != NeedMore || perr != nil {
		t.Fatalf("FeedResponse: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if tx == nil {
		t.Fatalf("transaction 0 missing")
	}
	if string(tx.RequestMethod) != "GET" {
		t.Errorf("RequestMethod = %q, want GET", tx.RequestMethod)
	}
	if tx.ResponseStatus != 200 {
		t.Errorf("ResponseStatus = %d, want 200", tx.ResponseStatus)
	}
	if tx.ResponseEntityLen != 5 {
		t.Errorf("ResponseEntityLen = %d, want 5", tx.ResponseEntityLen)
	}
}

func TestConnectionChunkedRequestBody(t *testing.T) {
	conn := newTestConnection(t)

	req := "POST /upload HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	if res, perr := conn.FeedRequest(time.Unix(2, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	resp := "HTTP/1.1 204 No Content\r\n\r\n"
	if res, perr := conn.FeedResponse(time.Unix(2, 0), []byte(resp)); res != NeedMore || perr != nil {
		t.Fatalf("FeedResponse: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if tx.RequestTransfer != TransferChunked {
		t.Errorf("RequestTransfer = %v, want TransferChunked", tx.RequestTransfer)
	}
	if tx.RequestEntityLen != 9 {
		t.Errorf("RequestEntityLen = %d, want 9", tx.RequestEntityLen)
	}
}

func TestConnectionRequestSmugglingFlag(t *testing.T) {
	conn := newTestConnection(t)

	req := "POST /a HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Length: 4\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"0\r\n\r\n"
	if res, perr := conn.FeedRequest(time.Unix(3, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if !tx.Flags.Has(FlagRequestSmuggling) {
		t.Errorf("expected FlagRequestSmuggling when both Content-Length and Transfer-Encoding present")
	}
}

func TestConnectionInterim100ContinueThen200(t *testing.T) {
	conn := newTestConnection(t)

	req := "PUT /file HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Length: 2\r\n" +
		"Expect: 100-continue\r\n" +
		"\r\n" +
		"hi"
	if res, perr := conn.FeedRequest(time.Unix(4, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	resp := "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	if res, perr := conn.FeedResponse(time.Unix(4, 0), []byte(resp)); res != NeedMore || perr != nil {
		t.Fatalf("FeedResponse: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if tx.Seen100Continue != 1 {
		t.Errorf("Seen100Continue = %d, want 1", tx.Seen100Continue)
	}
	if tx.ResponseStatus != 200 {
		t.Errorf("ResponseStatus = %d, want 200", tx.ResponseStatus)
	}
}

func TestConnectionDuplicate100ContinueIsFatal(t *testing.T) {
	conn := newTestConnection(t)

	req := "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if res, perr := conn.FeedRequest(time.Unix(5, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	resp := "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	res, perr := conn.FeedResponse(time.Unix(5, 0), []byte(resp))
	if res != Fatal {
		t.Fatalf("res = %v, want Fatal", res)
	}
	pe, ok := perr.(*ParseError)
	if !ok || pe.Code != ErrCodeDuplicate100Continue {
		t.Fatalf("perr = %v, want ErrCodeDuplicate100Continue", perr)
	}
}

func TestConnectionHTTP09SimpleRequest(t *testing.T) {
	conn := newTestConnection(t)

	req := "GET /index.html\r\n"
	if res, perr := conn.FeedRequest(time.Unix(6, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if !tx.RequestIsSimple {
		t.Fatalf("expected RequestIsSimple for a two-token request line")
	}

	body := "<html>hello</html>"
	if res, perr := conn.FeedResponse(time.Unix(6, 0), []byte(body)); res != NeedMore || perr != nil {
		t.Fatalf("FeedResponse (body chunk): res=%v err=%v", res, perr)
	}
	if res, perr := conn.FeedResponse(time.Unix(6, 1), nil); res != NeedMore || perr != nil {
		t.Fatalf("FeedResponse (open, no data): res=%v err=%v", res, perr)
	}

	if err := conn.Close(time.Unix(6, 2)); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if tx.ResponseEntityLen != int64(len(body)) {
		t.Errorf("ResponseEntityLen = %d, want %d", tx.ResponseEntityLen, len(body))
	}
}

func TestConnectionFoldedResponseHeader(t *testing.T) {
	conn := newTestConnection(t)

	req := "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if res, perr := conn.FeedRequest(time.Unix(7, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	resp := "HTTP/1.1 200 OK\r\n" +
		"X-Long: first\r\n" +
		" continued\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"
	if res, perr := conn.FeedResponse(time.Unix(7, 0), []byte(resp)); res != NeedMore || perr != nil {
		t.Fatalf("FeedResponse: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	v, ok := tx.ResponseHeaders.Get("X-Long")
	if !ok || string(v) != "first continued" {
		t.Errorf("X-Long = %q, ok=%v, want %q", v, ok, "first continued")
	}
}

func TestConnectionDesyncedResponseIsFatal(t *testing.T) {
	conn := newTestConnection(t)

	resp := "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	res, perr := conn.FeedResponse(time.Unix(8, 0), []byte(resp))
	if res != Fatal {
		t.Fatalf("res = %v, want Fatal", res)
	}
	pe, ok := perr.(*ParseError)
	if !ok || pe.Code != ErrCodeDesyncedResponse {
		t.Fatalf("perr = %v, want ErrCodeDesyncedResponse", perr)
	}
}

func TestConnectionPipeliningFlag(t *testing.T) {
	conn := newTestConnection(t)

	req := "GET /a HTTP/1.1\r\nHost: example.com\r\n\r\nGET /b HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if res, perr := conn.FeedRequest(time.Unix(9, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	if !conn.Pipelined {
		t.Errorf("expected Pipelined after two requests arrive before either response")
	}

	resp := "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\nHTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	if res, perr := conn.FeedResponse(time.Unix(9, 0), []byte(resp)); res != NeedMore || perr != nil {
		t.Fatalf("FeedResponse: res=%v err=%v", res, perr)
	}
	if conn.TransactionCount() != 2 {
		t.Fatalf("TransactionCount = %d, want 2", conn.TransactionCount())
	}
}

func TestConnectionURLEncodedBodyParams(t *testing.T) {
	conn := newTestConnection(t)

	body := "name=Alice&city=New+York"
	req := "POST /submit HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" + body
	if res, perr := conn.FeedRequest(time.Unix(11, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	got := map[string]string{}
	for _, p := range tx.RequestParams {
		got[string(p.Name)] = string(p.Value)
	}
	if got["name"] != "Alice" || got["city"] != "New York" {
		t.Errorf("RequestParams = %v, want name=Alice city=\"New York\"", got)
	}
}

func TestConnectionIISLeadingBlankLineFlag(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Personality = PersonalityIIS
	conn := NewConnection(cfg)
	if err := conn.Open("203.0.113.5", 51234, "203.0.113.1", 80, time.Unix(0, 0)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	req := "\r\nGET / HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if res, perr := conn.FeedRequest(time.Unix(12, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if !tx.Flags.Has(FlagRequestSmuggling) {
		t.Errorf("expected FlagRequestSmuggling for a leading blank line under IIS personality")
	}
}

func TestConnectionPathEncodedNulFlag(t *testing.T) {
	conn := newTestConnection(t)

	req := "GET /file%00.txt HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if res, perr := conn.FeedRequest(time.Unix(13, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if !tx.Flags.Has(FlagPathEncodedNul) {
		t.Errorf("expected FlagPathEncodedNul for a %%00 in the path")
	}
}

func TestConnectionPathRejectNulIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PathRejectNul = true
	conn := NewConnection(cfg)
	if err := conn.Open("203.0.113.5", 51234, "203.0.113.1", 80, time.Unix(0, 0)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	req := "GET /file%00.txt HTTP/1.1\r\nHost: example.com\r\n\r\n"
	res, perr := conn.FeedRequest(time.Unix(14, 0), []byte(req))
	if res != Fatal {
		t.Fatalf("res = %v, want Fatal", res)
	}
	pe, ok := perr.(*ParseError)
	if !ok || pe.Code != ErrCodeInvalidPath {
		t.Fatalf("perr = %v, want ErrCodeInvalidPath", perr)
	}
}

func TestConnectionPathDecodeUEncoding(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PathDecodeUEncoding = true
	conn := NewConnection(cfg)
	if err := conn.Open("203.0.113.5", 51234, "203.0.113.1", 80, time.Unix(0, 0)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	req := "GET /caf%u00e9 HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if res, perr := conn.FeedRequest(time.Unix(15, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if string(tx.RequestURI.Path) != "/café" {
		t.Errorf("Path = %q, want %q", tx.RequestURI.Path, "/café")
	}
}

func TestConnectionRequestEncodingTranscoding(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestEncoding = "windows-1252"
	cfg.InternalEncoding = "utf-8"
	conn := NewConnection(cfg)
	if err := conn.Open("203.0.113.5", 51234, "203.0.113.1", 80, time.Unix(0, 0)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// 0xE9 in windows-1252 is U+00E9 (é); the UTF-8 form is 0xC3 0xA9.
	body := "name=caf\xE9"
	req := "POST /submit HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" + body
	if res, perr := conn.FeedRequest(time.Unix(16, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if len(tx.RequestParams) != 1 {
		t.Fatalf("RequestParams = %v, want one entry", tx.RequestParams)
	}
	if string(tx.RequestParams[0].Value) != "café" {
		t.Errorf("RequestParams[0].Value = %q, want %q", tx.RequestParams[0].Value, "café")
	}
}

func TestConnectionMultipartFileExtraction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TempDir = t.TempDir()
	conn := NewConnection(cfg)
	if err := conn.Open("203.0.113.5", 51234, "203.0.113.1", 80, time.Unix(0, 0)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	boundary := "xYzZY"
	body := "--" + boundary + "\r\n" +
		"Content-Disposition: form-data; name=\"upload\"; filename=\"report.txt\"\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"hello upload\r\n" +
		"--" + boundary + "--\r\n"
	req := "POST /upload HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Type: multipart/form-data; boundary=" + boundary + "\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" + body
	if res, perr := conn.FeedRequest(time.Unix(17, 0), []byte(req)); res != NeedMore || perr != nil {
		t.Fatalf("FeedRequest: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if len(tx.RequestFiles) != 1 {
		t.Fatalf("RequestFiles = %v, want one entry", tx.RequestFiles)
	}
	ef := tx.RequestFiles[0]
	if string(ef.Filename) != "report.txt" {
		t.Errorf("Filename = %q, want %q", ef.Filename, "report.txt")
	}
	if ef.TempPath == "" {
		t.Fatal("TempPath is empty, want a staged file path")
	}
	if filepath.Dir(ef.TempPath) != cfg.TempDir {
		t.Errorf("TempPath dir = %q, want %q", filepath.Dir(ef.TempPath), cfg.TempDir)
	}
	data, err := os.ReadFile(ef.TempPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// The part body's final line's trailing CRLF belongs to the boundary
	// delimiter rather than the content (multipart.go's accepted
	// imprecision), so the staged file carries the extra CRLF too.
	if string(data) != "hello upload\r\n" {
		t.Errorf("staged content = %q, want %q", data, "hello upload\r\n")
	}
}

func TestConnectionFeedFragmented(t *testing.T) {
	conn := newTestConnection(t)

	req := "GET /x HTTP/1.1\r\nHost: example.com\r\n\r\n"
	for i := 0; i < len(req); i++ {
		res, perr := conn.FeedRequest(time.Unix(10, 0), []byte{req[i]})
		if perr != nil {
			t.Fatalf("FeedRequest byte %d: err=%v", i, perr)
		}
		if i < len(req)-1 && res != NeedMore {
			t.Fatalf("FeedRequest byte %d: res=%v, want NeedMore", i, res)
		}
	}

	resp := "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	if res, perr := conn.FeedResponse(time.Unix(10, 0), []byte(resp)); res != NeedMore || perr != nil {
		t.Fatalf("FeedResponse: res=%v err=%v", res, perr)
	}

	tx := conn.Transaction(0)
	if !tx.Flags.Has(FlagMultiPacketHead) {
		t.Errorf("expected FlagMultiPacketHead for a byte-at-a-time request head")
	}
}
