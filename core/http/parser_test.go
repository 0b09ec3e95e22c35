package http

import (
	"errors"
	"strings"
	"testing"
)

// feedAll pushes the whole input through the parser in one call.
func feedAll(t *testing.T, p *RequestParser, wire string) bool {
	t.Helper()
	n, complete, err := p.Feed([]byte(wire))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if complete && n != len(wire) {
		t.Fatalf("Expected all %d bytes consumed, got %d", len(wire), n)
	}
	return complete
}

// TestParseSimpleGet tests a minimal GET request
func TestParseSimpleGet(t *testing.T) {
	req := NewRequest()
	p := NewRequestParser(req)

	wire := "GET /index.html?lang=en HTTP/1.1\r\nHost: example.com\r\nX-Trace: abc\r\n\r\n"
	if !feedAll(t, p, wire) {
		t.Fatal("Expected complete message")
	}

	if req.Method() != Get {
		t.Errorf("Expected Get, got %v", req.Method())
	}
	if req.Path() != "/index.html" {
		t.Errorf("Expected /index.html, got %q", req.Path())
	}
	if req.Query() != "lang=en" {
		t.Errorf("Expected query lang=en, got %q", req.Query())
	}
	if req.Version() != Version11 {
		t.Errorf("Expected HTTP/1.1, got %v", req.Version())
	}
	if req.GetHeader("host") != "example.com" {
		t.Errorf("Expected host header, got %q", req.GetHeader("host"))
	}
	if req.GetHeader("x-trace") != "abc" {
		t.Errorf("Expected x-trace header, got %q", req.GetHeader("x-trace"))
	}
	if !req.KeepAlive() {
		t.Error("Expected keep-alive for HTTP/1.1")
	}
}

// TestParsePostWithBody tests body accumulation against Content-Length
func TestParsePostWithBody(t *testing.T) {
	req := NewRequest()
	p := NewRequestParser(req)

	body := "a=1&b=2"
	wire := "POST /submit HTTP/1.1\r\nContent-Length: 7\r\nContent-Type: application/x-www-form-urlencoded\r\n\r\n" + body
	if !feedAll(t, p, wire) {
		t.Fatal("Expected complete message")
	}

	if string(req.BodyView()) != body {
		t.Errorf("Expected body %q, got %q", body, req.BodyView())
	}
	if req.GetParameter("b") != "2" {
		t.Errorf("Expected form parameter b=2, got %q", req.GetParameter("b"))
	}
}

// TestParseIncremental tests byte-at-a-time feeding
func TestParseIncremental(t *testing.T) {
	req := NewRequest()
	p := NewRequestParser(req)

	wire := "PUT /thing HTTP/1.0\r\nContent-Length: 4\r\n\r\ndata"
	for i := 0; i < len(wire); i++ {
		_, complete, err := p.Feed([]byte{wire[i]})
		if err != nil {
			t.Fatalf("Feed byte %d: %v", i, err)
		}
		if complete != (i == len(wire)-1) {
			t.Fatalf("Unexpected completion at byte %d", i)
		}
	}

	if req.Method() != Put {
		t.Errorf("Expected Put, got %v", req.Method())
	}
	if req.Version() != Version10 {
		t.Errorf("Expected HTTP/1.0, got %v", req.Version())
	}
	if req.KeepAlive() {
		t.Error("Expected keep-alive off for HTTP/1.0")
	}
	if string(req.BodyView()) != "data" {
		t.Errorf("Expected body 'data', got %q", req.BodyView())
	}
}

// TestParsePipelined tests that bytes past the message end stay unconsumed
func TestParsePipelined(t *testing.T) {
	first := NewRequest()
	p := NewRequestParser(first)

	wire := "GET /one HTTP/1.1\r\n\r\nGET /two HTTP/1.1\r\n\r\n"
	n, complete, err := p.Feed([]byte(wire))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !complete {
		t.Fatal("Expected first message complete")
	}
	if first.Path() != "/one" {
		t.Errorf("Expected /one, got %q", first.Path())
	}

	second := NewRequest()
	p.Reset(second)
	rest := wire[n:]
	if _, complete, err = p.Feed([]byte(rest)); err != nil || !complete {
		t.Fatalf("Expected second message complete, err=%v", err)
	}
	if second.Path() != "/two" {
		t.Errorf("Expected /two, got %q", second.Path())
	}
}

// TestParseMalformedRequestLine tests fatal request-line errors
func TestParseMalformedRequestLine(t *testing.T) {
	tests := []string{
		"GARBAGE\r\n",
		"GET\r\n",
		"GET  HTTP/1.1\r\n",
	}
	for _, wire := range tests {
		p := NewRequestParser(NewRequest())
		_, _, err := p.Feed([]byte(wire))
		if !errors.Is(err, ErrMalformedRequestLine) {
			t.Errorf("Feed(%q): expected ErrMalformedRequestLine, got %v", wire, err)
		}
	}
}

// TestParseUnknownMethod tests that unknown methods degrade instead of
// failing the connection
func TestParseUnknownMethod(t *testing.T) {
	req := NewRequest()
	p := NewRequestParser(req)
	if !feedAll(t, p, "BREW /coffee HTTP/1.1\r\n\r\n") {
		t.Fatal("Expected complete message")
	}
	if req.Method() != Invalid {
		t.Errorf("Expected Invalid method, got %v", req.Method())
	}
}

// TestParseJunkHeaderDropped tests that a colon-less header line is
// skipped, not fatal
func TestParseJunkHeaderDropped(t *testing.T) {
	req := NewRequest()
	p := NewRequestParser(req)
	wire := "GET / HTTP/1.1\r\nthis line has no colon\r\nHost: ok\r\n\r\n"
	if !feedAll(t, p, wire) {
		t.Fatal("Expected complete message")
	}
	if req.GetHeader("host") != "ok" {
		t.Errorf("Expected host header to survive, got %q", req.GetHeader("host"))
	}
}

// TestParseHeadTooLarge tests the head size cap
func TestParseHeadTooLarge(t *testing.T) {
	p := NewRequestParser(NewRequest())
	huge := "GET /" + strings.Repeat("a", MaxHeadBytes+1) + " HTTP/1.1\r\n"
	_, _, err := p.Feed([]byte(huge))
	if !errors.Is(err, ErrHeadTooLarge) {
		t.Errorf("Expected ErrHeadTooLarge, got %v", err)
	}
}

// TestParseStreaming tests body delivery into streaming mode with the
// finish transition at end-of-body
func TestParseStreaming(t *testing.T) {
	req := NewRequest()
	p := NewRequestParser(req)

	head := "POST /upload HTTP/1.1\r\nContent-Length: 10\r\n\r\n"
	if _, complete, err := p.Feed([]byte(head)); err != nil || complete {
		t.Fatalf("Expected incomplete after head, err=%v", err)
	}

	reader := &collectingReader{}
	req.SetStreamReader(reader)

	if _, complete, err := p.Feed([]byte("0123456789")); err != nil || !complete {
		t.Fatalf("Expected complete after body, err=%v", err)
	}
	if req.StreamStatus() != StreamFinish {
		t.Errorf("Expected StreamFinish, got %v", req.StreamStatus())
	}
	if len(reader.chunks) != 1 || string(reader.chunks[0]) != "0123456789" {
		t.Errorf("Unexpected streamed chunks: %v", reader.chunks)
	}
	if !reader.finished || reader.finishErr != nil {
		t.Errorf("Expected clean reader finish, got finished=%v err=%v", reader.finished, reader.finishErr)
	}
}

// TestParseHeadCallback tests the head-complete hand-off: switching to
// streaming before any body byte is consumed
func TestParseHeadCallback(t *testing.T) {
	req := NewRequest()
	p := NewRequestParser(req)

	reader := &collectingReader{}
	var sawPath string
	p.SetHeadCallback(func(r *Request) {
		sawPath = r.Path()
		r.SetStreamReader(reader)
	})

	wire := "POST /ingest HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"
	if !feedAll(t, p, wire) {
		t.Fatal("Expected complete message")
	}
	if sawPath != "/ingest" {
		t.Errorf("Expected head callback to see parsed path, got %q", sawPath)
	}
	if len(reader.chunks) != 1 || string(reader.chunks[0]) != "hello" {
		t.Errorf("Expected body streamed to reader, got %v", reader.chunks)
	}
	if len(req.BodyView()) != 0 {
		t.Error("Expected no buffered body for streamed request")
	}
}

// Benchmarks
func BenchmarkParseSimpleGet(b *testing.B) {
	wire := []byte("GET /index.html?lang=en HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n")
	req := NewRequest()
	p := NewRequestParser(req)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req.Reset()
		p.Reset(req)
		if _, complete, err := p.Feed(wire); err != nil || !complete {
			b.Fatalf("parse failed: complete=%v err=%v", complete, err)
		}
	}
}

func BenchmarkHeaderLookup(b *testing.B) {
	req := NewRequest()
	req.AddHeader("Content-Type", "application/json")
	req.AddHeader("X-Request-Id", "abc-123")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if req.GetHeader("X-Request-Id") == "" {
			b.Fatal("header lost")
		}
	}
}

// TestParseNoBodyStreamFinish tests that a streaming request without a
// body finishes at the blank line
func TestParseNoBodyStreamFinish(t *testing.T) {
	req := NewRequest()
	p := NewRequestParser(req)
	req.StreamStart()

	if !feedAll(t, p, "GET /events HTTP/1.1\r\n\r\n") {
		t.Fatal("Expected complete message")
	}
	if req.StreamStatus() != StreamFinish {
		t.Errorf("Expected StreamFinish, got %v", req.StreamStatus())
	}
}
