package http

import (
	"bytes"
	"testing"
)

// TestBodySpill tests that a body crossing the spill threshold moves to
// file backing with an identical contiguous view
func TestBodySpill(t *testing.T) {
	req := NewRequest()
	req.SetSpillThreshold(64)

	var want bytes.Buffer
	for i := 0; i < 16; i++ {
		chunk := bytes.Repeat([]byte{byte('a' + i)}, 16)
		want.Write(chunk)
		if err := req.AppendToBody(chunk); err != nil {
			t.Fatalf("AppendToBody: %v", err)
		}
	}

	if req.BodyLength() != int64(want.Len()) {
		t.Errorf("Expected length %d, got %d", want.Len(), req.BodyLength())
	}
	if !bytes.Equal(req.BodyView(), want.Bytes()) {
		t.Error("Expected spilled view to match appended bytes")
	}
	// A second view over the same backing is stable.
	if !bytes.Equal(req.BodyView(), want.Bytes()) {
		t.Error("Expected repeated view to stay identical")
	}

	req.Reset()
	if req.BodyLength() != 0 {
		t.Errorf("Expected empty body after reset, got %d", req.BodyLength())
	}
}

// TestBodySmallStaysInMemory tests that a body under the threshold never
// spills
func TestBodySmallStaysInMemory(t *testing.T) {
	req := NewRequest()
	req.SetSpillThreshold(1024)
	req.AppendToBody([]byte("small"))

	if req.body.kind != bodyMemory {
		t.Error("Expected in-memory backing under threshold")
	}
	if string(req.BodyView()) != "small" {
		t.Errorf("Expected body 'small', got %q", req.BodyView())
	}
}

// TestBodySetReplacesSpill tests that set drops the file backing
func TestBodySetReplacesSpill(t *testing.T) {
	req := NewRequest()
	req.SetSpillThreshold(8)
	req.AppendToBody(bytes.Repeat([]byte("z"), 64))
	if req.body.kind != bodyFile {
		t.Fatal("Expected spilled backing")
	}

	req.SetBody([]byte("replacement"))
	if req.body.kind != bodyMemory {
		t.Error("Expected in-memory backing after set")
	}
	if string(req.BodyView()) != "replacement" {
		t.Errorf("Expected replacement body, got %q", req.BodyView())
	}
}
