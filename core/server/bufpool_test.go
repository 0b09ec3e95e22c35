package server

import "testing"

// TestReadBufferPoolTiers tests tier selection and recycling
func TestReadBufferPoolTiers(t *testing.T) {
	bp := newReadBufferPool()

	small := bp.get(false)
	if cap(*small) != smallReadBuffer {
		t.Errorf("Expected small buffer cap %d, got %d", smallReadBuffer, cap(*small))
	}
	large := bp.get(true)
	if cap(*large) != largeReadBuffer {
		t.Errorf("Expected large buffer cap %d, got %d", largeReadBuffer, cap(*large))
	}
	bp.put(small)
	bp.put(large)

	s, l := bp.Stats()
	if s != 1 || l != 1 {
		t.Errorf("Expected one hit per tier, got small=%d large=%d", s, l)
	}

	// Foreign sizes are dropped instead of poisoning a tier.
	odd := make([]byte, 100)
	bp.put(&odd)
}
