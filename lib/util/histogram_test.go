package util

import "testing"

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	if h.Percentile(50) != 0 || h.Average() != 0 {
		t.Fatal("Empty histogram should report zero")
	}

	for i := 0; i < 9; i++ {
		h.Add(10)
	}
	h.Add(2000)

	if h.Count() != 10 {
		t.Errorf("Expected 10 samples, got %d", h.Count())
	}
	if h.Total() != 2090 {
		t.Errorf("Expected total 2090, got %d", h.Total())
	}
	if h.Average() != 209 {
		t.Errorf("Expected average 209, got %d", h.Average())
	}
	if p := h.Percentile(50); p != 8 {
		t.Errorf("Expected median estimate 8, got %d", p)
	}
	if p := h.Percentile(100); p != (1024+4096)/2 {
		t.Errorf("Expected p100 estimate %d, got %d", (1024+4096)/2, p)
	}

	buckets := h.Buckets()
	if buckets["<=16"] != 9 || buckets["<=4096"] != 1 || len(buckets) != 2 {
		t.Errorf("Unexpected buckets %v", buckets)
	}

	h.Remove(2000)
	h.Remove(1 << 40) // unknown bucket, ignored
	if h.Count() != 9 {
		t.Errorf("Expected 9 samples after remove, got %d", h.Count())
	}
	if _, ok := h.Buckets()[">4294967296"]; ok {
		t.Error("Overflow bucket should be empty")
	}
}

func TestPartition(t *testing.T) {
	if Partition("k", 1) != 0 || Partition("k", 0) != 0 {
		t.Error("Single partition must map to 0")
	}
	for _, key := range []string{"a", "b", "user::1", "user::2"} {
		p := Partition(key, 4)
		if p < 0 || p >= 4 {
			t.Errorf("Partition out of range for %q: %d", key, p)
		}
		if p != Partition(key, 4) {
			t.Errorf("Partition not stable for %q", key)
		}
	}
	if HashKey("a", 1) == HashKey("a", 2) {
		t.Error("Seed should change the hash")
	}
}
