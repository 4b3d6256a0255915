package telemetry

import "testing"

func TestCollectReturnsNonNegativeValues(t *testing.T) {
	c := New("/")
	data := c.Collect()
	if data.CPUPercent < 0 || data.CPUPercent > 100 {
		t.Fatalf("cpu percent out of range: %v", data.CPUPercent)
	}
	if data.MemUsedBytes > data.MemTotalBytes && data.MemTotalBytes != 0 {
		t.Fatalf("used memory %d exceeds total %d", data.MemUsedBytes, data.MemTotalBytes)
	}
	if data.OSVersion == "" {
		t.Fatal("expected non-empty os version")
	}
}

func TestNewDefaultsRootToSlash(t *testing.T) {
	c := New("")
	if c.root != "/" {
		t.Fatalf("root = %q, want /", c.root)
	}
}
