package tokenize

import "testing"

func TestCount(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n := c.Count(""); n != 0 {
		t.Fatalf("empty string: got %d tokens, want 0", n)
	}
	if n := c.Count("Hello, world!"); n <= 0 {
		t.Fatalf("expected positive token count, got %d", n)
	}
}

func TestCountDeterministic(t *testing.T) {
	c := Default()
	a := c.Count("The quick brown fox jumps over the lazy dog.")
	b := c.Count("The quick brown fox jumps over the lazy dog.")
	if a != b {
		t.Fatalf("expected deterministic counts, got %d and %d", a, b)
	}
}
