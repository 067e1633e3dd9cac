package embed

import (
	"context"
	"math"
	"testing"
)

func TestDeterministic_SameInputSameVector(t *testing.T) {
	d := NewDeterministic(32, 7)
	a, err := d.EmbedOne(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := d.EmbedOne(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical vectors, differ at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestDeterministic_DifferentInputDifferentVector(t *testing.T) {
	d := NewDeterministic(32, 0)
	a, _ := d.EmbedOne(context.Background(), "alpha")
	b, _ := d.EmbedOne(context.Background(), "beta")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected distinct vectors for distinct inputs")
	}
}

func TestDeterministic_Normalized(t *testing.T) {
	d := NewDeterministic(16, 1)
	v, _ := d.EmbedOne(context.Background(), "a reasonably long piece of text to hash")
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if math.Abs(norm-1.0) > 1e-4 {
		t.Fatalf("expected unit-normalized vector, got norm %v", norm)
	}
}

func TestDeterministic_EmptyString(t *testing.T) {
	d := NewDeterministic(8, 0)
	v, err := d.EmbedOne(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector for empty string, got %v", v)
		}
	}
}

func TestDeterministic_BatchPreservesOrder(t *testing.T) {
	d := NewDeterministic(16, 3)
	texts := []string{"one", "two", "three"}
	batch, err := d.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, text := range texts {
		single, _ := d.EmbedOne(context.Background(), text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch[%d] diverges from single embed at dim %d", i, j)
			}
		}
	}
}
