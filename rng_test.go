package fitsynth

import (
	"testing"
)

func TestRNG_Deterministic(t *testing.T) {
	a := NewRNG(42)
	b := NewRNG(42)
	for i := 0; i < 100; i++ {
		if av, bv := a.IntBetween(0, 1000), b.IntBetween(0, 1000); av != bv {
			t.Fatalf("draw %d diverged: %d vs %d", i, av, bv)
		}
	}

	c := NewRNG(43)
	same := 0
	d := NewRNG(42)
	for i := 0; i < 100; i++ {
		if c.IntBetween(0, 1000) == d.IntBetween(0, 1000) {
			same++
		}
	}
	if same == 100 {
		t.Error("different seeds produced identical streams")
	}
}

func TestRNG_IntBetweenBounds(t *testing.T) {
	r := NewRNG(7)
	for i := 0; i < 1000; i++ {
		v := r.IntBetween(18, 66)
		if v < 18 || v >= 66 {
			t.Fatalf("IntBetween(18, 66) = %d, out of range", v)
		}
	}
}

func TestRNG_Float64Range(t *testing.T) {
	r := NewRNG(7)
	for i := 0; i < 1000; i++ {
		v := r.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("Float64() = %v, out of range", v)
		}
	}
}

func TestRNG_PickMembership(t *testing.T) {
	opts := []string{"fat_loss", "muscle_gain", "endurance"}
	r := NewRNG(11)
	for i := 0; i < 200; i++ {
		got := r.Pick(opts)
		found := false
		for _, o := range opts {
			if got == o {
				found = true
			}
		}
		if !found {
			t.Fatalf("Pick returned %q, not in options", got)
		}
	}
}

func TestRNG_SampleNoDuplicates(t *testing.T) {
	opts := []string{"a", "b", "c", "d", "e"}
	r := NewRNG(3)
	for i := 0; i < 50; i++ {
		got := r.Sample(opts, 3)
		if len(got) != 3 {
			t.Fatalf("Sample size = %d, want 3", len(got))
		}
		seen := map[string]bool{}
		for _, s := range got {
			if seen[s] {
				t.Fatalf("Sample returned duplicate %q in %v", s, got)
			}
			seen[s] = true
		}
	}
}

func TestRNG_SampleInts(t *testing.T) {
	r := NewRNG(5)
	got, err := r.SampleInts(21, 14)
	if err != nil {
		t.Fatalf("SampleInts(21, 14) error: %v", err)
	}
	if len(got) != 14 {
		t.Fatalf("SampleInts size = %d, want 14", len(got))
	}
	seen := map[int]bool{}
	for _, v := range got {
		if v < 0 || v >= 21 {
			t.Fatalf("SampleInts value %d out of [0,21)", v)
		}
		if seen[v] {
			t.Fatalf("SampleInts returned duplicate %d", v)
		}
		seen[v] = true
	}

	if _, err := r.SampleInts(3, 5); err == nil {
		t.Error("expected error when k > n")
	}
}

func TestRNG_NormalSpread(t *testing.T) {
	r := NewRNG(9)
	var sum float64
	n := 5000
	for i := 0; i < n; i++ {
		sum += r.Normal(171, 10)
	}
	mean := sum / float64(n)
	if mean < 168 || mean > 174 {
		t.Errorf("Normal(171, 10) sample mean = %v, want near 171", mean)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(300, 145, 205); got != 205 {
		t.Errorf("Clamp high = %v, want 205", got)
	}
	if got := Clamp(12, 145, 205); got != 145 {
		t.Errorf("Clamp low = %v, want 145", got)
	}
	if got := Clamp(171.5, 145, 205); got != 171.5 {
		t.Errorf("Clamp in range = %v, want 171.5", got)
	}
	if got := ClampInt(25, 1, 20); got != 20 {
		t.Errorf("ClampInt high = %d, want 20", got)
	}
	if got := ClampInt(-1, 0, 5); got != 0 {
		t.Errorf("ClampInt low = %d, want 0", got)
	}
}
