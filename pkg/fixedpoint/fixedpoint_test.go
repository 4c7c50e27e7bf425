package fixedpoint

import "testing"

func TestRoundDownUp(t *testing.T) {
	tick := NewFromFloat(0.01)

	bid := NewFromFloat(99.923)
	if got := bid.RoundDown(tick); got.String() != "99.92" {
		t.Fatalf("bid floor = %s, want 99.92", got.String())
	}

	ask := NewFromFloat(100.181)
	if got := ask.RoundUp(tick); got.String() != "100.19" {
		t.Fatalf("ask ceil = %s, want 100.19", got.String())
	}

	// exact multiple must not be bumped
	exact := NewFromFloat(100.10)
	if got := exact.RoundUp(tick); got.String() != "100.1" {
		t.Fatalf("exact ceil = %s, want 100.1", got.String())
	}
}

func TestClamp(t *testing.T) {
	v := NewFromFloat(1.5)
	got := v.Clamp(NewFromInt(-1), NewFromInt(1))
	if got.Compare(NewFromInt(1)) != 0 {
		t.Fatalf("clamp high = %s, want 1", got.String())
	}

	v2 := NewFromFloat(-1.5)
	got2 := v2.Clamp(NewFromInt(-1), NewFromInt(1))
	if got2.Compare(NewFromInt(-1)) != 0 {
		t.Fatalf("clamp low = %s, want -1", got2.String())
	}
}

func TestMinMax(t *testing.T) {
	a := NewFromInt(3)
	b := NewFromInt(7)
	if Min(a, b).Compare(a) != 0 {
		t.Fatalf("min wrong")
	}
	if Max(a, b).Compare(b) != 0 {
		t.Fatalf("max wrong")
	}
}
