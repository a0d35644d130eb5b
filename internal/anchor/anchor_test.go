package anchor

import (
	"math"
	"testing"
)

func rectsClose(a, b Rect) bool {
	const eps = 1e-9
	return math.Abs(a.StartX-b.StartX) < eps &&
		math.Abs(a.StartY-b.StartY) < eps &&
		math.Abs(a.EndX-b.EndX) < eps &&
		math.Abs(a.EndY-b.EndY) < eps
}

// TestRoundTripConstantScale verifies denormalize(normalize(r, s), s) == r.
func TestRoundTripConstantScale(t *testing.T) {
	rects := []Rect{
		{StartX: 10, StartY: 20, EndX: 110, EndY: 35},
		{StartX: 0.5, StartY: 0.25, EndX: 612.75, EndY: 792.5},
		{StartX: 3, StartY: 3, EndX: 3, EndY: 3},
	}
	scales := []float64{0.5, 1, 1.25, 2, 3.7}

	for _, r := range rects {
		for _, s := range scales {
			got := Normalize(r, s, 1).Denormalize(s)
			if !rectsClose(got, r) {
				t.Errorf("round-trip at scale %v: got %+v, want %+v", s, got, r)
			}
		}
	}
}

// TestCrossScaleLinear verifies normalizing at s1 and rendering at s2 scales
// coordinates by exactly s2/s1.
func TestCrossScaleLinear(t *testing.T) {
	r := Rect{StartX: 40, StartY: 80, EndX: 200, EndY: 95}
	s1, s2 := 2.0, 0.5

	got := Normalize(r, s1, 3).Denormalize(s2)
	ratio := s2 / s1
	want := Rect{
		StartX: r.StartX * ratio,
		StartY: r.StartY * ratio,
		EndX:   r.EndX * ratio,
		EndY:   r.EndY * ratio,
	}
	if !rectsClose(got, want) {
		t.Errorf("cross-scale render: got %+v, want %+v", got, want)
	}
}

func TestNormalizeKeepsPage(t *testing.T) {
	a := Normalize(Rect{StartX: 1, EndX: 2}, 1.5, 7)
	if a.Page != 7 {
		t.Errorf("page = %d, want 7", a.Page)
	}
}

func TestIsZero(t *testing.T) {
	if !Normalize(Rect{StartX: 5, StartY: 5, EndX: 5, EndY: 5}, 2, 1).IsZero() {
		t.Error("degenerate rect should normalize to a zero anchor")
	}
	if Normalize(Rect{StartX: 5, StartY: 5, EndX: 6, EndY: 5}, 2, 1).IsZero() {
		t.Error("non-degenerate rect reported as zero")
	}
}

func TestEncodeDecode(t *testing.T) {
	a := Anchor{Page: 2, StartX: 12.5, StartY: 30, EndX: 98.25, EndY: 42, StartOffset: 4, EndOffset: 31}

	got, err := Decode(a.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != a {
		t.Errorf("decoded = %+v, want %+v", got, a)
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := Decode("{not json"); err == nil {
		t.Error("expected error for malformed anchor string")
	}
}
