// Package anchor converts on-screen text selections into scale-invariant,
// page-relative geometry so a highlight captured at one zoom level renders
// correctly at any other.
package anchor

import (
	"encoding/json"
	"fmt"
)

// Rect is a selection rectangle in device pixels at some render scale.
type Rect struct {
	StartX float64 `json:"startX"`
	StartY float64 `json:"startY"`
	EndX   float64 `json:"endX"`
	EndY   float64 `json:"endY"`
}

// Anchor is the durable, scale-normalized form of a selection. Coordinates
// are raw pixels divided by the render scale at capture time; multiplying by
// the current scale recovers screen coordinates. StartOffset/EndOffset are
// character offsets within the selection's text node, kept for future precise
// re-selection and ignored for identity.
type Anchor struct {
	Page        int     `json:"page"`
	StartX      float64 `json:"startX"`
	StartY      float64 `json:"startY"`
	EndX        float64 `json:"endX"`
	EndY        float64 `json:"endY"`
	StartOffset int     `json:"startOffset"`
	EndOffset   int     `json:"endOffset"`
}

// Normalize divides raw coordinates by scale to produce an Anchor for the
// given 1-based page. A degenerate rectangle normalizes to a zero-size
// anchor; callers reject those via IsZero.
func Normalize(r Rect, scale float64, page int) Anchor {
	return Anchor{
		Page:   page,
		StartX: r.StartX / scale,
		StartY: r.StartY / scale,
		EndX:   r.EndX / scale,
		EndY:   r.EndY / scale,
	}
}

// Denormalize multiplies the anchor back out by the current render scale.
func (a Anchor) Denormalize(scale float64) Rect {
	return Rect{
		StartX: a.StartX * scale,
		StartY: a.StartY * scale,
		EndX:   a.EndX * scale,
		EndY:   a.EndY * scale,
	}
}

// IsZero reports whether the anchor covers no area (an empty selection).
func (a Anchor) IsZero() bool {
	return a.StartX == a.EndX && a.StartY == a.EndY
}

// Encode serializes the anchor to its opaque stored form.
func (a Anchor) Encode() string {
	b, _ := json.Marshal(a)
	return string(b)
}

// Decode parses the stored form back into an Anchor.
func Decode(s string) (Anchor, error) {
	var a Anchor
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return Anchor{}, fmt.Errorf("parsing anchor: %w", err)
	}
	return a, nil
}
