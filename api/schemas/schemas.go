package schemas

import "fmt"

// Point is a pixel coordinate in screenshot space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// BoundingBox is an axis-aligned rectangle given by its top-left (X1,Y1) and
// bottom-right (X2,Y2) corners.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width of the box in pixels.
func (b BoundingBox) Width() int { return b.X2 - b.X1 }

// Height of the box in pixels.
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// Valid reports whether the box has a positive area.
func (b BoundingBox) Valid() bool { return b.X1 < b.X2 && b.Y1 < b.Y2 }

// Center returns the integer centroid of the box. Division truncates toward
// negative infinity for the non-negative coordinates a screen produces.
func (b BoundingBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Contains reports whether other lies entirely inside b (edges may touch).
func (b BoundingBox) Contains(other BoundingBox) bool {
	return other.X1 >= b.X1 && other.Y1 >= b.Y1 && other.X2 <= b.X2 && other.Y2 <= b.Y2
}

// Intersect returns the overlap of b and other. The result is not Valid when
// the boxes do not overlap.
func (b BoundingBox) Intersect(other BoundingBox) BoundingBox {
	return BoundingBox{
		X1: max(b.X1, other.X1),
		Y1: max(b.Y1, other.Y1),
		X2: min(b.X2, other.X2),
		Y2: min(b.Y2, other.Y2),
	}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", b.X1, b.Y1, b.X2, b.Y2)
}

// Trait flags why a UI node was considered interactive.
type Trait uint8

const (
	TraitClickable Trait = 1 << iota
	TraitLongClickable
	TraitScrollable
	TraitEditable
	TraitCheckable
	TraitLabeled
)

// Has reports whether all bits of t2 are set in t.
func (t Trait) Has(t2 Trait) bool { return t&t2 == t2 }

// Element is one interactive region grounded for a single round. Its Index is
// only meaningful against the snapshot it was extracted from.
type Element struct {
	Index       int         `json:"index"`
	Box         BoundingBox `json:"bbox"`
	UID         string      `json:"uid"`
	ResourceID  string      `json:"resource_id,omitempty"`
	Class       string      `json:"class,omitempty"`
	Text        string      `json:"text,omitempty"`
	ContentDesc string      `json:"content_desc,omitempty"`
	Traits      Trait       `json:"traits"`
}

// Center is the element's tap point.
func (e Element) Center() Point { return e.Box.Center() }

// RoundRecord is the observed/decided/acted tuple of one round, taken
// verbatim from a single decision reply.
type RoundRecord struct {
	Observation string `json:"observation"`
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	Summary     string `json:"summary"`
}
