package geo

import (
	"fmt"
	"math"
)

// Rect is an axis-aligned bounding box.
//
// The zero value is the degenerate box at the origin. Use Empty for the
// identity of Union.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Empty returns the identity of Union: a box that contains nothing and
// intersects nothing.
func Empty() Rect {
	return Rect{
		MinX: math.Inf(1),
		MinY: math.Inf(1),
		MaxX: math.Inf(-1),
		MaxY: math.Inf(-1),
	}
}

// Point returns the degenerate box covering a single point.
func Point(x, y float64) Rect {
	return Rect{MinX: x, MinY: y, MaxX: x, MaxY: y}
}

// NewRect returns the box spanned by the two corners, in any order.
func NewRect(x1, y1, x2, y2 float64) Rect {
	return Rect{
		MinX: math.Min(x1, x2),
		MinY: math.Min(y1, y2),
		MaxX: math.Max(x1, x2),
		MaxY: math.Max(y1, y2),
	}
}

// IsEmpty reports whether r contains no point.
func (r Rect) IsEmpty() bool {
	return r.MinX > r.MaxX || r.MinY > r.MaxY
}

// Intersects reports whether r and o share at least one point.
// Touching edges count as an intersection.
func (r Rect) Intersects(o Rect) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.MinX <= o.MaxX && o.MinX <= r.MaxX &&
		r.MinY <= o.MaxY && o.MinY <= r.MaxY
}

// Contains reports whether o lies completely inside r.
// Every box contains the empty box.
func (r Rect) Contains(o Rect) bool {
	if o.IsEmpty() {
		return true
	}
	if r.IsEmpty() {
		return false
	}
	return r.MinX <= o.MinX && r.MinY <= o.MinY &&
		r.MaxX >= o.MaxX && r.MaxY >= o.MaxY
}

// Union returns the smallest box containing r and o.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		MinX: math.Min(r.MinX, o.MinX),
		MinY: math.Min(r.MinY, o.MinY),
		MaxX: math.Max(r.MaxX, o.MaxX),
		MaxY: math.Max(r.MaxY, o.MaxY),
	}
}

// Area returns the area of r, 0 for empty boxes.
func (r Rect) Area() float64 {
	if r.IsEmpty() {
		return 0
	}
	return (r.MaxX - r.MinX) * (r.MaxY - r.MinY)
}

// Enlargement returns how much the area of r grows when o is added to it.
func (r Rect) Enlargement(o Rect) float64 {
	return r.Union(o).Area() - r.Area()
}

// String implements fmt.Stringer.
func (r Rect) String() string {
	if r.IsEmpty() {
		return "[empty]"
	}
	return fmt.Sprintf("[%g %g, %g %g]", r.MinX, r.MinY, r.MaxX, r.MaxY)
}
