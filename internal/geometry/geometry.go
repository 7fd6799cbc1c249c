// Package geometry implements the pure 2D primitives shared by ROI
// validation and the behavior rule engine: point-in-polygon, segment
// intersection, area, convexity and self-intersection checks.
package geometry

import "math"

// Point is a point on the image plane, in frame pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Polygon is an ordered list of vertices. The last vertex is implicitly
// connected back to the first.
type Polygon []Point

// PointInPolygon reports whether p lies inside poly using the even-odd
// (ray casting) rule. Points exactly on an edge are not guaranteed to be
// classified consistently, as is standard for this algorithm.
func PointInPolygon(p Point, poly Polygon) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := poly[i], poly[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			xIntersect := (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if p.X < xIntersect {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// orientation returns the sign of the cross product (b-a) x (c-a):
// > 0 counter-clockwise, < 0 clockwise, 0 collinear.
func orientation(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func onSegment(a, b, p Point) bool {
	if orientation(a, b, p) != 0 {
		return false
	}
	return p.X >= math.Min(a.X, b.X) && p.X <= math.Max(a.X, b.X) &&
		p.Y >= math.Min(a.Y, b.Y) && p.Y <= math.Max(a.Y, b.Y)
}

// SegmentIntersect reports whether segment ab strictly intersects segment
// cd. Shared endpoints (as occur between adjacent polygon edges) are not
// treated as an intersection — callers checking non-adjacent edges for
// self-intersection rely on this.
func SegmentIntersect(a, b, c, d Point) bool {
	if a == c || a == d || b == c || b == d {
		return false
	}

	o1 := orientation(a, b, c)
	o2 := orientation(a, b, d)
	o3 := orientation(c, d, a)
	o4 := orientation(c, d, b)

	if sign(o1) != sign(o2) && sign(o3) != sign(o4) {
		return true
	}

	// Collinear special cases: a point of one segment lies on the other.
	if o1 == 0 && onSegment(a, b, c) {
		return true
	}
	if o2 == 0 && onSegment(a, b, d) {
		return true
	}
	if o3 == 0 && onSegment(c, d, a) {
		return true
	}
	if o4 == 0 && onSegment(c, d, b) {
		return true
	}
	return false
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// PolygonArea computes the absolute area of poly via the shoelace
// formula.
func PolygonArea(poly Polygon) float64 {
	n := len(poly)
	if n < 3 {
		return 0
	}
	sum := 0.0
	j := n - 1
	for i := 0; i < n; i++ {
		sum += (poly[j].X + poly[i].X) * (poly[j].Y - poly[i].Y)
		j = i
	}
	return math.Abs(sum) / 2
}

// IsConvex reports whether poly is convex by checking that consecutive
// cross products all carry the same sign. Collinear triples (cross == 0)
// are tolerated.
func IsConvex(poly Polygon) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	gotSign := 0
	for i := 0; i < n; i++ {
		a := poly[i]
		b := poly[(i+1)%n]
		c := poly[(i+2)%n]
		cross := orientation(a, b, c)
		s := sign(cross)
		if s == 0 {
			continue
		}
		if gotSign == 0 {
			gotSign = s
		} else if s != gotSign {
			return false
		}
	}
	return true
}

// IsSelfIntersecting reports whether any pair of non-adjacent edges of
// poly intersects.
func IsSelfIntersecting(poly Polygon) bool {
	n := len(poly)
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := poly[i], poly[(i+1)%n]
		for k := i + 1; k < n; k++ {
			b1, b2 := poly[k], poly[(k+1)%n]
			// Skip adjacent edges (share a vertex) and the edge itself.
			if k == i {
				continue
			}
			if (k+1)%n == i || (i+1)%n == k {
				continue
			}
			if SegmentIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

// Centroid returns the arithmetic mean of the polygon's vertices. Used as
// a cheap representative point for bounding-box-diagonal radius checks in
// the loitering rule; it is not the area centroid.
func Centroid(poly Polygon) Point {
	var sx, sy float64
	for _, v := range poly {
		sx += v.X
		sy += v.Y
	}
	n := float64(len(poly))
	if n == 0 {
		return Point{}
	}
	return Point{X: sx / n, Y: sy / n}
}

// BoundingBoxDiagonal returns the length of the diagonal of poly's
// axis-aligned bounding box.
func BoundingBoxDiagonal(poly Polygon) float64 {
	if len(poly) == 0 {
		return 0
	}
	minX, minY := poly[0].X, poly[0].Y
	maxX, maxY := poly[0].X, poly[0].Y
	for _, v := range poly[1:] {
		minX = math.Min(minX, v.X)
		minY = math.Min(minY, v.Y)
		maxX = math.Max(maxX, v.X)
		maxY = math.Max(maxY, v.Y)
	}
	dx, dy := maxX-minX, maxY-minY
	return math.Hypot(dx, dy)
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
