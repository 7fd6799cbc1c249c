package geometry

import (
	"errors"
	"math"
	"testing"
)

func TestPointInPolygon(t *testing.T) {
	square := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"center", Point{5, 5}, true},
		{"outside right", Point{15, 5}, false},
		{"outside left", Point{-1, 5}, false},
		{"outside above", Point{5, 15}, false},
		{"outside below", Point{5, -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PointInPolygon(tt.p, square); got != tt.want {
				t.Errorf("PointInPolygon(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestPolygonArea(t *testing.T) {
	square := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if got := PolygonArea(square); got != 100 {
		t.Errorf("PolygonArea() = %v, want 100", got)
	}

	// Reversed winding should give the same absolute area.
	reversed := Polygon{{0, 0}, {0, 10}, {10, 10}, {10, 0}}
	if got := PolygonArea(reversed); got != 100 {
		t.Errorf("PolygonArea(reversed) = %v, want 100", got)
	}
}

func TestIsConvex(t *testing.T) {
	square := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if !IsConvex(square) {
		t.Error("expected square to be convex")
	}

	// L-shape is not convex.
	lshape := Polygon{{0, 0}, {10, 0}, {10, 5}, {5, 5}, {5, 10}, {0, 10}}
	if IsConvex(lshape) {
		t.Error("expected L-shape to not be convex")
	}
}

func TestIsSelfIntersecting(t *testing.T) {
	square := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if IsSelfIntersecting(square) {
		t.Error("expected square to not self-intersect")
	}

	// Bowtie: scenario 5 from spec.md §8.
	bowtie := Polygon{{100, 100}, {200, 200}, {200, 100}, {100, 200}}
	if !IsSelfIntersecting(bowtie) {
		t.Error("expected bowtie to self-intersect")
	}
}

func TestSegmentIntersect_AdjacentEdgesExcluded(t *testing.T) {
	// Two segments sharing an endpoint must not be reported as
	// intersecting (adjacent polygon edges).
	a, b := Point{0, 0}, Point{10, 0}
	c, d := Point{10, 0}, Point{10, 10}
	if SegmentIntersect(a, b, c, d) {
		t.Error("segments sharing an endpoint must not count as intersecting")
	}
}

func TestSegmentIntersect_Crossing(t *testing.T) {
	a, b := Point{0, 0}, Point{10, 10}
	c, d := Point{0, 10}, Point{10, 0}
	if !SegmentIntersect(a, b, c, d) {
		t.Error("expected crossing diagonals to intersect")
	}
}

func TestValidate_AreaBoundary(t *testing.T) {
	// Triangle with area exactly at the boundary of min_area (spec §8
	// boundary scenario): area just above accepted, just below rejected.
	opts := ValidationOptions{MinArea: 100}

	// base=20,height=10.1 -> area=101 > 100
	above := Polygon{{0, 0}, {20, 0}, {0, 10.1}}
	if _, err := Validate(above, opts); err != nil {
		t.Errorf("expected area just above min_area to be accepted, got %v", err)
	}

	// base=20,height=9.9 -> area=99 < 100
	below := Polygon{{0, 0}, {20, 0}, {0, 9.9}}
	if _, err := Validate(below, opts); !errors.Is(err, ErrAreaTooSmall) {
		t.Errorf("expected area just below min_area to be rejected with ErrAreaTooSmall, got %v", err)
	}
}

func TestValidate_SelfIntersectionRejected(t *testing.T) {
	bowtie := Polygon{{100, 100}, {200, 200}, {200, 100}, {100, 200}}
	area, err := Validate(bowtie, ValidationOptions{MinArea: 100})
	if !errors.Is(err, ErrSelfIntersection) {
		t.Fatalf("expected ErrSelfIntersection, got %v", err)
	}
	if area <= 0 {
		t.Error("expected area to be populated even on rejection")
	}
}

func TestValidate_Idempotent(t *testing.T) {
	square := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	opts := ValidationOptions{MinArea: 10}
	area1, err1 := Validate(square, opts)
	area2, err2 := Validate(square, opts)
	if area1 != area2 || err1 != err2 {
		t.Errorf("Validate not idempotent: (%v,%v) vs (%v,%v)", area1, err1, area2, err2)
	}
}

func TestValidate_InsufficientPoints(t *testing.T) {
	line := Polygon{{0, 0}, {10, 0}}
	if _, err := Validate(line, ValidationOptions{}); !errors.Is(err, ErrInsufficientPoints) {
		t.Errorf("expected ErrInsufficientPoints, got %v", err)
	}
}

func TestValidate_CoordOutOfRange(t *testing.T) {
	square := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	_, err := Validate(square, ValidationOptions{MinArea: 1, FrameWidth: 5, FrameHeight: 5})
	if !errors.Is(err, ErrCoordOutOfRange) {
		t.Errorf("expected ErrCoordOutOfRange, got %v", err)
	}
}

func TestBoundingBoxDiagonal(t *testing.T) {
	square := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	got := BoundingBoxDiagonal(square)
	want := math.Hypot(10, 10)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("BoundingBoxDiagonal() = %v, want %v", got, want)
	}
}
