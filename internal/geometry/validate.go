package geometry

import "errors"

// Polygon validation error kinds, shared between the ROI validator and
// the external configuration-ingress API (spec §7 PolygonInvalid).
var (
	ErrInsufficientPoints = errors.New("polygon_invalid: insufficient_points")
	ErrCoordOutOfRange    = errors.New("polygon_invalid: coord_out_of_range")
	ErrAreaTooSmall       = errors.New("polygon_invalid: area_too_small")
	ErrSelfIntersection   = errors.New("polygon_invalid: self_intersection")
	ErrNotConvex          = errors.New("polygon_invalid: not_convex")
)

const DefaultMinAreaPx2 = 100.0

// ValidationOptions controls optional ROI validation checks.
type ValidationOptions struct {
	MinArea         float64 // default DefaultMinAreaPx2 when zero
	FrameWidth      float64
	FrameHeight     float64
	RequireConvex   bool
}

// Validate checks poly against the invariants of spec §4.6: at least 3
// vertices, coordinates within frame bounds (when FrameWidth/Height are
// set), area >= MinArea, no self-intersection, and (optionally)
// convexity. It returns the first violation found, in the order listed
// above, along with the computed area (populated even on failure, except
// for InsufficientPoints where area is not meaningful).
//
// Validate is idempotent: calling it twice on the same input produces the
// same result, since it only reads poly.
func Validate(poly Polygon, opts ValidationOptions) (area float64, err error) {
	if len(poly) < 3 {
		return 0, ErrInsufficientPoints
	}

	if opts.FrameWidth > 0 || opts.FrameHeight > 0 {
		for _, v := range poly {
			if v.X < 0 || v.Y < 0 {
				return PolygonArea(poly), ErrCoordOutOfRange
			}
			if opts.FrameWidth > 0 && v.X > opts.FrameWidth {
				return PolygonArea(poly), ErrCoordOutOfRange
			}
			if opts.FrameHeight > 0 && v.Y > opts.FrameHeight {
				return PolygonArea(poly), ErrCoordOutOfRange
			}
		}
	}

	area = PolygonArea(poly)

	minArea := opts.MinArea
	if minArea <= 0 {
		minArea = DefaultMinAreaPx2
	}
	if area < minArea {
		return area, ErrAreaTooSmall
	}

	if IsSelfIntersecting(poly) {
		return area, ErrSelfIntersection
	}

	if opts.RequireConvex && !IsConvex(poly) {
		return area, ErrNotConvex
	}

	return area, nil
}
