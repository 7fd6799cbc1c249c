package inference

import (
	"image"
)

// LetterboxResult carries the transform needed to map detections back
// from model input space into original frame pixel coordinates.
type LetterboxResult struct {
	Data       []float32 // CHW, RGB, normalized to [0,1]
	Scale      float64
	PadX, PadY float64
	SrcW, SrcH int
}

// Letterbox resizes src to fit within dstW x dstH while preserving
// aspect ratio, pads the remainder with (114,114,114) (the Ultralytics
// convention), converts BGR->RGB and normalizes to [0,1], and returns a
// CHW float32 tensor ready for the model along with the inverse
// transform.
func Letterbox(src image.Image, dstW, dstH int) LetterboxResult {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	scale := minF(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	newW := int(float64(srcW) * scale)
	newH := int(float64(srcH) * scale)
	padX := float64(dstW-newW) / 2
	padY := float64(dstH-newH) / 2

	data := make([]float32, 3*dstW*dstH)
	const pad = 114.0 / 255.0
	for i := range data {
		data[i] = pad
	}

	plane := dstW * dstH
	for y := 0; y < newH; y++ {
		srcY := int(float64(y) / scale)
		if srcY >= srcH {
			srcY = srcH - 1
		}
		dstY := y + int(padY)
		if dstY < 0 || dstY >= dstH {
			continue
		}
		for x := 0; x < newW; x++ {
			srcX := int(float64(x) / scale)
			if srcX >= srcW {
				srcX = srcW - 1
			}
			dstX := x + int(padX)
			if dstX < 0 || dstX >= dstW {
				continue
			}
			r, g, bch, _ := src.At(b.Min.X+srcX, b.Min.Y+srcY).RGBA()
			idx := dstY*dstW + dstX
			data[0*plane+idx] = float32(r>>8) / 255
			data[1*plane+idx] = float32(g>>8) / 255
			data[2*plane+idx] = float32(bch>>8) / 255
		}
	}

	return LetterboxResult{
		Data: data, Scale: scale, PadX: padX, PadY: padY,
		SrcW: srcW, SrcH: srcH,
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// UnletterboxBox maps a box in letterboxed model-input coordinates back
// to the original frame's pixel coordinates.
func (r LetterboxResult) UnletterboxBox(x, y, w, h float64) (float64, float64, float64, float64) {
	ox := (x - r.PadX) / r.Scale
	oy := (y - r.PadY) / r.Scale
	ow := w / r.Scale
	oh := h / r.Scale
	return ox, oy, ow, oh
}
