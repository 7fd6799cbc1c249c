package inference

import (
	"math"
	"sort"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

// PostprocessOptions controls detection decode thresholds (spec §4.2
// defaults).
type PostprocessOptions struct {
	ObjectnessThreshold float64 // default 0.5
	NMSIoUThreshold     float64 // default 0.45
	AllowedClasses      map[int]bool // nil means allow all
	ClassNames          map[int]string
}

func (o PostprocessOptions) withDefaults() PostprocessOptions {
	if o.ObjectnessThreshold <= 0 {
		o.ObjectnessThreshold = 0.5
	}
	if o.NMSIoUThreshold <= 0 {
		o.NMSIoUThreshold = 0.45
	}
	return o
}

// Sigmoid is the logistic function used to convert raw objectness/class
// logits into probabilities.
func Sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// rawBox is one candidate decoded from the model output tensor before
// thresholding and NMS.
type rawBox struct {
	box        model.BBox
	classID    int
	confidence float64
}

// DecodeDetections applies the objectness*classScore threshold and
// per-class NMS to a flat list of raw candidates, then maps surviving
// boxes back into original-frame coordinates via the letterbox inverse
// transform.
func DecodeDetections(candidates []Candidate, lb LetterboxResult, opts PostprocessOptions) []model.Detection {
	opts = opts.withDefaults()

	byClass := map[int][]rawBox{}
	for _, c := range candidates {
		obj := float64(Sigmoid(c.Objectness))
		for classID, logit := range c.ClassLogits {
			if opts.AllowedClasses != nil && !opts.AllowedClasses[classID] {
				continue
			}
			score := obj * float64(Sigmoid(logit))
			if score < opts.ObjectnessThreshold {
				continue
			}
			x, y, w, h := lb.UnletterboxBox(float64(c.CX-c.W/2), float64(c.CY-c.H/2), float64(c.W), float64(c.H))
			byClass[classID] = append(byClass[classID], rawBox{
				box:        model.BBox{X: x, Y: y, W: w, H: h},
				classID:    classID,
				confidence: score,
			})
		}
	}

	var out []model.Detection
	for classID, boxes := range byClass {
		kept := nms(boxes, opts.NMSIoUThreshold)
		name := opts.ClassNames[classID]
		for _, b := range kept {
			out = append(out, model.Detection{
				BBox:       b.box,
				ClassID:    classID,
				ClassName:  name,
				Confidence: b.confidence,
			})
		}
	}
	return out
}

// Candidate is one raw anchor/grid-cell output from a detection model,
// already dequantized to float32 but still in letterboxed model-input
// space and logit form (pre-sigmoid).
type Candidate struct {
	CX, CY, W, H float32
	Objectness   float32
	ClassLogits  map[int]float32
}

// nms performs greedy non-maximum suppression within one class: sort by
// confidence descending, keep the top box, discard every remaining box
// whose IoU with a kept box exceeds iouThresh, repeat.
func nms(boxes []rawBox, iouThresh float64) []rawBox {
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].confidence > boxes[j].confidence })

	kept := make([]rawBox, 0, len(boxes))
	suppressed := make([]bool, len(boxes))
	for i := range boxes {
		if suppressed[i] {
			continue
		}
		kept = append(kept, boxes[i])
		for j := i + 1; j < len(boxes); j++ {
			if suppressed[j] {
				continue
			}
			if boxes[i].box.IoU(boxes[j].box) > iouThresh {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// DecodeFP16 converts an IEEE-754 binary16 value to float32. It
// implements the full standard (subnormals, infinities, NaN) rather than
// the common but incorrect `float32(u16) / 65536` shortcut, which
// silently mishandles exponent bias and drops subnormals.
func DecodeFP16(u16 uint16) float32 {
	sign := uint32(u16&0x8000) << 16
	exp := uint32(u16&0x7C00) >> 10
	frac := uint32(u16 & 0x03FF)

	switch {
	case exp == 0 && frac == 0:
		return math.Float32frombits(sign)
	case exp == 0: // subnormal
		// Normalize the fraction: shift until the implicit leading bit
		// would be set, adjusting the exponent accordingly.
		e := int32(-1)
		for frac&0x0400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x03FF
		exp32 := uint32(int32(127-15) + e + 1)
		return math.Float32frombits(sign | (exp32 << 23) | (frac << 13))
	case exp == 0x1F: // inf or NaN
		return math.Float32frombits(sign | 0x7F800000 | (frac << 13))
	default:
		exp32 := exp - 15 + 127
		return math.Float32frombits(sign | (exp32 << 23) | (frac << 13))
	}
}

// DecodeFP16Slice converts a slice of binary16 words into float32.
func DecodeFP16Slice(u16s []uint16) []float32 {
	out := make([]float32, len(u16s))
	for i, v := range u16s {
		out[i] = DecodeFP16(v)
	}
	return out
}
