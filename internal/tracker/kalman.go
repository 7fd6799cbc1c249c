package tracker

import "gonum.org/v1/gonum/mat"

// kalmanState is a constant-velocity Kalman filter over the 8-dim state
// [cx, cy, aspect, height, vcx, vcy, vaspect, vheight], following the
// SORT/ByteTrack convention of tracking box center, aspect ratio and
// height rather than raw corner coordinates (aspect ratio varies far
// less than width under perspective).
type kalmanState struct {
	x *mat.VecDense // 8x1 state
	p *mat.Dense    // 8x8 covariance

	f *mat.Dense // state transition
	h *mat.Dense // observation model
	q *mat.Dense // process noise
	r *mat.Dense // observation noise
}

func newKalmanState(cx, cy, aspect, height float64) *kalmanState {
	k := &kalmanState{}
	k.x = mat.NewVecDense(8, []float64{cx, cy, aspect, height, 0, 0, 0, 0})

	k.p = mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		v := 10.0
		if i >= 4 {
			v = 1000.0 // high initial uncertainty on velocity
		}
		k.p.Set(i, i, v)
	}

	k.f = mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		k.f.Set(i, i, 1)
	}
	for i := 0; i < 4; i++ {
		k.f.Set(i, i+4, 1) // position += velocity
	}

	k.h = mat.NewDense(4, 8, nil)
	for i := 0; i < 4; i++ {
		k.h.Set(i, i, 1)
	}

	k.q = mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		v := 1.0
		if i >= 4 {
			v = 0.01
		}
		k.q.Set(i, i, v)
	}

	k.r = mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		k.r.Set(i, i, 1)
	}

	return k
}

// predict advances the state one step and returns the predicted
// [cx, cy, aspect, height].
func (k *kalmanState) predict() (cx, cy, aspect, height float64) {
	var xNext mat.VecDense
	xNext.MulVec(k.f, k.x)
	k.x = &xNext

	var pNext mat.Dense
	pNext.Mul(k.f, k.p)
	var ft mat.Dense
	ft.CloneFrom(k.f.T())
	pNext.Mul(&pNext, &ft)
	pNext.Add(&pNext, k.q)
	k.p = &pNext

	return k.x.AtVec(0), k.x.AtVec(1), k.x.AtVec(2), k.x.AtVec(3)
}

// update corrects the predicted state with a new measurement.
func (k *kalmanState) update(cx, cy, aspect, height float64) {
	z := mat.NewVecDense(4, []float64{cx, cy, aspect, height})

	var y mat.VecDense
	var hx mat.VecDense
	hx.MulVec(k.h, k.x)
	y.SubVec(z, &hx)

	var ht mat.Dense
	ht.CloneFrom(k.h.T())

	var s mat.Dense
	s.Mul(k.h, k.p)
	s.Mul(&s, &ht)
	s.Add(&s, k.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return // singular innovation covariance, skip correction this step
	}

	var kGain mat.Dense
	kGain.Mul(k.p, &ht)
	kGain.Mul(&kGain, &sInv)

	var correction mat.VecDense
	correction.MulVec(&kGain, &y)

	var xNew mat.VecDense
	xNew.AddVec(k.x, &correction)
	k.x = &xNew

	ident := mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		ident.Set(i, i, 1)
	}
	var kh mat.Dense
	kh.Mul(&kGain, k.h)
	var imKh mat.Dense
	imKh.Sub(ident, &kh)
	var pNew mat.Dense
	pNew.Mul(&imKh, k.p)
	k.p = &pNew
}

// box returns the filter's current state as a bounding box in
// (x, y, w, h) top-left form.
func (k *kalmanState) box() (x, y, w, h float64) {
	cx, cy, aspect, height := k.x.AtVec(0), k.x.AtVec(1), k.x.AtVec(2), k.x.AtVec(3)
	w = aspect * height
	h = height
	return cx - w/2, cy - h/2, w, h
}
