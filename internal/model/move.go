package model

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/erdmc/internal/target"
	"github.com/wildstyl3r/erdmc/internal/utils"
)

type event int

const (
	eventNone event = iota
	eventBoundary
	eventBreakpoint
	eventRecoil
	eventCollision
)

// MoveIon advances the ion to the nearest of: layer boundary, recoil
// distribution breakpoint, recoil event depth and elastic collision point.
// The step is halved until the stopping power changes by less than
// MaxStoppingChange along it; a halved step reaches no event.
func (e *Engine) MoveIon(ion *Ion) event {
	l := &e.target.Layers[ion.Layer]
	inSample := ion.Layer < e.target.NTarget
	dir := ion.Dir()
	z := ion.Pos.Z

	d, ev := math.Inf(1), eventNone
	consider := func(dist float64, kind event) {
		if dist >= 0 && dist < d {
			d, ev = dist, kind
		}
	}
	switch {
	case dir.Z > 0:
		consider((l.DHigh-z)/dir.Z, eventBoundary)
	case dir.Z < 0:
		consider((l.DLow-z)/dir.Z, eventBoundary)
	}
	if inSample && ion.Type == target.Primary && dir.Z != 0 {
		if bp, ok := e.target.Distribution.Next(z, dir.Z > 0); ok {
			consider((bp-z)/dir.Z, eventBreakpoint)
		}
		if dir.Z > 0 && ion.recoilDepth > z && ion.recoilDepth <= l.DHigh {
			consider((ion.recoilDepth-z)/dir.Z, eventRecoil)
		}
	}
	consider(ion.collision, eventCollision)

	if math.IsInf(d, 1) {
		if l.N == 0 {
			// a vacuum gap crossed parallel to its boundaries
			ion.Status = FinOutDet
			return eventNone
		}
		d, ev = math.Max(l.Thickness(), 1e-9), eventNone
	}

	stop := l.Stop[ion.Type]
	var loss, omega2 float64
	if stop != nil {
		s0, _ := stop.At(velocity(ion.E, ion.M))
		s1 := s0
		for k := 0; k < MaxHalvings; k++ {
			e1 := ion.E - s0*d
			if e1 > 0 {
				s1, _ = stop.At(velocity(e1, ion.M))
				if math.Abs(s1-s0) <= MaxStoppingChange*s0 {
					break
				}
			}
			d *= 0.5
			ev = eventNone
		}
		sMean := 0.5 * (s0 + s1)
		_, omega2 = stop.At(velocity(ion.E-sMean*d*0.5, ion.M))
		loss = sMean * d
		if omega2 > 0 {
			loss = math.FMA(e.rng.Gaussian(), math.Sqrt(omega2*d), loss)
		}
	}

	if ion.E-loss < e.sim.EMin && loss > 0 {
		f := utils.Clamp((ion.E-e.sim.EMin)/loss, 0, 1)
		e.advance(ion, dir, d*f, ion.E-0.5*loss*f)
		ion.E -= loss
		return eventNone
	}
	e.advance(ion, dir, d, ion.E-0.5*loss)
	ion.E -= loss

	switch ev {
	case eventBoundary:
		if dir.Z > 0 {
			ion.Pos.Z = l.DHigh
		} else {
			ion.Pos.Z = l.DLow
		}
		e.crossBoundary(ion, dir.Z > 0)
	case eventRecoil:
		ion.Pos.Z = ion.recoilDepth
	case eventCollision:
		ion.collision = 0
	}
	return ev
}

func velocity(energy, mass float64) float64 {
	return math.Sqrt(2. * math.Max(energy, 0) / mass)
}

func (e *Engine) advance(ion *Ion, dir r3.Vec, d, meanE float64) {
	ion.Pos = r3.Add(ion.Pos, r3.Scale(d, dir))
	if v := velocity(meanE, ion.M); v > 0 {
		ion.T += d / v
	}
	ion.collision -= d
}

func (e *Engine) crossBoundary(ion *Ion, forward bool) {
	n := e.target.NTarget
	last := len(e.target.Layers) - 1
	ion.needNext = true
	switch {
	case ion.Layer < n && forward:
		if ion.Layer+1 < n {
			ion.Layer++
		} else if ion.Type == target.Primary {
			ion.Status = FinTrans
		} else {
			ion.Status = FinRecTrans
		}
	case ion.Layer < n && !forward:
		if ion.Layer > 0 {
			ion.Layer--
		} else if ion.Type == target.Primary {
			ion.Status = FinBS
		} else {
			e.enterDetector(ion)
		}
	case forward:
		if ion.Layer == last {
			ion.Status = FinDet
			return
		}
		ion.Layer++
		e.enterLayer(ion)
	default:
		if ion.Layer == n {
			ion.Status = FinOutDet
			return
		}
		ion.Layer--
	}
}

// enterDetector moves a secondary leaving the front surface into the detector frame.
func (e *Engine) enterDetector(ion *Ion) {
	frame := e.target.DetectorFrame
	if r3.Dot(ion.Dir(), frame.Axis()) <= 0 {
		ion.Status = FinOutDet
		return
	}
	if e.target.NTarget == len(e.target.Layers) {
		ion.Status = FinDet
		return
	}
	ion.Pos = frame.ToInner(ion.Pos)
	ion.Theta, ion.Fii = frame.Unrotate(ion.Theta, ion.Fii)
	first := e.target.Layers[e.target.NTarget].DLow
	if ion.Pos.Z < first {
		// project onto the plane of the first detector layer
		dir := ion.Dir()
		ion.Pos = r3.Add(ion.Pos, r3.Scale((first-ion.Pos.Z)/dir.Z, dir))
	}
	ion.Layer = e.target.NTarget
	e.enterLayer(ion)
}

func (e *Engine) enterLayer(ion *Ion) {
	l := &e.target.Layers[ion.Layer]
	if l.Shape != "" {
		if !inAperture(l.Shape, l.Size, ion.Pos.X, ion.Pos.Y) {
			ion.Status = FinMissDet
			return
		}
		if !ion.hit {
			ion.hit, ion.hitX, ion.hitY = true, ion.Pos.X, ion.Pos.Y
		}
	}
	if l.Timing {
		ion.timing = append(ion.timing, ion.T)
	}
}

func inAperture(shape string, size [2]float64, x, y float64) bool {
	switch shape {
	case "circle":
		r := 0.5 * size[0]
		return x*x+y*y <= r*r
	case "rectangle":
		return math.Abs(x) <= 0.5*size[0] && math.Abs(y) <= 0.5*size[1]
	}
	return true
}
