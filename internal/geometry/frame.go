package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

type Frame struct {
	theta, fii float64

	cosTheta, sinTheta float64
	cosFii, sinFii     float64
}

func NewFrame(theta, fii float64) Frame {
	return Frame{
		theta:    theta,
		fii:      fii,
		cosTheta: math.Cos(theta),
		sinTheta: math.Sin(theta),
		cosFii:   math.Cos(fii),
		sinFii:   math.Sin(fii),
	}
}

// Axis is the frame's z axis expressed in the outer frame.
func (f Frame) Axis() r3.Vec {
	return Direction(f.theta, f.fii)
}

// ToOuter maps a vector given in this frame to the outer frame.
func (f Frame) ToOuter(v r3.Vec) r3.Vec {
	x := math.FMA(f.cosTheta, v.X, f.sinTheta*v.Z)
	z := math.FMA(-f.sinTheta, v.X, f.cosTheta*v.Z)
	return r3.Vec{
		X: math.FMA(f.cosFii, x, -f.sinFii*v.Y),
		Y: math.FMA(f.sinFii, x, f.cosFii*v.Y),
		Z: z,
	}
}

// ToInner maps a vector given in the outer frame to this frame.
func (f Frame) ToInner(v r3.Vec) r3.Vec {
	x := math.FMA(f.cosFii, v.X, f.sinFii*v.Y)
	y := math.FMA(-f.sinFii, v.X, f.cosFii*v.Y)
	return r3.Vec{
		X: math.FMA(f.cosTheta, x, -f.sinTheta*v.Z),
		Y: y,
		Z: math.FMA(f.sinTheta, x, f.cosTheta*v.Z),
	}
}

// Rotate turns the direction (theta, fii) given in this frame into outer frame angles.
func (f Frame) Rotate(theta, fii float64) (float64, float64) {
	return Angles(f.ToOuter(Direction(theta, fii)))
}

// Unrotate is the inverse of Rotate.
func (f Frame) Unrotate(theta, fii float64) (float64, float64) {
	return Angles(f.ToInner(Direction(theta, fii)))
}

// Rotate deflects the direction (theta1, fii1) by the angles (theta2, fii2)
// measured in the frame of the first direction.
func Rotate(theta1, fii1, theta2, fii2 float64) (float64, float64) {
	return NewFrame(theta1, fii1).Rotate(theta2, fii2)
}

func Direction(theta, fii float64) r3.Vec {
	sinTheta, cosTheta := math.Sincos(theta)
	sinFii, cosFii := math.Sincos(fii)
	return r3.Vec{X: sinTheta * cosFii, Y: sinTheta * sinFii, Z: cosTheta}
}

// Angles returns the polar and azimuthal angle of v; fii is in [0, 2pi).
func Angles(v r3.Vec) (theta, fii float64) {
	n := r3.Norm(v)
	if n == 0 {
		return 0, 0
	}
	theta = math.Acos(math.Max(-1, math.Min(1, v.Z/n)))
	fii = math.Atan2(v.Y, v.X)
	if fii < 0 {
		fii += 2 * math.Pi
	}
	return
}

// AngleBetween returns the angle between two directions.
func AngleBetween(a, b r3.Vec) float64 {
	c := r3.Dot(r3.Unit(a), r3.Unit(b))
	return math.Acos(math.Max(-1, math.Min(1, c)))
}
