package scattering

import (
	"math"

	"github.com/wildstyl3r/erdmc/internal/constants"
)

// Pair is a projectile (1) / target atom (2) combination.
type Pair struct {
	Z1, Z2 float64
	M1, M2 float64 // [kg]
}

// ScreeningLength is the universal screening length a.
func (p Pair) ScreeningLength() float64 { // [m]
	return 0.8854 * constants.BohrRadius / (math.Pow(p.Z1, 0.23) + math.Pow(p.Z2, 0.23))
}

// EnergyToEps converts a lab energy into the reduced energy.
func (p Pair) EnergyToEps() float64 { // [1/J]
	return p.ScreeningLength() * p.M2 / (p.Z1 * p.Z2 * constants.CoulombConstant * (p.M1 + p.M2))
}

// LabAngle converts a centre-of-mass deflection to the projectile's lab angle.
func LabAngle(thetaCM, m1, m2 float64) float64 {
	sin, cos := math.Sincos(thetaCM)
	return math.Atan2(sin, cos+m1/m2)
}

// EnergyAfter is the projectile energy after an elastic collision with deflection thetaCM.
func EnergyAfter(e, thetaCM, m1, m2 float64) float64 {
	return e * (1. - 2.*m1*m2/((m1+m2)*(m1+m2))*(1.-math.Cos(thetaCM)))
}

// RecoilEnergy is the energy given to a target atom recoiling at lab angle theta.
func RecoilEnergy(e, theta, m1, m2 float64) float64 {
	c := math.Cos(theta)
	return 4. * m1 * m2 / ((m1 + m2) * (m1 + m2)) * e * c * c
}

// RecoilCrossSection is the lab-frame Rutherford cross section dσ/dΩ for recoils at angle theta.
func RecoilCrossSection(e, theta, z1, z2, m1, m2 float64) float64 { // [m^2/sr]
	k := z1 * z2 * constants.CoulombConstant / (2. * e)
	r := 1. + m1/m2
	c := math.Cos(theta)
	return k * k * r * r / (c * c * c)
}

// KinematicFactor is E'/E for a projectile scattered at lab angle theta.
// ok is false when m1 > m2 and theta exceeds the maximum scattering angle.
func KinematicFactor(theta, m1, m2 float64) (k float64, ok bool) {
	sin, cos := math.Sincos(theta)
	r := m1 / m2
	d := 1. - r*r*sin*sin
	if d < 0 {
		return 0, false
	}
	v := (r*cos + math.Sqrt(d)) / (1. + r)
	return v * v, true
}

// MaxScatteringAngle is the largest lab angle a projectile can be scattered to; pi when m1 <= m2.
func MaxScatteringAngle(m1, m2 float64) float64 {
	if m1 <= m2 {
		return math.Pi
	}
	return math.Asin(m2 / m1)
}

// RutherfordCrossSection is the lab-frame dσ/dΩ for a projectile scattered at angle theta.
func RutherfordCrossSection(e, theta, z1, z2, m1, m2 float64) float64 { // [m^2/sr]
	sin, cos := math.Sincos(theta)
	k := z1 * z2 * constants.CoulombConstant / (4. * e)
	r := m1 / m2
	root := math.Sqrt(1. - r*r*sin*sin)
	s2 := sin * sin
	return k * k * 4. / (s2 * s2) * (root + cos) * (root + cos) / root
}
