package model

import (
	"math"

	"github.com/wildstyl3r/erdmc/internal/config"
	"github.com/wildstyl3r/erdmc/internal/geometry"
	"github.com/wildstyl3r/erdmc/internal/scattering"
	"github.com/wildstyl3r/erdmc/internal/target"
	"github.com/wildstyl3r/erdmc/internal/utils"
)

const MinHalfAngle = 1e-6 // [rad] narrowest recoil cone

// ERDScattering turns the primary at its recoil depth into the secondary: a
// recoil atom (ERD) or the scattered primary (RBS) sent into a cone around the
// detector direction. The primary ends as FIN_RECOIL, or FIN_NO_RECOIL when no
// recoil is possible.
func (e *Engine) ERDScattering(primary, secondary *Ion) {
	depth := primary.Depth()
	conc := e.target.Distribution.Concentration(depth)
	if conc <= 0 || secondary == nil {
		primary.Status = FinNoRecoil
		return
	}

	half := e.sim.WideAngle
	if !e.presim && e.sim.RecoilWidth == config.Narrow {
		half = utils.Clamp(e.target.RecoilHalfAngle(primary.Layer, depth), MinHalfAngle, e.sim.WideAngle)
	}
	omega := coneSolidAngle(half)

	// uniform direction inside the cone around the detector axis
	cosAlpha := 1 - e.rng.Float64()*(1-math.Cos(half))
	alpha := math.Acos(cosAlpha)
	beta := 2 * math.Pi * e.rng.Float64()
	frame := e.target.DetectorFrame
	dir := frame.ToOuter(geometry.Direction(alpha, beta))
	theta := geometry.AngleBetween(primary.Dir(), dir)

	z1 := primary.Z
	z2 := float64(e.sim.Recoil.Z)
	m1 := primary.M
	m2 := sampleMass(e.sim.Recoil.Isotopes, e.rng)

	var energy, sigma, z, m float64
	if e.sim.Type == config.RBS {
		if theta > scattering.MaxScatteringAngle(m1, m2) {
			primary.Status = FinNoRecoil
			return
		}
		k, ok := scattering.KinematicFactor(theta, m1, m2)
		if !ok {
			primary.Status = FinNoRecoil
			return
		}
		energy = k * primary.E
		sigma = scattering.RutherfordCrossSection(primary.E, theta, z1, z2, m1, m2)
		z, m = z1, m1
	} else {
		if theta >= math.Pi/2 {
			primary.Status = FinNoRecoil
			return
		}
		energy = scattering.RecoilEnergy(primary.E, theta, m1, m2)
		sigma = scattering.RecoilCrossSection(primary.E, theta, z1, z2, m1, m2)
		z, m = z2, m2
	}

	w := conc * sigma / e.sigmaRef * omega / e.wideOmega
	if e.lambda > 0 {
		w *= math.Exp(depth / e.lambda)
	}

	timing := secondary.timing[:0]
	*secondary = Ion{
		Type:     target.Secondary,
		Z:        z,
		M:        m,
		E:        energy,
		Pos:      primary.Pos,
		W:        primary.W * w,
		Layer:    primary.Layer,
		Status:   NotFinished,
		needNext: true,
		timing:   timing,

		recoilDepth: math.Inf(1),
	}
	secondary.Theta, secondary.Fii = geometry.Angles(dir)
	secondary.Hist = History{
		Pos:   primary.Pos,
		Theta: secondary.Theta,
		Fii:   secondary.Fii,
		E:     energy,
		Depth: depth,
		Layer: primary.Layer,
		Angle: alpha,
	}
	primary.Status = FinRecoil
}

// solid angle of a cone with half-angle half
func coneSolidAngle(half float64) float64 {
	return 2 * math.Pi * (1 - math.Cos(half))
}
