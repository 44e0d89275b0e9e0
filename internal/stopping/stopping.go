package stopping

import (
	"fmt"
	"math"
	"sort"

	"github.com/wildstyl3r/erdmc/internal/constants"
	"github.com/wildstyl3r/erdmc/internal/utils"
)

type Projectile struct {
	Z float64
	M float64 // [kg]
}

type Constituent struct {
	Z float64
	M float64 // [kg]
	N float64 // atomic density [m^-3]
}

// Source gives the stopping S = -dE/dx and the straggling variance per unit
// path Omega2 of projectile p moving at speed v through a layer.
type Source interface {
	Stopping(p Projectile, layer []Constituent, v float64) (s, omega2 float64, err error) // [J/m], [J^2/m]
}

// Analytic combines the Lindhard-Scharff low-velocity and Bethe high-velocity
// electronic stopping as 1/S = 1/S_low + 1/S_high (Biersack-Haggmark), adds up
// constituents with Bragg's rule and uses Bohr straggling.
type Analytic struct{}

func (Analytic) Stopping(p Projectile, layer []Constituent, v float64) (s, omega2 float64, err error) {
	if v < 0 || math.IsNaN(v) {
		return 0, 0, fmt.Errorf("stopping: invalid velocity %g", v)
	}
	for _, c := range layer {
		if c.N == 0 {
			continue
		}
		s = math.FMA(c.N, atomicStopping(p.Z, c.Z, v), s)
		omega2 = math.FMA(c.N, bohrStraggling(p.Z, c.Z), omega2)
	}
	return
}

// per atom [J m^2]
func atomicStopping(z1, z2, v float64) float64 {
	low := 8. * math.Pi * constants.CoulombConstant * constants.BohrRadius *
		math.Pow(z1, 7./6.) * z2 / math.Pow(math.Pow(z1, 2./3.)+math.Pow(z2, 2./3.), 1.5) *
		v / constants.BohrVelocity
	v2 := v * v
	// ln(1+x) keeps the high-velocity term positive below the Bethe validity range
	ln := math.Log1p(2. * constants.ElectronMass * v2 / meanExcitation(z2))
	if ln <= 0 {
		return low
	}
	high := 4. * math.Pi * constants.CoulombConstant * constants.CoulombConstant * z1 * z1 * z2 / (constants.ElectronMass * v2) * ln
	return 1. / (1./low + 1./high)
}

// Bloch's rule.
func meanExcitation(z float64) float64 { // [J]
	return 10. * z * constants.ElectronVolt
}

// per atom [J^2 m^2]
func bohrStraggling(z1, z2 float64) float64 {
	return 4. * math.Pi * z1 * z1 * z2 * constants.CoulombConstant * constants.CoulombConstant
}

type Point struct {
	V      float64 // [m/s]
	S      float64 // [J/m]
	Omega2 float64 // [J^2/m]
}

// Constant is a precomputed stopping table per projectile Z for one layer.
// Values between points are interpolated linearly in velocity and clamped outside.
type Constant struct {
	ByZ map[int][]Point
}

func NewConstant(byZ map[int][]Point) (*Constant, error) {
	c := &Constant{ByZ: make(map[int][]Point, len(byZ))}
	for z, points := range byZ {
		if len(points) == 0 {
			return nil, fmt.Errorf("stopping: empty table for Z=%d", z)
		}
		sorted := append([]Point(nil), points...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].V < sorted[j].V })
		c.ByZ[z] = sorted
	}
	return c, nil
}

func (c *Constant) Stopping(p Projectile, _ []Constituent, v float64) (float64, float64, error) {
	points, ok := c.ByZ[int(math.Round(p.Z))]
	if !ok {
		return 0, 0, fmt.Errorf("stopping: no table for Z=%g", p.Z)
	}
	i := sort.Search(len(points), func(i int) bool { return points[i].V >= v })
	switch {
	case i == 0:
		return points[0].S, points[0].Omega2, nil
	case i == len(points):
		last := points[len(points)-1]
		return last.S, last.Omega2, nil
	}
	a, b := points[i-1], points[i]
	return utils.Interpolate(v, a.V, b.V, a.S, b.S), utils.Interpolate(v, a.V, b.V, a.Omega2, b.Omega2), nil
}
