package model

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/erdmc/internal/config"
	"github.com/wildstyl3r/erdmc/internal/geometry"
	"github.com/wildstyl3r/erdmc/internal/rng"
)

// History is the state of a secondary right after the recoil event.
type History struct {
	Pos        r3.Vec  // [m] target frame
	Theta, Fii float64 // target frame
	E          float64 // [J]
	Depth      float64 // [m]
	Layer      int
	Angle      float64 // [rad] to the detector axis
}

// Presim is one presimulation sample; Layer is -1 when the history produced
// no detected recoil.
type Presim struct {
	Depth float64 // [m]
	Angle float64 // [rad]
	Layer int
}

type Ion struct {
	Type       int
	Z          float64
	M          float64 // [kg]
	E          float64 // [J]
	Pos        r3.Vec  // [m], target frame in the sample, detector frame in the detector stack
	Theta, Fii float64
	W          float64
	T          float64 // [s] since the start of the history
	Layer      int
	Status     Status

	Scatterings int
	Hist        History

	needNext    bool
	collision   float64 // [m] path left to the next elastic collision
	atom        int
	recoilDepth float64 // [m]

	hit        bool
	hitX, hitY float64 // [m]
	timing     []float64
}

func (ion *Ion) Dir() r3.Vec {
	return geometry.Direction(ion.Theta, ion.Fii)
}

func (ion *Ion) Depth() float64 {
	return ion.Pos.Z
}

func (ion *Ion) reset() {
	timing := ion.timing[:0]
	*ion = Ion{timing: timing, needNext: true, recoilDepth: math.Inf(1)}
}

func sampleMass(isotopes []config.Isotope, s rng.Stream) float64 {
	if len(isotopes) == 1 {
		return isotopes[0].M
	}
	var total float64
	for _, iso := range isotopes {
		total += iso.Fraction
	}
	choice := s.Float64() * total
	var acc float64
	for _, iso := range isotopes {
		acc += iso.Fraction
		if choice < acc {
			return iso.M
		}
	}
	return isotopes[len(isotopes)-1].M
}
