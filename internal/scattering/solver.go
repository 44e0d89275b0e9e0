package scattering

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/wildstyl3r/erdmc/internal/potential"
)

var ErrNotConverged = errors.New("scattering: iteration did not converge")

const (
	MaxSecantSteps   = 200
	DistanceTol      = 1e-9 // relative
	IntegralTol      = 1e-4 // relative change of the Simpson estimate
	MinIntegralSteps = 4
	MaxIntegralSteps = 14
)

type Solver struct {
	pot *potential.Table
	log logrus.FieldLogger
}

func NewSolver(pot *potential.Table, log logrus.FieldLogger) *Solver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Solver{pot: pot, log: log}
}

func (s *Solver) psi(x, eps, b2 float64) float64 {
	return x*x - x*s.pot.At(x)/eps - b2
}

// MinDistance returns the reduced distance of closest approach for reduced
// energy eps and reduced impact parameter b.
func (s *Solver) MinDistance(eps, b float64) (float64, error) {
	b2 := b * b
	lo, hi := b, 0.5/eps+math.Sqrt(0.25/(eps*eps)+b2)
	x0, x1 := lo, hi
	f0, f1 := s.psi(x0, eps, b2), s.psi(x1, eps, b2)
	if f1 == 0 {
		return x1, nil
	}
	for step := 0; step < MaxSecantSteps; step++ {
		den := f1 - f0
		if den == 0 {
			s.log.WithFields(logrus.Fields{"eps": eps, "b": b, "x": x1}).Error("closest approach: zero secant denominator")
			return x1, nil
		}
		x2 := x1 - f1*(x1-x0)/den
		if !(x2 > lo && x2 < hi) {
			x2 = 0.5 * (lo + hi)
		}
		f2 := s.psi(x2, eps, b2)
		if f2 == 0 {
			return x2, nil
		}
		if f2 < 0 {
			lo = x2
		} else {
			hi = x2
		}
		x0, f0, x1, f1 = x1, f1, x2, f2
		if math.Abs(x1-x0) < DistanceTol*math.Max(1, x1) {
			return x1, nil
		}
	}
	return x1, ErrNotConverged
}

// f(x) = 1 - U(x)/(x eps) - b^2/x^2
func (s *Solver) f(x, eps, b2 float64) float64 {
	return 1. - s.pot.At(x)/(x*eps) - b2/(x*x)
}

// Angle returns the centre-of-mass deflection angle. On ErrNotConverged the
// returned angle is the best estimate reached.
func (s *Solver) Angle(eps, b float64) (float64, error) {
	if b <= 0 {
		return math.Pi, nil
	}
	x0, err := s.MinDistance(eps, b)
	b2 := b * b

	h := 1e-6 * x0
	slope := (s.f(x0+h, eps, b2) - s.f(x0, eps, b2)) / h
	// substitution x = x0/(1-v^2) removes the singularity at x0
	integrand := func(v float64) float64 {
		if v <= 0 {
			if slope <= 0 {
				return 0
			}
			return 2. / math.Sqrt(slope*x0)
		}
		u := 1. - v*v
		if u <= 0 {
			return 2.
		}
		fv := s.f(x0/u, eps, b2)
		if fv <= 0 {
			return 0
		}
		return 2. * v / math.Sqrt(fv)
	}

	n := 1
	width := 1.
	trapezoid := 0.5 * (integrand(0) + integrand(1))
	simpson := trapezoid
	converged := false
	for step := 1; step <= MaxIntegralSteps; step++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += integrand((float64(i) + 0.5) * width)
		}
		next := 0.5 * (trapezoid + width*sum)
		estimate := (4.*next - trapezoid) / 3.
		n *= 2
		width *= 0.5
		trapezoid = next
		if step >= MinIntegralSteps && math.Abs(estimate-simpson) < IntegralTol*math.Abs(simpson) {
			simpson = estimate
			converged = true
			break
		}
		simpson = estimate
	}

	theta := math.Max(0, math.Min(math.Pi, math.Pi-2.*b*simpson/x0))
	if !converged {
		s.log.WithFields(logrus.Fields{"eps": eps, "b": b, "theta": theta}).Debug("deflection integral: iteration limit")
		return theta, ErrNotConverged
	}
	return theta, err
}
