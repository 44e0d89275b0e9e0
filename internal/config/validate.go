package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Validate reports every inconsistency of the description as one joined error;
// each part wraps ErrInvalid.
func (s *Simulation) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(s.NSimu > 0, "NSimu must be positive, got %d", s.NSimu)
	check(s.NPresimu >= 0 && s.NPresimu < s.NSimu, "NPresimu must be in [0, NSimu), got %d", s.NPresimu)
	check(s.Workers >= 1, "Workers must be at least 1, got %d", s.Workers)
	check(slices.Contains([]string{"host", "counter"}, s.RNG), "unknown RNG backend %q", s.RNG)
	check(s.Type == ERD || s.Type == RBS, "unknown simulation type %q", s.Type)
	check(s.RecoilWidth == Wide || s.RecoilWidth == Narrow, "unknown recoil width mode %q", s.RecoilWidth)
	check(s.WideAngle > 0 && s.WideAngle < math.Pi/2, "WideAngle must be in (0, 90) deg")
	check(s.MinAngle > 0 && s.MinAngle < math.Pi, "MinAngle must be in (0, 180) deg")
	check(s.PresimPercentile > 0 && s.PresimPercentile <= 1, "PresimPercentile must be in (0, 1], got %g", s.PresimPercentile)
	check(s.PresimBinSize >= 1, "PresimBinSize must be at least 1, got %d", s.PresimBinSize)
	check(s.Stopping == Analytic || s.Stopping == TableInput, "unknown stopping source %q", s.Stopping)

	check(s.Beam.Z > 0 && s.Beam.Mass() > 0, "beam ion needs Z and mass")
	check(s.EMin > 0, "EMin must be positive")
	check(s.Beam.Energy > s.EMin, "beam energy must exceed EMin")
	check(s.Beam.EnergySpread >= 0 && s.Beam.Divergence >= 0, "beam spread and divergence must not be negative")
	check(s.Beam.Angle >= 0 && s.Beam.Angle < math.Pi/2, "beam angle must be in [0, 90) deg")
	check(s.Recoil.Z > 0 && s.Recoil.Mass() > 0, "recoil species needs Z and mass")
	if s.Type == ERD {
		check(s.Detector.Angle > 0 && s.Detector.Angle < math.Pi/2, "ERD detector angle must be in (0, 90) deg")
	} else {
		check(s.Detector.Angle > 0 && s.Detector.Angle < math.Pi, "RBS detector angle must be in (0, 180) deg")
		check(s.Recoil.Z <= 0 || s.inSample(s.Recoil.Z), "RBS target atom Z=%d is in no sample layer", s.Recoil.Z)
	}
	check(math.Cos(s.Beam.Angle+s.Detector.Angle) < 0, "detector does not look at the front surface")
	check(slices.Contains([]string{TOF, GAS, FOIL}, s.Detector.Type), "unknown detector type %q", s.Detector.Type)

	check(len(s.Layers) > 0, "empty layer stack")
	for i, l := range s.Layers {
		check(l.Thickness > 0, "layer %d: zero thickness", i)
		check(l.Density > 0, "layer %d: density must be positive", i)
		errs = append(errs, checkElements(fmt.Sprintf("layer %d", i), l.Elements)...)
		if s.Stopping == TableInput {
			check(len(l.Stopping[s.Beam.Z]) > 0, "layer %d: no stopping table for Z=%d", i, s.Beam.Z)
			if s.Type == ERD {
				check(len(l.Stopping[s.Recoil.Z]) > 0, "layer %d: no stopping table for Z=%d", i, s.Recoil.Z)
			}
		}
	}
	for i, b := range s.Distribution {
		check(b.Concentration >= 0, "distribution point %d: negative concentration", i)
		check(i == 0 || b.Depth >= s.Distribution[i-1].Depth, "distribution depths must not decrease")
	}

	for i, f := range s.Detector.Foils {
		switch f.Kind {
		case Gap:
			check(f.Length > 0, "detector layer %d: gap length must be positive", i)
		case FoilLayer:
			check(f.Length >= 0, "detector layer %d: negative thickness", i)
			check(f.Density > 0, "detector layer %d: density must be positive", i)
			errs = append(errs, checkElements(fmt.Sprintf("detector layer %d", i), f.Elements)...)
		default:
			check(false, "detector layer %d: unknown kind %q", i, f.Kind)
			continue
		}
		switch f.Shape {
		case Circle, Rectangle:
			check(f.Size[0] > 0 && (f.Shape == Circle || f.Size[1] > 0), "detector layer %d: aperture size must be positive", i)
		case "":
		default:
			check(false, "detector layer %d: unknown shape %q", i, f.Shape)
		}
	}
	return errors.Join(errs...)
}

func checkElements(where string, elements []Element) (errs []error) {
	if len(elements) == 0 {
		return []error{fmt.Errorf("%w: %s: no elements", ErrInvalid, where)}
	}
	var total float64
	for _, e := range elements {
		if e.Z <= 0 || e.M <= 0 || e.Fraction < 0 {
			errs = append(errs, fmt.Errorf("%w: %s: element Z=%d needs positive Z, mass and a non-negative fraction", ErrInvalid, where, e.Z))
		}
		total += e.Fraction
	}
	if !(total > 0) {
		errs = append(errs, fmt.Errorf("%w: %s: fractions do not sum to a positive number", ErrInvalid, where))
	}
	return
}

func (s *Simulation) inSample(z int) bool {
	for _, l := range s.Layers {
		for _, e := range l.Elements {
			if e.Z == z && e.Fraction > 0 {
				return true
			}
		}
	}
	return false
}
