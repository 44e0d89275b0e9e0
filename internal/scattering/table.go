package scattering

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wildstyl3r/erdmc/internal/utils"
)

const (
	NEps   = 64
	NY     = 64
	EpsMin = 1e-2
	EpsMax = 1e5
	YMin   = 1e-5
	YMax   = 1e2

	InvertTol   = 1e-7 // in ln(y)
	InvertSteps = 100
)

// Table holds the deflection angle over (ln eps, ln y) and the cross section
// for deflections above ThetaMin for one Pair. It is read-only once built.
type Table struct {
	Pair     Pair
	A        float64 // [m]
	E2Eps    float64 // [1/J]
	ThetaMin float64 // [rad]

	logEpsMin, logEpsStep float64
	logYMin, logYStep     float64

	angle []float64 // NEps x NY, row per eps node
	yMax  []float64 // reduced impact parameter reaching ThetaMin, per eps node
	sigma []float64 // [m^2], per eps node

	NotConverged int // solver cells that hit an iteration limit
	Unreachable  int // eps nodes where ThetaMin is not reached inside the y grid
}

func Build(solver *Solver, pair Pair, thetaMin float64, log logrus.FieldLogger) (*Table, error) {
	if pair.Z1 <= 0 || pair.Z2 <= 0 || pair.M1 <= 0 || pair.M2 <= 0 {
		return nil, fmt.Errorf("scattering: invalid pair %+v", pair)
	}
	if !(thetaMin > 0 && thetaMin < math.Pi) {
		return nil, fmt.Errorf("scattering: minimum angle %g outside (0, pi)", thetaMin)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	t := &Table{
		Pair:       pair,
		A:          pair.ScreeningLength(),
		E2Eps:      pair.EnergyToEps(),
		ThetaMin:   thetaMin,
		logEpsMin:  math.Log(EpsMin),
		logEpsStep: (math.Log(EpsMax) - math.Log(EpsMin)) / float64(NEps-1),
		logYMin:    math.Log(YMin),
		logYStep:   (math.Log(YMax) - math.Log(YMin)) / float64(NY-1),
		angle:      make([]float64, NEps*NY),
		yMax:       make([]float64, NEps),
		sigma:      make([]float64, NEps),
	}

	for i := 0; i < NEps; i++ {
		eps := math.Exp(t.logEpsMin + float64(i)*t.logEpsStep)
		for j := 0; j < NY; j++ {
			y := math.Exp(t.logYMin + float64(j)*t.logYStep)
			theta, err := solver.Angle(eps, y)
			if errors.Is(err, ErrNotConverged) {
				t.NotConverged++
			}
			t.angle[i*NY+j] = theta
		}
	}

	for i := 0; i < NEps; i++ {
		logY, ok := t.invert(i)
		if !ok {
			log.WithFields(logrus.Fields{"eps_node": i, "y": math.Exp(logY)}).Warn("cross section inversion did not converge")
		}
		t.yMax[i] = math.Exp(logY)
		r := t.A * t.yMax[i]
		t.sigma[i] = math.Pi * r * r
	}

	if t.NotConverged > 0 {
		log.WithFields(logrus.Fields{"cells": t.NotConverged, "z1": pair.Z1, "z2": pair.Z2}).Warn("scattering table: solver iteration limit reached, best estimates used")
	}
	if t.Unreachable > 0 {
		log.WithFields(logrus.Fields{"nodes": t.Unreachable, "theta_min": thetaMin}).Warn("scattering table: minimum angle beyond impact parameter grid")
	}
	return t, nil
}

// invert finds ln(y) where the angle at eps node i drops to ThetaMin.
func (t *Table) invert(i int) (float64, bool) {
	lo, hi := t.logYMin, t.logYMin+float64(NY-1)*t.logYStep
	if t.rowAngle(i, hi) >= t.ThetaMin {
		t.Unreachable++
		return hi, true
	}
	if t.rowAngle(i, lo) < t.ThetaMin {
		return lo, true
	}
	_, logY, ok := utils.BinarySearch(func(logY float64) bool {
		return t.rowAngle(i, logY) < t.ThetaMin
	}, lo, hi, InvertTol, InvertSteps)
	return logY, ok
}

func gridPos(v, lo, step float64, n int) (int, float64) {
	f := (v - lo) / step
	if !(f > 0) {
		return 0, 0
	}
	if f >= float64(n-1) {
		return n - 2, 1
	}
	i := int(f)
	return i, f - float64(i)
}

func (t *Table) rowAngle(i int, logY float64) float64 {
	j, fj := gridPos(logY, t.logYMin, t.logYStep, NY)
	row := t.angle[i*NY : (i+1)*NY]
	return math.FMA(fj, row[j+1]-row[j], row[j])
}

// Eps converts a lab energy [J] into the reduced energy.
func (t *Table) Eps(e float64) float64 {
	return e * t.E2Eps
}

// Angle interpolates the tabulated deflection angle bilinearly in (ln eps, ln y).
func (t *Table) Angle(eps, y float64) float64 {
	i, fi := gridPos(math.Log(eps), t.logEpsMin, t.logEpsStep, NEps)
	j, fj := gridPos(math.Log(y), t.logYMin, t.logYStep, NY)
	a00, a01 := t.angle[i*NY+j], t.angle[i*NY+j+1]
	a10, a11 := t.angle[(i+1)*NY+j], t.angle[(i+1)*NY+j+1]
	a0 := math.FMA(fj, a01-a00, a00)
	a1 := math.FMA(fj, a11-a10, a10)
	return math.FMA(fi, a1-a0, a0)
}

func (t *Table) node(e float64) (int, float64) {
	return gridPos(math.Log(t.Eps(e)), t.logEpsMin, t.logEpsStep, NEps)
}

// CrossSection is the cross section for deflections above ThetaMin at lab energy e [J].
func (t *Table) CrossSection(e float64) float64 { // [m^2]
	i, f := t.node(e)
	return math.FMA(f, t.sigma[i+1]-t.sigma[i], t.sigma[i])
}

// MaxImpact is the reduced impact parameter giving ThetaMin at lab energy e [J].
func (t *Table) MaxImpact(e float64) float64 {
	i, f := t.node(e)
	return math.FMA(f, t.yMax[i+1]-t.yMax[i], t.yMax[i])
}

// Sample returns the centre-of-mass angle of a collision at energy e [J],
// with u uniform in [0, 1) selecting the impact parameter y = ymax sqrt(u).
func (t *Table) Sample(e, u float64) float64 {
	return t.Angle(t.Eps(e), t.MaxImpact(e)*math.Sqrt(u))
}

// BuildAll builds one table per pair, fanned out over the available CPUs.
func BuildAll(ctx context.Context, solver *Solver, pairs []Pair, thetaMin float64, log logrus.FieldLogger) ([]*Table, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	tables := make([]*Table, len(pairs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := Build(solver, pairs[i], thetaMin, log.WithField("pair", i))
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}
