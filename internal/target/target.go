package target

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/wildstyl3r/erdmc/internal/config"
	"github.com/wildstyl3r/erdmc/internal/geometry"
	"github.com/wildstyl3r/erdmc/internal/scattering"
	"github.com/wildstyl3r/erdmc/internal/stopping"
)

const (
	Primary = iota
	Secondary
	IonTypes
)

type LayerType int

const (
	Sample LayerType = iota
	Gap
	Foil
)

type Atom struct {
	stopping.Constituent
	Scatter [IonTypes]*scattering.Table
}

type Layer struct {
	Name       string
	Type       LayerType
	DLow       float64 // [m]
	DHigh      float64 // [m]
	N          float64 // total atomic density [m^-3]
	RecoilFrac float64 // atomic fraction of recoil atoms
	Atoms      []Atom
	Stop       [IonTypes]*stopping.Table

	// detector layers
	Shape  string
	Size   [2]float64 // [m]
	Timing bool
}

func (l *Layer) Thickness() float64 {
	return l.DHigh - l.DLow
}

// Fit is the recoil cone half-angle a*depth + b of a sample layer.
type Fit struct {
	A float64 // [rad/m]
	B float64 // [rad]
}

type Ion struct {
	Z        float64
	Isotopes []config.Isotope
	M        float64 // mean mass [kg]
}

type Target struct {
	Layers  []Layer
	NTarget int // index of the first detector layer

	Ions         [IonTypes]Ion
	Distribution Distribution
	Fits         []Fit

	BeamFrame     geometry.Frame
	DetectorFrame geometry.Frame
}

func species(s config.Species) Ion {
	return Ion{Z: float64(s.Z), Isotopes: s.Isotopes, M: s.Mass()}
}

func atoms(elements []config.Element, density float64) (n float64, out []Atom) {
	var total, mass float64
	for _, e := range elements {
		total += e.Fraction
		mass += e.Fraction * e.M
	}
	if total <= 0 || mass <= 0 {
		return 0, nil
	}
	n = density / (mass / total)
	for _, e := range elements {
		out = append(out, Atom{Constituent: stopping.Constituent{Z: float64(e.Z), M: e.M, N: n * e.Fraction / total}})
	}
	return
}

func New(ctx context.Context, sim *config.Simulation, solver *scattering.Solver, log logrus.FieldLogger) (*Target, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	t := &Target{
		BeamFrame:     geometry.NewFrame(sim.Beam.Angle, 0),
		DetectorFrame: geometry.NewFrame(sim.Beam.Angle+sim.Detector.Angle, 0),
	}
	t.Ions[Primary] = species(sim.Beam.Species)
	if sim.Type == config.RBS {
		t.Ions[Secondary] = t.Ions[Primary]
	} else {
		t.Ions[Secondary] = species(sim.Recoil)
	}

	var depth float64
	for _, cl := range sim.Layers {
		l := Layer{Name: cl.Name, Type: Sample, DLow: depth, DHigh: depth + cl.Thickness}
		l.N, l.Atoms = atoms(cl.Elements, cl.Density)
		for _, a := range l.Atoms {
			if int(a.Z) == sim.Recoil.Z && l.N > 0 {
				l.RecoilFrac += a.N / l.N
			}
		}
		depth = l.DHigh
		t.Layers = append(t.Layers, l)
	}
	t.NTarget = len(t.Layers)

	depth = 0
	for i, f := range sim.Detector.Foils {
		l := Layer{Name: fmt.Sprintf("detector %d", i), DLow: depth, DHigh: depth + f.Length, Shape: f.Shape, Size: f.Size, Timing: f.Timing}
		if f.Kind == config.Gap {
			l.Type = Gap
		} else {
			l.Type = Foil
			l.N, l.Atoms = atoms(f.Elements, f.Density)
		}
		depth = l.DHigh
		t.Layers = append(t.Layers, l)
	}

	if len(sim.Distribution) > 0 {
		for _, b := range sim.Distribution {
			t.Distribution.Points = append(t.Distribution.Points, Point{Depth: b.Depth, Concentration: b.Concentration})
		}
	} else {
		for _, l := range t.Layers[:t.NTarget] {
			t.Distribution.Points = append(t.Distribution.Points,
				Point{Depth: l.DLow, Concentration: l.RecoilFrac},
				Point{Depth: l.DHigh, Concentration: l.RecoilFrac})
		}
	}

	t.Fits = make([]Fit, t.NTarget)
	for i := range t.Fits {
		t.Fits[i] = Fit{A: 0, B: sim.WideAngle}
	}

	if err := t.buildStopping(sim); err != nil {
		return nil, err
	}
	if err := t.buildScattering(ctx, solver, sim.MinAngle, log); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Target) buildStopping(sim *config.Simulation) error {
	eMax := sim.Beam.Energy + 5*sim.Beam.EnergySpread
	for ionType := range IonTypes {
		ion := t.Ions[ionType]
		p := stopping.Projectile{Z: ion.Z, M: ion.M}
		vMin := stopping.Velocity(0.5*sim.EMin, ion.M)
		vMax := stopping.Velocity(2*eMax, ion.M)
		for i := range t.Layers {
			l := &t.Layers[i]
			if l.N == 0 {
				continue
			}
			composition := make([]stopping.Constituent, len(l.Atoms))
			for j := range l.Atoms {
				composition[j] = l.Atoms[j].Constituent
			}
			var src stopping.Source = stopping.Analytic{}
			if sim.Stopping == config.TableInput && l.Type == Sample {
				byZ := map[int][]stopping.Point{}
				for z, points := range sim.Layers[i].Stopping {
					for _, pt := range points {
						byZ[z] = append(byZ[z], stopping.Point{V: stopping.Velocity(pt.E, ion.M), S: pt.S, Omega2: pt.Omega2})
					}
				}
				c, err := stopping.NewConstant(byZ)
				if err != nil {
					return fmt.Errorf("layer %d: %w", i, err)
				}
				src = c
			}
			table, err := stopping.NewTable(src, p, composition, vMin, vMax, stopping.DefaultTableSize)
			if err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
			l.Stop[ionType] = table
		}
	}
	return nil
}

type pairKey struct {
	ionType int
	z, m    float64
}

func (t *Target) buildScattering(ctx context.Context, solver *scattering.Solver, minAngle float64, log logrus.FieldLogger) error {
	index := map[pairKey]int{}
	var keys []pairKey
	for _, l := range t.Layers {
		for _, a := range l.Atoms {
			for ionType := range IonTypes {
				k := pairKey{ionType: ionType, z: a.Z, m: a.M}
				if _, ok := index[k]; !ok {
					index[k] = -1
					keys = append(keys, k)
				}
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.ionType != b.ionType {
			return a.ionType < b.ionType
		}
		if a.z != b.z {
			return a.z < b.z
		}
		return a.m < b.m
	})
	pairs := make([]scattering.Pair, len(keys))
	for i, k := range keys {
		index[k] = i
		ion := t.Ions[k.ionType]
		pairs[i] = scattering.Pair{Z1: ion.Z, M1: ion.M, Z2: k.z, M2: k.m}
	}
	tables, err := scattering.BuildAll(ctx, solver, pairs, minAngle, log)
	if err != nil {
		return err
	}
	for i := range t.Layers {
		for j := range t.Layers[i].Atoms {
			a := &t.Layers[i].Atoms[j]
			for ionType := range IonTypes {
				a.Scatter[ionType] = tables[index[pairKey{ionType: ionType, z: a.Z, m: a.M}]]
			}
		}
	}
	log.WithField("tables", len(tables)).Info("scattering tables built")
	return nil
}

// RecoilHalfAngle is the half-angle of the recoil cone at depth in layer.
func (t *Target) RecoilHalfAngle(layer int, depth float64) float64 {
	f := t.Fits[layer]
	return math.FMA(f.A, depth, f.B)
}

// WithFits returns a shallow copy of t using fits.
func (t *Target) WithFits(fits []Fit) *Target {
	c := *t
	c.Fits = append([]Fit(nil), fits...)
	return &c
}
