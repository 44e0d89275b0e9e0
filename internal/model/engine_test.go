package model

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/erdmc/internal/config"
	"github.com/wildstyl3r/erdmc/internal/constants"
	"github.com/wildstyl3r/erdmc/internal/geometry"
	"github.com/wildstyl3r/erdmc/internal/output"
	"github.com/wildstyl3r/erdmc/internal/potential"
	"github.com/wildstyl3r/erdmc/internal/rng"
	"github.com/wildstyl3r/erdmc/internal/scattering"
	"github.com/wildstyl3r/erdmc/internal/target"
)

const (
	deg = math.Pi / 180
	nm  = constants.NanoMeter
	u   = constants.AtomicMassUnit
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func erdSimulation() *config.Simulation {
	return &config.Simulation{
		Seed: 1, Workers: 1, RNG: rng.Host, Type: config.ERD,
		NSimu: 200, NPresimu: 20,
		EMin:     0.1 * constants.MeV,
		MinAngle: 2 * deg, RecoilWidth: config.Wide, WideAngle: 2 * deg,
		PresimPercentile: 0.99, PresimBinSize: 5,
		Stopping: config.Analytic,
		Beam: config.Beam{
			Species: config.Species{Z: 2, Isotopes: []config.Isotope{{M: 4.0026 * u, Fraction: 1}}},
			Energy:  2 * constants.MeV,
			Angle:   75 * deg,
		},
		Recoil: config.Species{Z: 1, Isotopes: []config.Isotope{{M: 1.0078 * u, Fraction: 1}}},
		Layers: []config.Layer{
			{Name: "SiH", Thickness: 100 * nm, Density: 2330, Elements: []config.Element{{Z: 14, M: 28.0855 * u, Fraction: 0.9}, {Z: 1, M: 1.0078 * u, Fraction: 0.1}}},
			{Name: "Si", Thickness: 2000 * nm, Density: 2330, Elements: []config.Element{{Z: 14, M: 28.0855 * u, Fraction: 1}}},
		},
		Detector: config.Detector{
			Type:  config.TOF,
			Angle: 30 * deg,
			Foils: []config.Foil{
				{Kind: config.Gap, Length: 0.2},
				{Kind: config.FoilLayer, Length: 5 * nm, Density: 2200, Shape: config.Circle, Size: [2]float64{0.04, 0}, Elements: []config.Element{{Z: 6, M: 12.011 * u, Fraction: 1}}, Timing: true},
				{Kind: config.Gap, Length: 0.3},
				{Kind: config.FoilLayer, Length: 5 * nm, Density: 2200, Elements: []config.Element{{Z: 6, M: 12.011 * u, Fraction: 1}}, Timing: true},
			},
		},
	}
}

var (
	fixtureOnce   sync.Once
	fixtureTarget *target.Target
	fixtureErr    error
)

// erdTarget is built once; tests must not modify it.
func erdTarget(t *testing.T) (*config.Simulation, *target.Target) {
	t.Helper()
	sim := erdSimulation()
	fixtureOnce.Do(func() {
		solver := scattering.NewSolver(potential.BuildScreeningTable(), quiet())
		fixtureTarget, fixtureErr = target.New(context.Background(), sim, solver, quiet())
	})
	if fixtureErr != nil {
		t.Fatal(fixtureErr)
	}
	return sim, fixtureTarget
}

func newEngine(t *testing.T, histories int, presim bool) *Engine {
	sim, tg := erdTarget(t)
	return NewEngine(sim, tg, rng.NewHost(1, 0), histories, presim, quiet())
}

func TestStatusString(t *testing.T) {
	if FinRecTrans.String() != "FIN_RECTRANS" || NotFinished.String() != "NOT_FINISHED" {
		t.Error("status names out of order")
	}
	if Status(42).String() != "Status(42)" {
		t.Error(Status(42).String())
	}
}

func TestCreateIon(t *testing.T) {
	g := NewWithT(t)
	e := newEngine(t, 1, false)
	var ion Ion
	e.CreateIon(&ion)
	g.Expect(ion.Status).To(Equal(NotFinished))
	g.Expect(ion.Type).To(Equal(target.Primary))
	g.Expect(ion.E).To(Equal(2 * constants.MeV))
	g.Expect(ion.Theta).To(BeNumerically("~", 75*deg, 1e-12))
	g.Expect(ion.Pos).To(Equal(r3.Vec{}))
	g.Expect(ion.recoilDepth).To(BeNumerically(">=", 0))
	g.Expect(ion.needNext).To(BeTrue())
}

type constStream struct{ v float64 }

func (c constStream) Name() string                            { return "const" }
func (c constStream) Seed(uint64)                             {}
func (c constStream) Float64() float64                        { return c.v }
func (c constStream) Uniform(lo, hi float64) (float64, error) { return lo + c.v*(hi-lo), nil }
func (c constStream) Gaussian() float64                       { return 0 }

func TestNextScatteringAtomIndex(t *testing.T) {
	g := NewWithT(t)
	sim, tg := erdTarget(t)

	e := NewEngine(sim, tg, constStream{v: 0.5}, 1, false, quiet())
	var ion Ion
	e.CreateIon(&ion)
	g.Expect(e.NextScattering(&ion)).To(Succeed())
	g.Expect(ion.collision).To(BeNumerically(">", 0))
	g.Expect(ion.atom).To(BeNumerically("<", len(tg.Layers[0].Atoms)))

	// a stream breaking the [0, 1) contract selects past the last atom
	bad := NewEngine(sim, tg, constStream{v: 1}, 1, false, quiet())
	bad.CreateIon(&ion)
	err := bad.NextScattering(&ion)
	g.Expect(errors.Is(err, ErrAtomIndex)).To(BeTrue())

	// vacuum gap: no collision
	ion.Layer = tg.NTarget
	g.Expect(e.NextScattering(&ion)).To(Succeed())
	g.Expect(math.IsInf(ion.collision, 1)).To(BeTrue())
}

func TestMCScatteringKinematics(t *testing.T) {
	g := NewWithT(t)
	e := newEngine(t, 1, false)
	for i := 0; i < 50; i++ {
		var ion Ion
		e.CreateIon(&ion)
		g.Expect(e.NextScattering(&ion)).To(Succeed())
		before := ion.Dir()
		e0 := ion.E
		e.MCScattering(&ion)

		atom := e.target.Layers[0].Atoms[ion.atom]
		g.Expect(ion.Scatterings).To(Equal(1))
		g.Expect(ion.E).To(BeNumerically("<=", e0))
		// recover the centre-of-mass angle from the energy transfer
		ratio := ion.E / e0
		k := 2 * ion.M * atom.M / ((ion.M + atom.M) * (ion.M + atom.M))
		thetaCM := math.Acos(math.Max(-1, math.Min(1, 1-(1-ratio)/k)))
		want := scattering.LabAngle(thetaCM, ion.M, atom.M)
		g.Expect(geometry.AngleBetween(before, ion.Dir())).To(BeNumerically("~", want, 1e-6))
	}
}

func TestERDScattering(t *testing.T) {
	g := NewWithT(t)
	e := newEngine(t, 1, false)
	sim := e.sim
	axis := e.target.DetectorFrame.Axis()
	for i := 0; i < 100; i++ {
		var p, s Ion
		e.CreateIon(&p)
		p.Pos.Z = 50 * nm
		e.ERDScattering(&p, &s)
		if p.Status == FinNoRecoil {
			continue
		}
		g.Expect(p.Status).To(Equal(FinRecoil))
		g.Expect(s.Status).To(Equal(NotFinished))
		g.Expect(s.Type).To(Equal(target.Secondary))
		g.Expect(s.Z).To(Equal(1.))
		g.Expect(geometry.AngleBetween(s.Dir(), axis)).To(BeNumerically("<=", sim.WideAngle+1e-9))
		theta := geometry.AngleBetween(p.Dir(), s.Dir())
		g.Expect(s.E).To(BeNumerically("~", scattering.RecoilEnergy(p.E, theta, p.M, s.M), 1e-20))
		g.Expect(s.W).To(BeNumerically(">", 0))
		g.Expect(s.Hist.Depth).To(Equal(50 * nm))
		g.Expect(s.Hist.E).To(Equal(s.E))
		g.Expect(s.Hist.Angle).To(BeNumerically("~", geometry.AngleBetween(s.Dir(), axis), 1e-6))
	}

	// below the recoil material
	var p, s Ion
	e.CreateIon(&p)
	p.Pos.Z = 500 * nm
	p.Layer = 1
	e.ERDScattering(&p, &s)
	g.Expect(p.Status).To(Equal(FinNoRecoil))
}

func TestRBSForbiddenAngle(t *testing.T) {
	g := NewWithT(t)
	sim, tg := erdTarget(t)
	rbs := *sim
	rbs.Type = config.RBS
	// heavy ion on hydrogen cannot scatter to the detector direction
	rbs.Recoil = config.Species{Z: 1, Isotopes: []config.Isotope{{M: 1.0078 * u, Fraction: 1}}}
	e := NewEngine(&rbs, tg, rng.NewHost(3, 0), 1, false, quiet())
	var p, s Ion
	e.CreateIon(&p)
	p.Pos.Z = 50 * nm
	p.Theta = 0
	e.ERDScattering(&p, &s)
	g.Expect(p.Status).To(Equal(FinNoRecoil))
}

func TestCrossBoundary(t *testing.T) {
	e := newEngine(t, 1, false)
	n := e.target.NTarget
	last := len(e.target.Layers) - 1
	awayFromDetector := func(ion *Ion) { ion.Theta, ion.Fii = math.Pi/2+0.2, math.Pi }
	towardDetector := func(ion *Ion) { ion.Theta, ion.Fii = geometry.Angles(e.target.DetectorFrame.Axis()) }
	tests := []struct {
		name    string
		ionType int
		layer   int
		forward bool
		dir     func(*Ion)
		status  Status
		layerTo int
	}{
		{"primary leaves the back", target.Primary, n - 1, true, nil, FinTrans, n - 1},
		{"primary leaves the front", target.Primary, 0, false, nil, FinBS, 0},
		{"primary goes deeper", target.Primary, 0, true, nil, NotFinished, 1},
		{"secondary leaves the back", target.Secondary, n - 1, true, nil, FinRecTrans, n - 1},
		{"secondary leaves away from the detector", target.Secondary, 0, false, awayFromDetector, FinOutDet, 0},
		{"secondary enters the detector", target.Secondary, 0, false, towardDetector, NotFinished, n},
		{"secondary passes the last foil", target.Secondary, last, true, nil, FinDet, last},
		{"secondary turns back in the detector", target.Secondary, n, false, nil, FinOutDet, n},
	}
	for _, tt := range tests {
		var ion Ion
		ion.reset()
		ion.Type = tt.ionType
		ion.Layer = tt.layer
		if tt.dir != nil {
			tt.dir(&ion)
		}
		e.crossBoundary(&ion, tt.forward)
		if ion.Status != tt.status || ion.Layer != tt.layerTo {
			t.Errorf("%s: got %v in layer %d, want %v in layer %d", tt.name, ion.Status, ion.Layer, tt.status, tt.layerTo)
		}
	}
}

func TestApertureMiss(t *testing.T) {
	e := newEngine(t, 1, false)
	var ion Ion
	ion.reset()
	ion.Type = target.Secondary
	ion.Layer = e.target.NTarget
	ion.Pos = r3.Vec{X: 0.05, Y: 0, Z: 0.2}
	e.crossBoundary(&ion, true)
	if ion.Status != FinMissDet {
		t.Errorf("outside the aperture: %v", ion.Status)
	}

	ion.reset()
	ion.Type = target.Secondary
	ion.Layer = e.target.NTarget
	ion.Pos = r3.Vec{X: 0.001, Y: 0.002, Z: 0.2}
	ion.T = 1e-8
	e.crossBoundary(&ion, true)
	if ion.Status != NotFinished || !ion.hit || len(ion.timing) != 1 {
		t.Errorf("inside the aperture: %v hit=%v timing=%v", ion.Status, ion.hit, ion.timing)
	}
}

func TestStoppedPrimaryRecordedOnce(t *testing.T) {
	g := NewWithT(t)
	e := newEngine(t, 20, false)
	e.maxDepth = math.Inf(1)
	stopped := 0
	for i := 0; i < 20; i++ {
		p := &e.primary
		e.CreateIon(p)
		p.recoilDepth = math.Inf(1)
		// head-on into the substrate so the ion stops inside the sample
		p.Theta, p.Fii = 0, 0
		p.Layer = 1
		p.Pos.Z = 100 * nm
		p.E = 0.3 * constants.MeV
		g.Expect(e.transport(i, p, &e.secondary)).To(Succeed())
		e.FinishIon(p)
		if p.Status == FinStop {
			stopped++
			g.Expect(p.E).To(BeNumerically("<", e.sim.EMin))
		}
	}
	g.Expect(stopped).To(BeNumerically(">", 0))
	g.Expect(stopped + e.Stats[target.Primary][FinBS]).To(Equal(20))
	g.Expect(e.Ranges.Len()).To(Equal(stopped))
	for _, r := range e.Ranges.Rows() {
		g.Expect(r.Transmitted).To(BeFalse())
		g.Expect(r.Value).To(BeNumerically(">", 0))
		g.Expect(r.Value).To(BeNumerically("<", 2100))
	}
}

func TestRunHistories(t *testing.T) {
	g := NewWithT(t)
	const n = 300
	e := newEngine(t, n, false)
	for i := 0; i < n; i++ {
		g.Expect(e.RunHistory(i)).To(Succeed())
	}
	g.Expect(e.Cion).To(Equal(n))
	g.Expect(e.Stats.RowTotal(target.Primary)).To(Equal(n))
	g.Expect(e.Stats.RowTotal(target.Secondary)).To(Equal(e.Stats[target.Primary][FinRecoil]))
	g.Expect(e.Events.Len()).To(Equal(e.Stats[target.Secondary][FinDet]))
	g.Expect(e.Stats[target.Primary][FinRecoil]).To(BeNumerically(">", 0))
	for _, ev := range e.Events.Rows() {
		g.Expect(ev.Kind).To(Equal(output.RecoilKind))
		g.Expect(ev.Z).To(Equal(1))
		g.Expect(ev.E).To(BeNumerically(">", 0))
		g.Expect(ev.E).To(BeNumerically("<", ev.E0+1e-9))
		g.Expect(ev.Depth).To(BeNumerically("<=", 100+1e-6))
		g.Expect(ev.TOF).To(BeNumerically(">", 0))
	}
}

func TestPresimSlots(t *testing.T) {
	g := NewWithT(t)
	const n = 100
	e := newEngine(t, n, true)
	for i := 0; i < n; i++ {
		g.Expect(e.RunHistory(i)).To(Succeed())
	}
	g.Expect(e.Presims).To(HaveLen(n))
	g.Expect(e.Events.Len()).To(BeZero())
	g.Expect(e.Ranges.Len()).To(BeZero())
	valid := 0
	for _, p := range e.Presims {
		if p.Layer >= 0 {
			valid++
			g.Expect(p.Angle).To(BeNumerically("<=", e.sim.WideAngle+1e-9))
		}
	}
	g.Expect(valid).To(Equal(e.Stats[target.Secondary][FinDet]))
}

func TestRecoverOverflow(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err)
		b := output.NewBuffer[output.Range](0)
		b.Append(output.Range{})
		return nil
	}
	if err := run(); !errors.Is(err, output.ErrBufferOverflow) {
		t.Errorf("got %v", err)
	}
}

func TestNarrowRecoilCone(t *testing.T) {
	g := NewWithT(t)
	sim, tg := erdTarget(t)
	narrow := *sim
	narrow.RecoilWidth = config.Narrow
	fits := make([]target.Fit, tg.NTarget)
	for i := range fits {
		fits[i] = target.Fit{A: 0, B: 0.5 * deg}
	}
	wide := NewEngine(sim, tg, rng.NewHost(5, 0), 1, false, quiet())
	e := NewEngine(&narrow, tg.WithFits(fits), rng.NewHost(5, 0), 1, false, quiet())
	axis := tg.DetectorFrame.Axis()

	var p, s, pw, sw Ion
	e.CreateIon(&p)
	wide.CreateIon(&pw)
	p.Pos.Z, pw.Pos.Z = 50*nm, 50*nm
	e.ERDScattering(&p, &s)
	wide.ERDScattering(&pw, &sw)
	g.Expect(p.Status).To(Equal(FinRecoil))
	g.Expect(pw.Status).To(Equal(FinRecoil))
	g.Expect(geometry.AngleBetween(s.Dir(), axis)).To(BeNumerically("<=", 0.5*deg+1e-9))
	// same stream: the weights differ by the solid angle and a cross section change of a few percent
	ratio := coneSolidAngle(0.5*deg) / coneSolidAngle(2*deg)
	g.Expect(s.W / sw.W).To(BeNumerically("~", ratio, 0.15*ratio))
}
