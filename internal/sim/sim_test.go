package sim

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/wildstyl3r/erdmc/internal/config"
	"github.com/wildstyl3r/erdmc/internal/constants"
	"github.com/wildstyl3r/erdmc/internal/model"
	"github.com/wildstyl3r/erdmc/internal/output"
	"github.com/wildstyl3r/erdmc/internal/presim"
	"github.com/wildstyl3r/erdmc/internal/rng"
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

var (
	hydrogen = config.Element{Z: 1, M: 1.0078 * u, Fraction: 0.2}
	silicon  = config.Element{Z: 14, M: 28.0855 * u, Fraction: 0.8}
	carbon   = config.Element{Z: 6, M: 12.011 * u, Fraction: 1}
)

// singleLayer is a 2 MeV He ERD setup on one uniform SiH layer.
func singleLayer(elements ...config.Element) *config.Simulation {
	return &config.Simulation{
		Seed: 1, Workers: 1, RNG: rng.Host, Type: config.ERD,
		NSimu: 1000, NPresimu: 100,
		EMin:     0.1 * constants.MeV,
		MinAngle: 2 * deg, RecoilWidth: config.Narrow, WideAngle: 2 * deg,
		PresimPercentile: 0.99, PresimBinSize: 100,
		Stopping: config.Analytic,
		Beam: config.Beam{
			Species: config.Species{Z: 2, Isotopes: []config.Isotope{{M: 4.0026 * u, Fraction: 1}}},
			Energy:  2 * constants.MeV,
			Angle:   75 * deg,
		},
		Recoil: config.Species{Z: 1, Isotopes: []config.Isotope{{M: 1.0078 * u, Fraction: 1}}},
		Layers: []config.Layer{{Name: "SiH", Thickness: 200 * nm, Density: 2330, Elements: elements}},
		Detector: config.Detector{
			Type:  config.TOF,
			Angle: 30 * deg,
			Foils: []config.Foil{
				{Kind: config.Gap, Length: 0.2},
				{Kind: config.FoilLayer, Length: 5 * nm, Density: 2200, Shape: config.Circle, Size: [2]float64{0.03, 0}, Elements: []config.Element{carbon}, Timing: true},
				{Kind: config.Gap, Length: 0.3},
				{Kind: config.FoilLayer, Length: 5 * nm, Density: 2200, Elements: []config.Element{carbon}, Timing: true},
			},
		},
	}
}

func newRunner(t *testing.T, sim *config.Simulation) *Runner {
	t.Helper()
	r, err := New(context.Background(), sim, quiet())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestPartition(t *testing.T) {
	g := NewWithT(t)
	g.Expect(Partition(10, 20, 3)).To(Equal([]Span{{10, 14}, {14, 17}, {17, 20}}))
	g.Expect(Partition(0, 2, 8)).To(Equal([]Span{{0, 1}, {1, 2}}))
	g.Expect(Partition(5, 5, 4)).To(BeEmpty())
	g.Expect(Partition(0, 7, 0)).To(Equal([]Span{{0, 7}}))
}

func TestNewRejectsInvalid(t *testing.T) {
	sim := singleLayer(silicon, hydrogen)
	sim.NPresimu = sim.NSimu
	_, err := New(context.Background(), sim, quiet())
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("got %v", err)
	}

	rbs := singleLayer(silicon, hydrogen)
	rbs.Type = config.RBS
	rbs.Recoil = config.Species{}
	if _, err := New(context.Background(), rbs, quiet()); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("RBS without target atom: got %v", err)
	}
}

func TestEndToEndERD(t *testing.T) {
	g := NewWithT(t)
	sim := singleLayer(silicon, hydrogen)
	sim.RecoilWidth = config.Wide
	r := newRunner(t, sim)
	res, err := r.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(res.Presim.Presims).To(HaveLen(sim.NPresimu))
	g.Expect(res.Presim.Stats.RowTotal(target.Primary)).To(Equal(sim.NPresimu))
	g.Expect(res.Presim.Events).To(BeEmpty())

	// one bin cannot be fitted; the wide cone keeps the default
	g.Expect(res.Fits).To(HaveLen(1))
	g.Expect(res.Fits[0].A).To(Equal(0.))
	g.Expect(res.Fits[0].B).To(Equal(sim.WideAngle))

	g.Expect(res.Real.Stats.RowTotal(target.Primary)).To(Equal(sim.NSimu - sim.NPresimu))
	g.Expect(res.Real.Stats.RowTotal(target.Secondary)).To(Equal(res.Real.Stats[target.Primary][model.FinRecoil]))
	g.Expect(res.Real.Events).To(HaveLen(res.Real.Stats[target.Secondary][model.FinDet]))
	g.Expect(res.Real.Events).NotTo(BeEmpty())
	g.Expect(res.Real.Ranges).To(HaveLen(res.Real.Stats[target.Primary][model.FinStop] + res.Real.Stats[target.Primary][model.FinTrans]))
	g.Expect(res.Real.Cion).To(Equal(sim.NSimu))
	for _, ev := range res.Real.Events {
		g.Expect(ev.Z).To(Equal(1))
		g.Expect(ev.Depth).To(BeNumerically("<=", 200+1e-6))
		g.Expect(ev.W).To(BeNumerically(">", 0))
	}
}

func TestEndToEndFittedCone(t *testing.T) {
	if testing.Short() {
		t.Skip("long run")
	}
	g := NewWithT(t)
	sim := singleLayer(silicon, hydrogen)
	sim.NSimu, sim.NPresimu, sim.PresimBinSize, sim.Workers = 40000, 20000, 20, 4
	r := newRunner(t, sim)
	res, err := r.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(res.Fits).To(HaveLen(1))
	fit := res.Fits[0]
	g.Expect(math.IsNaN(fit.A) || math.IsInf(fit.A, 0)).To(BeFalse())
	g.Expect(math.IsNaN(fit.B) || math.IsInf(fit.B, 0)).To(BeFalse())
	g.Expect(fit.B).To(BeNumerically(">", 0))
	g.Expect(fit.B).To(BeNumerically("<=", sim.WideAngle))
	mid := fit.A*100*nm + fit.B
	g.Expect(mid).To(BeNumerically(">", 0))
	g.Expect(mid).To(BeNumerically("<=", sim.WideAngle))
	// the cone barely changes over the layer
	g.Expect(math.Abs(fit.A * 200 * nm)).To(BeNumerically("<", 0.05*fit.B))

	g.Expect(res.Real.Stats.RowTotal(target.Primary)).To(Equal(sim.NSimu - sim.NPresimu))
	g.Expect(res.Real.Events).NotTo(BeEmpty())
}

func TestWorkerCountConservesHistories(t *testing.T) {
	sim := singleLayer(silicon, hydrogen)
	r := newRunner(t, sim)
	const n = 400
	for _, workers := range []int{1, 3, 8} {
		sim.Workers = workers
		for _, phase := range []int{PhasePresim, PhaseReal} {
			res, err := r.RunPhase(context.Background(), phase, r.Target, 0, n)
			if err != nil {
				t.Fatal(err)
			}
			if got := res.Stats.RowTotal(target.Primary); got != n {
				t.Errorf("workers=%d phase=%d: %d primaries, want %d", workers, phase, got, n)
			}
			if res.Cion != n {
				t.Errorf("workers=%d phase=%d: cion %d", workers, phase, res.Cion)
			}
			if phase == PhasePresim && len(res.Presims) != n {
				t.Errorf("workers=%d: %d presimulation slots", workers, len(res.Presims))
			}
		}
	}
}

func TestDeterministic(t *testing.T) {
	g := NewWithT(t)
	sim := singleLayer(silicon, hydrogen)
	sim.Workers = 3
	r := newRunner(t, sim)
	a, err := r.RunPhase(context.Background(), PhaseReal, r.Target, 0, 300)
	g.Expect(err).NotTo(HaveOccurred())
	b, err := r.RunPhase(context.Background(), PhaseReal, r.Target, 0, 300)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(b.Stats).To(Equal(a.Stats))
	g.Expect(b.Events).To(Equal(a.Events))
	g.Expect(b.Ranges).To(Equal(a.Ranges))

	sim.Seed = 2
	c, err := r.RunPhase(context.Background(), PhaseReal, r.Target, 0, 300)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.Ranges).NotTo(Equal(a.Ranges))
}

func TestZeroRecoilDensity(t *testing.T) {
	g := NewWithT(t)
	si := silicon
	si.Fraction = 1
	sim := singleLayer(si)
	sim.NSimu, sim.NPresimu = 200, 20
	r := newRunner(t, sim)
	_, err := r.Run(context.Background())
	g.Expect(errors.Is(err, presim.ErrFitUnderdetermined)).To(BeTrue(), "got %v", err)

	sim.RecoilWidth = config.Wide
	res, err := r.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Fits).To(Equal([]target.Fit{{A: 0, B: sim.WideAngle}}))
	g.Expect(res.Real.Events).To(BeEmpty())
	g.Expect(res.Real.Stats.RowTotal(target.Secondary)).To(BeZero())
	g.Expect(res.Real.Stats[target.Primary][model.FinRecoil]).To(BeZero())
}

func TestCancelled(t *testing.T) {
	sim := singleLayer(silicon, hydrogen)
	r := newRunner(t, sim)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RunPhase(ctx, PhaseReal, r.Target, 0, 100); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
}

func TestWrite(t *testing.T) {
	g := NewWithT(t)
	dir := filepath.Join(t.TempDir(), "out")
	res := &Result{
		Format: output.Format{TOF: true},
		Real: &PhaseResult{
			Events: []output.Event{{Kind: output.RecoilKind, E: 1.2, Z: 1, A: 1.0078, Depth: 12, W: 0.5, TOF: 40}},
			Ranges: []output.Range{{Value: 120}, {Transmitted: true, Value: 1.5}},
		},
	}
	res.Real.Stats.Inc(target.Primary, int(model.FinStop))
	files := FileNames("run", 7)
	g.Expect(files.Events).To(Equal("run_events_7.dat"))
	g.Expect(res.Write(dir, true, files)).To(Succeed())

	f, err := os.Open(filepath.Join(dir, files.Events))
	g.Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	events, err := output.ReadEvents(f, res.Format)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(events).To(HaveLen(1))
	g.Expect(events[0].TOF).To(BeNumerically("~", 40, 1e-4))

	sf, err := os.Open(filepath.Join(dir, files.Stats))
	g.Expect(err).NotTo(HaveOccurred())
	defer sf.Close()
	stats, err := output.ReadStats(sf)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(*stats).To(Equal(res.Real.Stats))

	ranges, err := os.ReadFile(filepath.Join(dir, files.Ranges))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(ranges)).To(Equal("R    120.000\nT     1.500000\n"))
}
