package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wildstyl3r/erdmc/internal/config"
	"github.com/wildstyl3r/erdmc/internal/constants"
	"github.com/wildstyl3r/erdmc/internal/geometry"
	"github.com/wildstyl3r/erdmc/internal/output"
	"github.com/wildstyl3r/erdmc/internal/rng"
	"github.com/wildstyl3r/erdmc/internal/scattering"
	"github.com/wildstyl3r/erdmc/internal/target"
)

const (
	MaxStoppingChange = 0.05 // relative change of stopping power within one step
	MaxHalvings       = 40
	MaxSteps          = 1 << 24 // per ion
)

// Engine owns the mutable state of one worker. The target is shared read-only.
type Engine struct {
	sim    *config.Simulation
	target *target.Target
	rng    rng.Stream
	log    logrus.FieldLogger

	presim  bool
	Presims []Presim
	Events  *output.EventBuffer
	Ranges  *output.RangeBuffer
	Stats   output.Stats
	Cion    int

	primary, secondary Ion

	maxDepth  float64 // [m]
	lambda    float64 // [m] mean sampled recoil depth
	sigmaRef  float64 // [m^2/sr]
	wideOmega float64 // [sr]
}

// NewEngine prepares a worker engine for histories histories. In the
// presimulation phase it records Presims instead of events and ranges.
func NewEngine(sim *config.Simulation, tg *target.Target, stream rng.Stream, histories int, presim bool, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		sim:       sim,
		target:    tg,
		rng:       stream,
		log:       log,
		presim:    presim,
		maxDepth:  tg.Distribution.MaxDepth(),
		wideOmega: coneSolidAngle(sim.WideAngle),
	}
	e.lambda = e.maxDepth
	if presim {
		e.Presims = make([]Presim, 0, histories)
	}
	e.Events = output.NewBuffer[output.Event](histories)
	e.Ranges = output.NewBuffer[output.Range](histories)

	p, s := tg.Ions[target.Primary], tg.Ions[target.Secondary]
	recoil := sim.Recoil.Mass()
	if sim.Type == config.RBS {
		e.sigmaRef = scattering.RutherfordCrossSection(sim.Beam.Energy, sim.Detector.Angle, p.Z, float64(sim.Recoil.Z), p.M, recoil)
	} else {
		e.sigmaRef = scattering.RecoilCrossSection(sim.Beam.Energy, sim.Detector.Angle, p.Z, s.Z, p.M, s.M)
	}
	return e
}

// RunHistory follows one primary and its secondary to termination.
func (e *Engine) RunHistory(index int) error {
	p, s := &e.primary, &e.secondary
	e.CreateIon(p)
	s.reset()
	s.Status = FinNoRecoil
	if err := e.transport(index, p, s); err != nil {
		return err
	}
	e.FinishIon(p)
	if p.Status == FinRecoil {
		if err := e.transport(index, s, nil); err != nil {
			return err
		}
		e.FinishIon(s)
	}
	if e.presim {
		slot := Presim{Layer: -1}
		if p.Status == FinRecoil && s.Status == FinDet {
			slot = Presim{Depth: s.Hist.Depth, Angle: s.Hist.Angle, Layer: s.Hist.Layer}
		}
		e.Presims = append(e.Presims, slot)
	}
	e.Cion = index + 1
	return nil
}

func (e *Engine) transport(index int, ion, other *Ion) error {
	for step := 0; ion.Status == NotFinished; step++ {
		if step >= MaxSteps {
			e.log.WithFields(logrus.Fields{"ion": index, "layer": ion.Layer, "type": ion.Type}).Warn("step limit reached, ion stopped")
			ion.Status = FinStop
			break
		}
		if ion.needNext {
			if err := e.NextScattering(ion); err != nil {
				return &IonError{Stage: "next scattering", Ion: index, Layer: ion.Layer, Err: err}
			}
		}
		switch e.MoveIon(ion) {
		case eventCollision:
			e.MCScattering(ion)
		case eventRecoil:
			e.ERDScattering(ion, other)
		}
		if ion.Status == NotFinished {
			e.IonFinished(ion)
		}
	}
	return nil
}

// CreateIon starts a new primary at the surface with beam spot, energy spread,
// divergence and isotope sampled.
func (e *Engine) CreateIon(ion *Ion) {
	ion.reset()
	b := e.sim.Beam
	ion.Type = target.Primary
	ion.Z = float64(b.Z)
	ion.M = sampleMass(b.Isotopes, e.rng)
	ion.E = b.Energy
	if b.EnergySpread > 0 {
		ion.E = math.FMA(b.EnergySpread, e.rng.Gaussian(), b.Energy)
	}
	ion.W = 1
	ion.Pos = r3.Vec{
		X: (e.rng.Float64() - 0.5) * b.SpotX / math.Cos(b.Angle),
		Y: (e.rng.Float64() - 0.5) * b.SpotY,
	}
	theta, fii := 0., 0.
	if b.Divergence > 0 {
		theta = math.Abs(b.Divergence * e.rng.Gaussian())
		fii = 2 * math.Pi * e.rng.Float64()
	}
	ion.Theta, ion.Fii = e.target.BeamFrame.Rotate(theta, fii)
	ion.Layer = 0
	if e.lambda > 0 {
		ion.recoilDepth = e.lambda * rng.Exponential(e.rng)
	}
}

// NextScattering samples the path to the next elastic collision and the atom hit.
func (e *Engine) NextScattering(ion *Ion) error {
	ion.needNext = false
	ion.collision = math.Inf(1)
	l := &e.target.Layers[ion.Layer]
	if l.N == 0 || len(l.Atoms) == 0 {
		return nil
	}
	var total float64
	for i := range l.Atoms {
		total += l.Atoms[i].N * l.Atoms[i].Scatter[ion.Type].CrossSection(ion.E)
	}
	if !(total > 0) {
		return nil
	}
	ion.collision = rng.Exponential(e.rng) / total
	choice := e.rng.Float64() * total
	var acc float64
	for i := range l.Atoms {
		acc += l.Atoms[i].N * l.Atoms[i].Scatter[ion.Type].CrossSection(ion.E)
		if choice < acc {
			ion.atom = i
			return nil
		}
	}
	return fmt.Errorf("%w: choice %g of total %g in %d atoms", ErrAtomIndex, choice, total, len(l.Atoms))
}

// MCScattering performs the elastic collision with the atom chosen by NextScattering.
func (e *Engine) MCScattering(ion *Ion) {
	atom := &e.target.Layers[ion.Layer].Atoms[ion.atom]
	table := atom.Scatter[ion.Type]
	thetaCM := table.Sample(ion.E, e.rng.Float64())
	ion.E = scattering.EnergyAfter(ion.E, thetaCM, ion.M, atom.M)
	thetaLab := scattering.LabAngle(thetaCM, ion.M, atom.M)
	ion.Theta, ion.Fii = geometry.Rotate(ion.Theta, ion.Fii, thetaLab, 2*math.Pi*e.rng.Float64())
	ion.Scatterings++
	ion.needNext = true
}

// IonFinished assigns FIN_STOP or FIN_MAXDEPTH when they apply.
func (e *Engine) IonFinished(ion *Ion) bool {
	switch {
	case ion.Status != NotFinished:
	case ion.E < e.sim.EMin:
		ion.Status = FinStop
	case ion.Type == target.Primary && ion.Layer < e.target.NTarget && ion.Depth() > e.maxDepth:
		ion.Status = FinMaxDepth
	}
	return ion.Status != NotFinished
}

// FinishIon counts a terminated ion and writes its range or event row.
func (e *Engine) FinishIon(ion *Ion) {
	e.Stats.Inc(ion.Type, int(ion.Status))
	if e.presim {
		return
	}
	switch {
	case ion.Type == target.Primary && ion.Status == FinStop:
		e.Ranges.Append(output.Range{Value: ion.Depth() / constants.NanoMeter})
	case ion.Type == target.Primary && ion.Status == FinTrans:
		e.Ranges.Append(output.Range{Transmitted: true, Value: ion.E / constants.MeV})
	case ion.Type == target.Secondary && ion.Status == FinDet:
		e.Events.Append(e.event(ion))
	}
}

func (e *Engine) event(ion *Ion) output.Event {
	kind := output.RecoilKind
	if e.sim.Type == config.RBS {
		kind = output.ScatteredKind
	}
	ev := output.Event{
		Kind:  kind,
		E:     ion.E / constants.MeV,
		Z:     int(ion.Z),
		A:     ion.M / constants.AtomicMassUnit,
		Depth: ion.Hist.Depth / constants.NanoMeter,
		W:     ion.W,
		X:     ion.hitX * 1e3,
		Y:     ion.hitY * 1e3,
		E0:    ion.Hist.E / constants.MeV,
	}
	switch len(ion.timing) {
	case 0:
	case 1:
		ev.TOF = ion.timing[0] * 1e9
	default:
		ev.TOF = (ion.timing[len(ion.timing)-1] - ion.timing[0]) * 1e9
	}
	return ev
}

// Recover turns a buffer overflow panic raised while running a history into an error.
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if rerr, ok := r.(error); ok && errors.Is(rerr, output.ErrBufferOverflow) {
		*err = rerr
		return
	}
	panic(r)
}
