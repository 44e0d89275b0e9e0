package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wildstyl3r/erdmc/internal/config"
	"github.com/wildstyl3r/erdmc/internal/model"
	"github.com/wildstyl3r/erdmc/internal/output"
	"github.com/wildstyl3r/erdmc/internal/potential"
	"github.com/wildstyl3r/erdmc/internal/presim"
	"github.com/wildstyl3r/erdmc/internal/rng"
	"github.com/wildstyl3r/erdmc/internal/scattering"
	"github.com/wildstyl3r/erdmc/internal/target"
)

const ProgressEvery = 10000 // ions per worker between progress lines

const (
	PhasePresim = iota
	PhaseReal
)

var phaseNames = [...]string{"presimulation", "simulation"}

// Span is a contiguous range [Lo, Hi) of history indices.
type Span struct {
	Lo, Hi int
}

// Partition splits [lo, hi) into at most workers contiguous spans whose sizes
// differ by at most one.
func Partition(lo, hi, workers int) []Span {
	n := hi - lo
	if n <= 0 {
		return nil
	}
	workers = max(1, min(workers, n))
	spans := make([]Span, workers)
	size, extra := n/workers, n%workers
	for w := range spans {
		k := size
		if w < extra {
			k++
		}
		spans[w] = Span{Lo: lo, Hi: lo + k}
		lo += k
	}
	return spans
}

// PhaseResult is the reduction of all workers of one phase.
type PhaseResult struct {
	Presims []model.Presim
	Events  []output.Event
	Ranges  []output.Range
	Stats   output.Stats
	Cion    int
}

type Result struct {
	Fits   []target.Fit
	Presim *PhaseResult
	Real   *PhaseResult
	Format output.Format
}

// Runner holds the read-only state shared by all workers.
type Runner struct {
	Sim    *config.Simulation
	Target *target.Target
	log    logrus.FieldLogger
}

// New validates sim and builds the target with its stopping and scattering tables.
func New(ctx context.Context, sim *config.Simulation, log logrus.FieldLogger) (*Runner, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := sim.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	solver := scattering.NewSolver(potential.BuildScreeningTable(), log)
	tg, err := target.New(ctx, sim, solver, log)
	if err != nil {
		return nil, fmt.Errorf("building target: %w", err)
	}
	log.WithFields(logrus.Fields{"layers": tg.NTarget, "detector layers": len(tg.Layers) - tg.NTarget, "elapsed": time.Since(start)}).Info("target ready")
	return &Runner{Sim: sim, Target: tg, log: log}, nil
}

// Run executes the presimulation, fits the recoil cone and runs the remaining
// histories with the fitted target.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	s := r.Sim
	res := &Result{Fits: r.Target.Fits}

	var err error
	res.Presim, err = r.RunPhase(ctx, PhasePresim, r.Target, 0, s.NPresimu)
	if err != nil {
		return nil, err
	}
	alog := r.log.WithField("stage", "analysis")
	fits, err := presim.Analyze(res.Presim.Presims, r.Target.NTarget, s.PresimPercentile, s.PresimBinSize, s.WideAngle, alog)
	switch {
	case err == nil:
		res.Fits = fits
	case s.RecoilWidth == config.Narrow:
		return nil, fmt.Errorf("presimulation analysis: %w", err)
	default:
		// the wide cone does not use the fits
		alog.WithError(err).Warn("no recoil angle fit")
	}

	res.Real, err = r.RunPhase(ctx, PhaseReal, r.Target.WithFits(res.Fits), s.NPresimu, s.NSimu)
	if err != nil {
		return nil, err
	}
	res.Format = output.Format{TOF: s.Detector.Type == config.TOF, Advanced: s.Advanced}
	return res, nil
}

// RunPhase runs histories [lo, hi) on Sim.Workers workers. Every worker owns an
// engine and a random stream identified by (seed, phase, worker); the results
// are reduced in worker order.
func (r *Runner) RunPhase(ctx context.Context, phase int, tg *target.Target, lo, hi int) (*PhaseResult, error) {
	spans := Partition(lo, hi, r.Sim.Workers)
	log := r.log.WithField("stage", phaseNames[phase])
	log.WithFields(logrus.Fields{"ions": hi - lo, "workers": len(spans)}).Info("phase started")
	start := time.Now()

	engines := make([]*model.Engine, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	for w, span := range spans {
		g.Go(func() (err error) {
			stream, err := rng.New(r.Sim.RNG, r.Sim.Seed, rng.StreamID(phase, w))
			if err != nil {
				return err
			}
			wlog := log.WithField("worker", w)
			e := model.NewEngine(r.Sim, tg, stream, span.Hi-span.Lo, phase == PhasePresim, wlog)
			engines[w] = e
			defer model.Recover(&err)
			for i := span.Lo; i < span.Hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := e.RunHistory(i); err != nil {
					return err
				}
				if done := i - span.Lo + 1; done%ProgressEvery == 0 {
					wlog.WithFields(logrus.Fields{"done": done, "of": span.Hi - span.Lo}).Info("progress")
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", phaseNames[phase], err)
	}

	res := reduce(engines)
	log.WithFields(logrus.Fields{
		"events":  len(res.Events),
		"ranges":  len(res.Ranges),
		"elapsed": time.Since(start),
	}).Info("phase finished")
	return res, nil
}

func reduce(engines []*model.Engine) *PhaseResult {
	res := &PhaseResult{}
	events := make([]*output.EventBuffer, len(engines))
	ranges := make([]*output.RangeBuffer, len(engines))
	for w, e := range engines {
		res.Presims = append(res.Presims, e.Presims...)
		res.Stats.Add(&e.Stats)
		res.Cion = max(res.Cion, e.Cion)
		events[w], ranges[w] = e.Events, e.Ranges
	}
	res.Events = output.Concat(events)
	res.Ranges = output.Concat(ranges)
	return res
}
