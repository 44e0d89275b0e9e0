package presim

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/wildstyl3r/erdmc/internal/model"
	"github.com/wildstyl3r/erdmc/internal/target"
	"github.com/wildstyl3r/erdmc/internal/utils"
)

const MinFitPoints = 3

var (
	ErrFitUnderdetermined = errors.New("presim: too few points for a linear fit")
	ErrFitPathological    = errors.New("presim: fit is not finite")
)

// Bin is one group of presimulation samples of a single layer.
type Bin struct {
	Depth float64 // [m] mean depth
	Angle float64 // [rad] percentile of the recoil angle
	N     int
}

// Bins groups valid records by layer and, inside each layer, into runs of
// binSize consecutive records ordered by depth. A trailing run shorter than
// half a bin is merged into the one before it.
func Bins(records []model.Presim, layers int, percentile float64, binSize int) [][]Bin {
	byLayer := make([][]model.Presim, layers)
	for _, r := range records {
		if r.Layer < 0 || r.Layer >= layers {
			continue
		}
		byLayer[r.Layer] = append(byLayer[r.Layer], r)
	}
	if binSize < 1 {
		binSize = 1
	}

	out := make([][]Bin, layers)
	for l, recs := range byLayer {
		sort.Slice(recs, func(i, j int) bool { return recs[i].Depth < recs[j].Depth })
		for lo := 0; lo < len(recs); {
			hi := min(lo+binSize, len(recs))
			if rest := len(recs) - hi; rest > 0 && 2*rest < binSize {
				hi = len(recs)
			}
			out[l] = append(out[l], makeBin(recs[lo:hi], percentile))
			lo = hi
		}
	}
	return out
}

func makeBin(recs []model.Presim, percentile float64) Bin {
	depths := make([]float64, len(recs))
	angles := make([]float64, len(recs))
	for i, r := range recs {
		depths[i], angles[i] = r.Depth, r.Angle
	}
	sort.Float64s(angles)
	return Bin{
		Depth: stat.Mean(depths, nil),
		Angle: stat.Quantile(percentile, stat.Empirical, angles, nil),
		N:     len(recs),
	}
}

// LinearFit is the weighted least-squares line y = a*x + b solved from the
// normal equations.
func LinearFit(x, y, w []float64) (a, b float64, err error) {
	if len(x) < MinFitPoints {
		return 0, 0, fmt.Errorf("%w: %d points", ErrFitUnderdetermined, len(x))
	}
	s := floats.Sum(w)
	sx := floats.Dot(w, x)
	sy := floats.Dot(w, y)
	wx := make([]float64, len(x))
	floats.MulTo(wx, w, x)
	sxx := floats.Dot(wx, x)
	sxy := floats.Dot(wx, y)

	delta := s*sxx - sx*sx
	if delta == 0 {
		return 0, 0, fmt.Errorf("%w: all points at one depth", ErrFitUnderdetermined)
	}
	a = (s*sxy - sx*sy) / delta
	b = (sxx*sy - sx*sxy) / delta
	if !utils.IsFinite(a) || !utils.IsFinite(b) {
		return 0, 0, fmt.Errorf("%w: a=%g b=%g", ErrFitPathological, a, b)
	}
	return a, b, nil
}

func fitBins(bins []Bin) (target.Fit, error) {
	x := make([]float64, len(bins))
	y := make([]float64, len(bins))
	w := make([]float64, len(bins))
	for i, bin := range bins {
		x[i], y[i], w[i] = bin.Depth, bin.Angle, float64(bin.N)
	}
	a, b, err := LinearFit(x, y, w)
	return target.Fit{A: a, B: b}, err
}

// Analyze fits the recoil half-angle of every sample layer. A layer without
// enough bins takes the fit of the layer above it and the first layer takes
// {0, def}. With no layer fitted there is nothing to fall back to and the
// analysis fails with ErrFitUnderdetermined; so does a non-finite fit with
// ErrFitPathological.
func Analyze(records []model.Presim, layers int, percentile float64, binSize int, def float64, log logrus.FieldLogger) ([]target.Fit, error) {
	bins := Bins(records, layers, percentile, binSize)
	fits := make([]target.Fit, layers)
	ok := make([]bool, layers)
	fitted := 0
	for l := range bins {
		fit, err := fitBins(bins[l])
		switch {
		case err == nil:
			fits[l], ok[l] = fit, true
			fitted++
			log.WithFields(logrus.Fields{"layer": l, "bins": len(bins[l]), "a": fit.A, "b": fit.B}).Info("recoil angle fit")
		case errors.Is(err, ErrFitUnderdetermined):
		default:
			return nil, fmt.Errorf("layer %d: %w", l, err)
		}
	}
	if fitted == 0 {
		return nil, fmt.Errorf("%w: no layer has %d bins out of %d presimulation records", ErrFitUnderdetermined, MinFitPoints, len(records))
	}

	for l := range fits {
		if ok[l] {
			continue
		}
		entry := log.WithFields(logrus.Fields{"layer": l, "bins": len(bins[l])})
		if l == 0 {
			fits[l] = target.Fit{A: 0, B: def}
			entry.Warn("too few presimulation points, using the default angle")
			continue
		}
		fits[l] = fits[l-1]
		entry.WithField("from", l-1).Warn("too few presimulation points, using the previous layer fit")
	}
	return fits, nil
}
