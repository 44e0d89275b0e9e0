package potential

import "math"

const (
	XMax         = 32.     // last tabulated reduced distance
	MaxPointsPer = 1 << 12 // upper limit of the nodes-per-unit search
	MaxInterpErr = 2.94e-5 // allowed piecewise-linear interpolation error
)

var zblCoefficients = [4]float64{0.18175, 0.50986, 0.28022, 0.028171}
var zblExponents = [4]float64{3.1998, 0.94229, 0.4029, 0.20162}

// U is the universal screening function.
func U(x float64) (u float64) {
	for i := range zblCoefficients {
		u = math.FMA(zblCoefficients[i], math.Exp(-zblExponents[i]*x), u)
	}
	return
}

// DU is dU/dx.
func DU(x float64) (du float64) {
	for i := range zblCoefficients {
		du = math.FMA(-zblCoefficients[i]*zblExponents[i], math.Exp(-zblExponents[i]*x), du)
	}
	return
}

type Table struct {
	N int // node count
	D int // nodes per unit of x, the spacing denominator
	X []float64
	U []float64

	step float64
}

// BuildScreeningTable picks the smallest node density whose linear interpolation
// stays below MaxInterpErr and tabulates U on [0, XMax].
func BuildScreeningTable() *Table {
	d := nodesPerUnit()
	n := int(XMax)*d + 1
	t := &Table{
		N:    n,
		D:    d,
		X:    make([]float64, n),
		U:    make([]float64, n),
		step: 1. / float64(d),
	}
	for i := range t.X {
		t.X[i] = float64(i) / float64(d)
		t.U[i] = U(t.X[i])
	}
	return t
}

func interpErr(d int) (maxErr float64) {
	h := 1. / float64(d)
	n := int(XMax) * d
	for i := 0; i < n; i++ {
		x0 := float64(i) * h
		x1 := float64(i+1) * h
		e := math.Abs(0.5*(U(x0)+U(x1)) - U(0.5*(x0+x1)))
		maxErr = math.Max(maxErr, e)
	}
	return
}

func nodesPerUnit() int {
	lo, hi := 1, MaxPointsPer
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if interpErr(mid) < MaxInterpErr {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// At interpolates U(x); outside the tabulated range the end values are used.
func (t *Table) At(x float64) float64 {
	if x <= 0 {
		return t.U[0]
	}
	f := x * float64(t.D)
	i := int(f)
	if i >= t.N-1 {
		return t.U[t.N-1]
	}
	return math.FMA(f-float64(i), t.U[i+1]-t.U[i], t.U[i])
}
