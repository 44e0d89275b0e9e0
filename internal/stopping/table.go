package stopping

import (
	"fmt"
	"math"
)

const DefaultTableSize = 500

// Table samples a Source on a logarithmic velocity grid.
type Table struct {
	logVMin, logVStep float64
	s, omega2         []float64
}

func NewTable(src Source, p Projectile, layer []Constituent, vMin, vMax float64, n int) (*Table, error) {
	if !(vMin > 0 && vMax > vMin) || n < 2 {
		return nil, fmt.Errorf("stopping: invalid velocity grid [%g, %g] with %d points", vMin, vMax, n)
	}
	t := &Table{
		logVMin:  math.Log(vMin),
		logVStep: (math.Log(vMax) - math.Log(vMin)) / float64(n-1),
		s:        make([]float64, n),
		omega2:   make([]float64, n),
	}
	for i := range t.s {
		v := math.Exp(t.logVMin + float64(i)*t.logVStep)
		s, omega2, err := src.Stopping(p, layer, v)
		if err != nil {
			return nil, err
		}
		t.s[i], t.omega2[i] = s, omega2
	}
	return t, nil
}

// At returns stopping [J/m] and straggling [J^2/m] at speed v.
func (t *Table) At(v float64) (float64, float64) {
	n := len(t.s)
	if !(v > 0) {
		return t.s[0], t.omega2[0]
	}
	f := (math.Log(v) - t.logVMin) / t.logVStep
	if f <= 0 {
		return t.s[0], t.omega2[0]
	}
	if f >= float64(n-1) {
		return t.s[n-1], t.omega2[n-1]
	}
	i := int(f)
	f -= float64(i)
	return math.FMA(f, t.s[i+1]-t.s[i], t.s[i]), math.FMA(f, t.omega2[i+1]-t.omega2[i], t.omega2[i])
}

// Velocity of a particle of mass m [kg] with kinetic energy e [J].
func Velocity(e, m float64) float64 {
	return math.Sqrt(2. * e / m)
}
