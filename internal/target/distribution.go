package target

import (
	"math"
	"sort"
)

// Point is a breakpoint of the recoil material distribution; the atomic
// fraction of recoil atoms is linear between points and zero outside them.
type Point struct {
	Depth         float64 // [m]
	Concentration float64
}

type Distribution struct {
	Points []Point
}

func (d *Distribution) Concentration(depth float64) float64 {
	p := d.Points
	if len(p) == 0 || depth < p[0].Depth || depth > p[len(p)-1].Depth {
		return 0
	}
	// first point deeper than depth
	i := sort.Search(len(p), func(i int) bool { return p[i].Depth > depth })
	if i == len(p) {
		return p[len(p)-1].Concentration
	}
	a, b := p[i-1], p[i]
	if b.Depth == a.Depth {
		return b.Concentration
	}
	return math.FMA((depth-a.Depth)/(b.Depth-a.Depth), b.Concentration-a.Concentration, a.Concentration)
}

// Next returns the nearest breakpoint strictly beyond depth in the given direction.
func (d *Distribution) Next(depth float64, forward bool) (float64, bool) {
	p := d.Points
	if forward {
		i := sort.Search(len(p), func(i int) bool { return p[i].Depth > depth })
		if i == len(p) {
			return 0, false
		}
		return p[i].Depth, true
	}
	i := sort.Search(len(p), func(i int) bool { return p[i].Depth >= depth })
	if i == 0 {
		return 0, false
	}
	return p[i-1].Depth, true
}

// MaxDepth is the deepest point where recoil material may be present.
func (d *Distribution) MaxDepth() float64 {
	for i := len(d.Points) - 1; i >= 0; i-- {
		if d.Points[i].Concentration > 0 {
			if i+1 < len(d.Points) {
				return d.Points[i+1].Depth
			}
			return d.Points[i].Depth
		}
	}
	return 0
}
