package utils

import "math"

// return the point of the condition support that is not farther than eps from the support boundary
// invariant: at *right* condition must be TRUE
func BinarySearch(condition func(float64) bool, falseDom, trueDom, eps float64, maxSteps int) (float64, float64, bool) {
	for step := 0; math.Abs(trueDom-falseDom) > eps; step++ {
		if step >= maxSteps {
			return falseDom, trueDom, false
		}
		c := (falseDom + trueDom) * 0.5
		if condition(c) {
			trueDom = c
		} else {
			falseDom = c
		}
	}
	return falseDom, trueDom, true
}
