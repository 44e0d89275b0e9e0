package rng

import (
	"fmt"
	"math"
)

const (
	Host    = "host"
	Counter = "counter"
)

type Stream interface {
	Name() string
	// Seed restarts the stream from seed, keeping the stream id.
	Seed(seed uint64)
	// Float64 returns a value in [0, 1).
	Float64() float64
	// Uniform returns a value in [low, high); it fails with a RangeError when high < low.
	Uniform(low, high float64) (float64, error)
	Gaussian() float64
}

type RangeError struct {
	Low, High float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("rng: upper bound %g below lower bound %g", e.High, e.Low)
}

func New(backend string, seed, stream uint64) (Stream, error) {
	switch backend {
	case Host, "":
		return NewHost(seed, stream), nil
	case Counter:
		return NewCounter(seed, stream), nil
	}
	return nil, fmt.Errorf("rng: unknown backend %q", backend)
}

// StreamID combines a simulation phase and a worker index into one stream id.
func StreamID(phase, worker int) uint64 {
	return uint64(phase)<<32 | uint64(uint32(worker))
}

func uniform(s Stream, low, high float64) (float64, error) {
	if high < low || math.IsNaN(low) || math.IsNaN(high) {
		return 0, &RangeError{Low: low, High: high}
	}
	return math.FMA(high-low, s.Float64(), low), nil
}

// Exponential returns -ln(1-U) with U from s.
func Exponential(s Stream) float64 {
	return -math.Log(1. - s.Float64())
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
