package rng

import (
	"math/rand/v2"
)

type HostStream struct {
	stream uint64
	pcg    *rand.PCG
	r      *rand.Rand
}

func NewHost(seed, stream uint64) *HostStream {
	h := &HostStream{stream: stream, pcg: rand.NewPCG(0, 0)}
	h.r = rand.New(h.pcg)
	h.Seed(seed)
	return h
}

func (h *HostStream) Name() string { return Host }

func (h *HostStream) Seed(seed uint64) {
	x := splitmix64(seed ^ 0x9e3779b97f4a7c15)
	hi := splitmix64(x ^ splitmix64(h.stream))
	lo := splitmix64(hi ^ 0xDA942042E4DD58B5)
	h.pcg.Seed(hi, lo)
}

func (h *HostStream) Float64() float64 {
	return h.r.Float64()
}

func (h *HostStream) Uniform(low, high float64) (float64, error) {
	return uniform(h, low, high)
}

func (h *HostStream) Gaussian() float64 {
	return h.r.NormFloat64()
}
