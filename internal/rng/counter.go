package rng

import (
	"math"
	"math/bits"
)

const (
	philoxM0 = 0xD2511F53
	philoxM1 = 0xCD9E8D57
	philoxW0 = 0x9E3779B9
	philoxW1 = 0xBB67AE85
)

// philox4x32 is the Philox4x32-10 block function.
func philox4x32(ctr [4]uint32, key [2]uint32) [4]uint32 {
	for round := 0; round < 10; round++ {
		hi0, lo0 := bits.Mul32(philoxM0, ctr[0])
		hi1, lo1 := bits.Mul32(philoxM1, ctr[2])
		ctr = [4]uint32{hi1 ^ ctr[1] ^ key[0], lo1, hi0 ^ ctr[3] ^ key[1], lo0}
		key[0] += philoxW0
		key[1] += philoxW1
	}
	return ctr
}

// CounterStream draws blocks of Philox4x32-10 output. Counter words 0-1 hold the
// block index, words 2-3 the stream id; the key is the seed.
type CounterStream struct {
	key    [2]uint32
	stream uint64
	block  uint64
	buf    [4]uint32
	used   int

	spare    float64
	hasSpare bool
}

func NewCounter(seed, stream uint64) *CounterStream {
	c := &CounterStream{stream: stream}
	c.Seed(seed)
	return c
}

func (c *CounterStream) Name() string { return Counter }

func (c *CounterStream) Seed(seed uint64) {
	c.key = [2]uint32{uint32(seed), uint32(seed >> 32)}
	c.block = 0
	c.used = len(c.buf)
	c.hasSpare = false
}

func (c *CounterStream) next32() uint32 {
	if c.used == len(c.buf) {
		c.buf = philox4x32([4]uint32{
			uint32(c.block), uint32(c.block >> 32),
			uint32(c.stream), uint32(c.stream >> 32),
		}, c.key)
		c.block++
		c.used = 0
	}
	v := c.buf[c.used]
	c.used++
	return v
}

func (c *CounterStream) Float64() float64 {
	v := uint64(c.next32())<<32 | uint64(c.next32())
	return float64(v>>11) / (1 << 53)
}

func (c *CounterStream) Uniform(low, high float64) (float64, error) {
	return uniform(c, low, high)
}

// Gaussian uses the Box-Muller transform and keeps the second deviate.
func (c *CounterStream) Gaussian() float64 {
	if c.hasSpare {
		c.hasSpare = false
		return c.spare
	}
	u1 := 1. - c.Float64() // (0, 1]
	u2 := c.Float64()
	r := math.Sqrt(-2. * math.Log(u1))
	sin, cos := math.Sincos(2. * math.Pi * u2)
	c.spare = r * sin
	c.hasSpare = true
	return r * cos
}
