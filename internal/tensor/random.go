package tensor

import "math/rand/v2"

// RandUniform fills a tensor with values drawn uniformly from [lo, hi).
func RandUniform(shape Shape, lo, hi float32, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	span := hi - lo
	for i := range t.data {
		t.data[i] = lo + span*rng.Float32()
	}
	return t
}

// RandNormal fills a tensor with values drawn from N(mean, std²).
func RandNormal(shape Shape, mean, std float32, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = mean + std*float32(rng.NormFloat64())
	}
	return t
}

// NewRand returns a deterministic PCG source seeded with seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
