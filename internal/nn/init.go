package nn

import (
	"math/rand/v2"
	"sync"

	"github.com/chewxy/math32"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Initializer draws initial weights from a seeded source.
//
// One Initializer belongs to one model instance. It is safe for concurrent
// use because lazy layers may bind from several goroutines at once.
type Initializer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewInitializer creates an initializer seeded with seed.
func NewInitializer(seed uint64) *Initializer {
	return &Initializer{rng: tensor.NewRand(seed)}
}

// GlorotUniform draws weights from U(-limit, limit) with
// limit = sqrt(6 / (fan_in + fan_out)).
//
// This keeps the variance of activations roughly constant across layers.
//
// Parameters:
//   - fanIn: Number of input units
//   - fanOut: Number of output units
//   - shape: Shape of the weight tensor
//
// Returns a tensor initialized with the Glorot distribution.
func (i *Initializer) GlorotUniform(fanIn, fanOut int, shape tensor.Shape) *tensor.Tensor {
	limit := math32.Sqrt(6 / float32(max(fanIn+fanOut, 1)))

	i.mu.Lock()
	defer i.mu.Unlock()
	return tensor.RandUniform(shape, -limit, limit, i.rng)
}
