// Package base holds the contract shared by every forecasting architecture:
// the Model interface, per-call options and outputs, and the construction
// options common to all models.
package base

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"

	"github.com/imu1984/Time-series-prediction/internal/config"
	"github.com/imu1984/Time-series-prediction/internal/envconfig"
	"github.com/imu1984/Time-series-prediction/internal/inputs"
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Model is a forecasting architecture bound to a configuration and a
// horizon.
//
// Forward accepts any inputs.Inputs form and returns a [batch, horizon, 1]
// prediction. Models are safe for concurrent Forward calls; every call owns
// its decoding state.
type Model interface {
	nn.Layer

	// Config returns the configuration the model was built from.
	Config() config.Config
	// Horizon returns the number of forecast steps.
	Horizon() int
	// Forward runs one forward pass. opts may be nil for inference.
	Forward(in inputs.Inputs, opts *ForwardOptions) (*Output, error)
	// Predict is Forward in inference mode returning only the prediction.
	Predict(in inputs.Inputs) (*tensor.Tensor, error)
}

// ForwardOptions carries the optional arguments of a forward pass.
type ForwardOptions struct {
	// Teacher is the ground truth [batch, horizon, 1] or [batch, horizon]
	// used for scheduled sampling while training.
	Teacher *tensor.Tensor
	// Training enables dropout, batch statistics and scheduled sampling.
	Training bool
	// Rand is the random source for this call. When nil, inference uses a
	// source seeded only by the model seed, so repeated predictions agree,
	// and training derives a fresh source from the seed and a call counter.
	Rand *rand.Rand
	// OutputHiddenStates fills Output.HiddenStates.
	OutputHiddenStates bool
}

// Output is the result of a forward pass.
type Output struct {
	// Prediction is the forecast, shaped [batch, horizon, 1].
	Prediction *tensor.Tensor
	// HiddenStates holds per-layer activations when requested.
	HiddenStates []*tensor.Tensor
	// StepInputs holds the scalar fed into each autoregressive step,
	// [batch, 1] per step. Only autoregressive decoders fill it.
	StepInputs []*tensor.Tensor
	// EncoderForecast is the encoder's preliminary forecast head, when the
	// architecture has one.
	EncoderForecast *tensor.Tensor
	// Warnings lists non-fatal diagnostics raised during the call.
	Warnings []error
}

// Options configures model construction.
type Options struct {
	Seed   uint64
	Logger *slog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithSeed sets the seed for weight initialization and default per-call
// random sources.
func WithSeed(seed uint64) Option {
	return func(o *Options) { o.Seed = seed }
}

// WithLogger sets the logger for warnings raised during forward passes.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Base implements the bookkeeping every architecture shares. Models embed
// it and add their layers.
type Base struct {
	cfg     config.Config
	horizon int
	seed    uint64
	calls   atomic.Uint64

	// Init draws every weight of the model.
	Init *nn.Initializer
	// Logger receives warnings. Never nil.
	Logger *slog.Logger
}

// NewBase validates cfg and horizon and applies opts.
//
// The seed defaults to TFTS_SEED.
func NewBase(cfg config.Config, horizon int, opts ...Option) (*Base, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := config.Horizon(horizon); err != nil {
		return nil, err
	}
	o := Options{Seed: envconfig.Seed(), Logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Base{
		cfg:     cfg,
		horizon: horizon,
		seed:    o.Seed,
		Init:    nn.NewInitializer(o.Seed),
		Logger:  o.Logger.With("model", cfg.ModelType()),
	}, nil
}

// Config returns the model configuration.
func (b *Base) Config() config.Config {
	return b.cfg
}

// Horizon returns the number of forecast steps.
func (b *Base) Horizon() int {
	return b.horizon
}

// CallOptions resolves the per-call layer options from opts.
func (b *Base) CallOptions(opts *ForwardOptions) nn.CallOptions {
	if opts == nil {
		opts = &ForwardOptions{}
	}
	rng := opts.Rand
	if rng == nil {
		var stream uint64
		if opts.Training {
			stream = b.calls.Add(1)
		}
		rng = rand.New(rand.NewPCG(b.seed, stream))
	}
	return nn.CallOptions{Training: opts.Training, Rand: rng}
}

// Teacher validates a teacher sequence against batch and horizon and
// returns it as [batch, horizon]. A nil teacher yields nil.
func Teacher(teacher *tensor.Tensor, batch, horizon int) (*tensor.Tensor, error) {
	if teacher == nil {
		return nil, nil
	}
	s := teacher.Shape()
	switch {
	case len(s) == 3 && s[0] == batch && s[1] == horizon && s[2] == 1:
		return teacher.Reshape(batch, horizon), nil
	case len(s) == 2 && s[0] == batch && s[1] == horizon:
		return teacher, nil
	}
	return nil, fmt.Errorf("%w: teacher shape %v, want [%d, %d, 1] or [%d, %d]",
		inputs.ErrInvalidInputShape, s, batch, horizon, batch, horizon)
}

// StateDict flattens a model's parameters into a name → tensor map.
func StateDict(m nn.Layer) map[string]*tensor.Tensor {
	return nn.StateDict(m.Parameters())
}
