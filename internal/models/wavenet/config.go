package wavenet

import (
	"fmt"
	"slices"

	"github.com/imu1984/Time-series-prediction/internal/config"
)

// ModelType is the registry tag of the WaveNet architecture.
const ModelType = "wavenet"

// Decoder control-flow variants. Both produce identical outputs.
const (
	// VariantEager unrolls a step loop whose length is fixed when the model
	// is built.
	VariantEager = "eager"
	// VariantLoop reads the horizon at call time and writes each step into
	// a preallocated output.
	VariantLoop = "loop"
)

// Config holds the WaveNet hyperparameters.
type Config struct {
	// DilationRates holds one dilation per convolution level.
	DilationRates []int `json:"dilation_rates"`
	// KernelSizes holds one encoder kernel size per level.
	KernelSizes []int `json:"kernel_sizes"`
	// Filters is the residual width; gated convolutions produce 2*Filters.
	Filters int `json:"filters"`
	// DenseHiddenSize is the width of the hidden layer of the output head.
	DenseHiddenSize int `json:"dense_hidden_size"`
	// ScheduledSampling is the probability threshold of scheduled sampling:
	// 0 always feeds the teacher, 1 always feeds the model's own prediction.
	ScheduledSampling float32 `json:"scheduled_sampling"`
	// DecoderVariant selects VariantEager or VariantLoop.
	DecoderVariant string `json:"decoder_variant"`
}

// DefaultConfig returns the reference configuration: four levels with
// dilations 1, 2, 4, 8 and kernel size 2.
func DefaultConfig() Config {
	return Config{
		DilationRates:     []int{1, 2, 4, 8},
		KernelSizes:       []int{2, 2, 2, 2},
		Filters:           128,
		DenseHiddenSize:   64,
		ScheduledSampling: 1,
		DecoderVariant:    VariantEager,
	}
}

// clone returns c with its own copies of the per-level slices.
func (c Config) clone() Config {
	c.DilationRates = slices.Clone(c.DilationRates)
	c.KernelSizes = slices.Clone(c.KernelSizes)
	return c
}

// ModelType implements config.Config.
func (c Config) ModelType() string {
	return ModelType
}

// Validate implements config.Config.
func (c Config) Validate() error {
	if len(c.DilationRates) == 0 {
		return &config.FieldError{Field: "dilation_rates", Value: c.DilationRates, Reason: "must not be empty"}
	}
	if len(c.KernelSizes) != len(c.DilationRates) {
		return &config.FieldError{
			Field:  "kernel_sizes",
			Value:  c.KernelSizes,
			Reason: fmt.Sprintf("must have one entry per dilation rate (%d)", len(c.DilationRates)),
		}
	}
	for i, d := range c.DilationRates {
		if err := config.Positive(fmt.Sprintf("dilation_rates[%d]", i), d); err != nil {
			return err
		}
	}
	for i, k := range c.KernelSizes {
		if err := config.Positive(fmt.Sprintf("kernel_sizes[%d]", i), k); err != nil {
			return err
		}
	}
	if err := config.Positive("filters", c.Filters); err != nil {
		return err
	}
	if err := config.Positive("dense_hidden_size", c.DenseHiddenSize); err != nil {
		return err
	}
	if err := config.Probability("scheduled_sampling", c.ScheduledSampling); err != nil {
		return err
	}
	switch c.DecoderVariant {
	case VariantEager, VariantLoop:
	default:
		return &config.FieldError{
			Field:  "decoder_variant",
			Value:  c.DecoderVariant,
			Reason: fmt.Sprintf("must be %q or %q", VariantEager, VariantLoop),
		}
	}
	return nil
}

// CheckHistory reports the first dilation rate larger than a history of
// the given length as ErrDilationExceedsHistory.
//
// The decoder clamps such dilations at run time; this lets callers reject
// the configuration up front instead.
func (c Config) CheckHistory(steps int) error {
	for i, d := range c.DilationRates {
		if d > steps {
			return &DilationError{Level: i, Dilation: d, Available: steps}
		}
	}
	return nil
}
