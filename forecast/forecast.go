// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package forecast is the public API of the time-series forecasting models.
//
// It exposes two architectures behind one Model interface:
//   - WaveNet: a dilated causal convolution encoder with an autoregressive
//     decoder that feeds each prediction back as the next step input
//   - Informer: a Transformer encoder/decoder with optional ProbSparse
//     attention and distillation between encoder layers
//
// Inputs come in three forms (Array, Dict, Tuple) that normalize to the same
// target history, encoder covariates and decoder covariates.
//
// Example:
//
//	m, err := forecast.New("wavenet", 12, forecast.WithSeed(1))
//	if err != nil {
//	    return err
//	}
//	y, err := m.Predict(forecast.Dict{
//	    forecast.KeyX:              history,   // [batch, time, 1]
//	    forecast.KeyEncoderFeature: encCov,    // [batch, time, e]
//	    forecast.KeyDecoderFeature: decCov,    // [batch, 12, d]
//	})
//	// y has shape [batch, 12, 1]
package forecast

import (
	"log/slog"

	"github.com/imu1984/Time-series-prediction/internal/config"
	"github.com/imu1984/Time-series-prediction/internal/inputs"
	"github.com/imu1984/Time-series-prediction/internal/models"
	"github.com/imu1984/Time-series-prediction/internal/models/base"
	"github.com/imu1984/Time-series-prediction/internal/models/informer"
	"github.com/imu1984/Time-series-prediction/internal/models/wavenet"
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/serialization"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Errors returned by the models. Match them with errors.Is.
var (
	ErrInvalidInputShape      = inputs.ErrInvalidInputShape
	ErrShapeMismatch          = nn.ErrShapeMismatch
	ErrInvalidConfig          = config.ErrInvalidConfig
	ErrDilationExceedsHistory = wavenet.ErrDilationExceedsHistory
	ErrUnknownModel           = models.ErrUnknownModel
)

// Model is a forecasting model with a fixed horizon.
type Model = base.Model

// ForwardOptions carries the optional arguments of a forward pass.
type ForwardOptions = base.ForwardOptions

// Output is the result of a forward pass.
type Output = base.Output

// Option configures model construction.
type Option = base.Option

// WithSeed sets the weight initialization seed.
func WithSeed(seed uint64) Option {
	return base.WithSeed(seed)
}

// WithLogger sets the logger models report warnings to.
func WithLogger(l *slog.Logger) Option {
	return base.WithLogger(l)
}

// Input forms.
type (
	Inputs = inputs.Inputs
	Array  = inputs.Array
	Dict   = inputs.Dict
	Tuple  = inputs.Tuple
	Triple = inputs.Triple
)

// Keys accepted in a Dict.
const (
	KeyX              = inputs.KeyX
	KeyEncoderFeature = inputs.KeyEncoderFeature
	KeyDecoderFeature = inputs.KeyDecoderFeature
)

// Prepare normalizes any input form into its target, encoder covariates and
// decoder covariates, validating shapes against horizon.
func Prepare(in Inputs, horizon int) (Triple, error) {
	return inputs.Prepare(in, horizon)
}

// Config is implemented by every architecture configuration.
type Config = config.Config

// WaveNetConfig configures the WaveNet architecture.
type WaveNetConfig = wavenet.Config

// InformerConfig configures the Informer architecture.
type InformerConfig = informer.Config

// DilationError is the warning raised when a dilation reaches past the
// available history.
type DilationError = wavenet.DilationError

// WaveNet decoder variants. Both produce identical outputs.
const (
	DecoderEager = wavenet.VariantEager
	DecoderLoop  = wavenet.VariantLoop
)

// DefaultWaveNetConfig returns the default WaveNet configuration.
func DefaultWaveNetConfig() WaveNetConfig {
	return wavenet.DefaultConfig()
}

// DefaultInformerConfig returns the default Informer configuration.
func DefaultInformerConfig() InformerConfig {
	return informer.DefaultConfig()
}

// Names returns the available architecture names.
func Names() []string {
	return models.Names()
}

// AutoConfig returns the default configuration of the named architecture.
func AutoConfig(name string) (Config, error) {
	return models.AutoConfig(name)
}

// AutoModel builds the architecture cfg describes.
func AutoModel(cfg Config, horizon int, opts ...Option) (Model, error) {
	return models.AutoModel(cfg, horizon, opts...)
}

// New builds the named architecture with its default configuration.
func New(name string, horizon int, opts ...Option) (Model, error) {
	return models.New(name, horizon, opts...)
}

// LoadConfig reads a JSON or YAML configuration file.
func LoadConfig(path string) (Config, error) {
	return models.LoadConfig(path)
}

// SaveConfig writes cfg as JSON or YAML, chosen by the file extension.
func SaveConfig(path string, cfg Config) error {
	return config.Save(path, cfg)
}

// ConfigToMap flattens cfg into a key-value map tagged with "model_type".
func ConfigToMap(cfg Config) (map[string]any, error) {
	return config.ToMap(cfg)
}

// ConfigFromMap builds the configuration named by m["model_type"].
func ConfigFromMap(m map[string]any) (Config, error) {
	return models.ConfigFromMap(m)
}

// DType selects the element type of saved weights.
type DType = serialization.DType

// Weight dtypes.
const (
	F32 = serialization.F32
	F16 = serialization.F16
)

// Save writes m's weights, configuration and horizon to a SafeTensors file.
func Save(path string, m Model, dtype DType) error {
	return models.Save(path, m, dtype)
}

// Load rebuilds a model written by Save.
func Load(path string, opts ...Option) (Model, error) {
	return models.Load(path, opts...)
}

// StateDict returns m's weights by dotted name.
func StateDict(m Model) map[string]*tensor.Tensor {
	return base.StateDict(m)
}
