// Package wavenet implements the WaveNet forecaster: a dilated causal
// convolution encoder and an autoregressive decoder that extends each
// level's history one step at a time.
//
// Example:
//
//	m, err := wavenet.New(wavenet.DefaultConfig(), 12)
//	if err != nil {
//		return err
//	}
//	y, err := m.Predict(inputs.Array{X: history}) // [batch, 12, 1]
package wavenet

import (
	"fmt"

	"github.com/imu1984/Time-series-prediction/internal/config"
	"github.com/imu1984/Time-series-prediction/internal/envconfig"
	"github.com/imu1984/Time-series-prediction/internal/inputs"
	"github.com/imu1984/Time-series-prediction/internal/models/base"
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Model is the WaveNet forecaster.
type Model struct {
	*base.Base
	cfg     Config
	encoder *Encoder
	decoder *Decoder
}

var _ base.Model = (*Model)(nil)

// New builds a WaveNet model forecasting horizon steps.
//
// Returns ErrInvalidConfig when cfg or horizon is invalid.
func New(cfg Config, horizon int, opts ...base.Option) (*Model, error) {
	cfg = cfg.clone()
	b, err := base.NewBase(cfg, horizon, opts...)
	if err != nil {
		return nil, err
	}
	return &Model{
		Base:    b,
		cfg:     cfg,
		encoder: NewEncoder(cfg, b.Init),
		decoder: NewDecoder(cfg, horizon, b.Init, b.Logger),
	}, nil
}

// Config returns a copy of the model's configuration. Changing it does not
// affect the model.
func (m *Model) Config() config.Config {
	return m.cfg.clone()
}

// Forward runs the encoder over the target history and encoder covariates,
// then decodes the horizon autoregressively.
//
// With TFTS_STRICT_HISTORY set, a dilation longer than the history fails
// with ErrDilationExceedsHistory instead of being clamped.
func (m *Model) Forward(in inputs.Inputs, opts *base.ForwardOptions) (*base.Output, error) {
	if opts == nil {
		opts = &base.ForwardOptions{}
	}
	tr, err := inputs.Prepare(in, m.Horizon())
	if err != nil {
		return nil, err
	}
	teacher, err := base.Teacher(opts.Teacher, tr.Batch(), m.Horizon())
	if err != nil {
		return nil, err
	}
	if envconfig.StrictHistory() {
		if err := m.cfg.CheckHistory(tr.Steps()); err != nil {
			return nil, err
		}
	}

	forecast, states, err := m.encoder.Forward(tr.EncoderInput())
	if err != nil {
		return nil, fmt.Errorf("wavenet: %w", err)
	}
	pred, trace, err := m.decoder.Forward(Request{
		Init:       tr.LastValue(),
		Covariates: tr.DecoderCovariates,
		Teacher:    teacher,
		States:     states,
		Options:    m.CallOptions(opts),
	})
	if err != nil {
		return nil, fmt.Errorf("wavenet: %w", err)
	}

	out := &base.Output{
		Prediction:      pred,
		StepInputs:      trace.StepInputs,
		EncoderForecast: forecast,
		Warnings:        trace.Warnings,
	}
	if opts.OutputHiddenStates {
		out.HiddenStates = trace.History
	}
	return out, nil
}

// Predict runs an inference pass and returns the forecast [B, H, 1].
func (m *Model) Predict(in inputs.Inputs) (*tensor.Tensor, error) {
	out, err := m.Forward(in, nil)
	if err != nil {
		return nil, err
	}
	return out.Prediction, nil
}

// Parameters returns all model weights, named "encoder.*" and "decoder.*".
func (m *Model) Parameters() []*nn.Parameter {
	return m.children().Parameters()
}

// LoadStateDict loads weights saved from a model with the same config.
func (m *Model) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return m.children().LoadStateDict(stateDict)
}

func (m *Model) children() nn.Children {
	return nn.Children{
		{Name: "encoder", Layer: m.encoder},
		{Name: "decoder", Layer: m.decoder},
	}
}
