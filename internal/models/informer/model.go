// Package informer implements the Informer forecaster: an attention encoder
// with optional ProbSparse attention and distillation, and a decoder that
// produces every horizon step in one pass from the decoder covariates.
package informer

import (
	"fmt"

	"github.com/imu1984/Time-series-prediction/internal/inputs"
	"github.com/imu1984/Time-series-prediction/internal/layers"
	"github.com/imu1984/Time-series-prediction/internal/models/base"
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Model is the Informer forecaster.
type Model struct {
	*base.Base
	cfg              Config
	encoderEmbedding *layers.DataEmbedding
	decoderEmbedding *layers.DataEmbedding
	encoder          *Encoder
	decoder          *Decoder
	projection       *nn.Dense
}

var _ base.Model = (*Model)(nil)

// New builds an Informer model forecasting horizon steps.
//
// Returns ErrInvalidConfig when cfg or horizon is invalid.
func New(cfg Config, horizon int, opts ...base.Option) (*Model, error) {
	b, err := base.NewBase(cfg, horizon, opts...)
	if err != nil {
		return nil, err
	}
	encoder, err := NewEncoder(cfg, b.Init)
	if err != nil {
		return nil, err
	}
	decoder, err := NewDecoder(cfg, b.Init)
	if err != nil {
		return nil, err
	}
	return &Model{
		Base:             b,
		cfg:              cfg,
		encoderEmbedding: layers.NewDataEmbedding(cfg.HiddenSize, cfg.PositionalEncoding, cfg.HiddenDropoutProb, b.Init),
		decoderEmbedding: layers.NewDataEmbedding(cfg.HiddenSize, cfg.PositionalEncoding, cfg.HiddenDropoutProb, b.Init),
		encoder:          encoder,
		decoder:          decoder,
		projection:       nn.NewDense(1, nil, true, b.Init),
	}, nil
}

// Forward embeds and encodes the target history with its covariates, then
// decodes the horizon under a causal mask.
//
// Without decoder covariates the decoder input is the step index 0..H-1.
// The teacher is validated but unused: decoding is not autoregressive.
func (m *Model) Forward(in inputs.Inputs, opts *base.ForwardOptions) (*base.Output, error) {
	if opts == nil {
		opts = &base.ForwardOptions{}
	}
	horizon := m.Horizon()
	tr, err := inputs.Prepare(in, horizon)
	if err != nil {
		return nil, err
	}
	if _, err := base.Teacher(opts.Teacher, tr.Batch(), horizon); err != nil {
		return nil, err
	}
	call := m.CallOptions(opts)

	x, err := m.encoderEmbedding.Forward(tr.EncoderInput(), call)
	if err != nil {
		return nil, fmt.Errorf("informer: encoder embedding: %w", err)
	}
	memory, encHidden, err := m.encoder.Forward(x, call)
	if err != nil {
		return nil, fmt.Errorf("informer: %w", err)
	}

	decIn := tr.DecoderCovariates
	if decIn == nil {
		decIn = stepIndex(tr.Batch(), horizon)
	}
	y, err := m.decoderEmbedding.Forward(decIn, call)
	if err != nil {
		return nil, fmt.Errorf("informer: decoder embedding: %w", err)
	}
	y, decHidden, err := m.decoder.Forward(y, memory, layers.CausalMask(horizon), call)
	if err != nil {
		return nil, fmt.Errorf("informer: %w", err)
	}
	pred, err := m.projection.Forward(y)
	if err != nil {
		return nil, fmt.Errorf("informer: projection: %w", err)
	}

	out := &base.Output{Prediction: pred}
	if opts.OutputHiddenStates {
		out.HiddenStates = append(encHidden, decHidden...)
	}
	return out, nil
}

// stepIndex returns [B, H, 1] holding 0..H-1 along time.
func stepIndex(batch, horizon int) *tensor.Tensor {
	t := tensor.Zeros(tensor.Shape{batch, horizon, 1})
	data := t.Data()
	for i := range data {
		data[i] = float32(i % horizon)
	}
	return t
}

// Predict runs an inference pass and returns the forecast [B, H, 1].
func (m *Model) Predict(in inputs.Inputs) (*tensor.Tensor, error) {
	out, err := m.Forward(in, nil)
	if err != nil {
		return nil, err
	}
	return out.Prediction, nil
}

// Parameters returns all model weights.
func (m *Model) Parameters() []*nn.Parameter {
	return m.children().Parameters()
}

// LoadStateDict loads weights saved from a model with the same config.
func (m *Model) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return m.children().LoadStateDict(stateDict)
}

func (m *Model) children() nn.Children {
	return nn.Children{
		{Name: "encoder_embedding", Layer: m.encoderEmbedding},
		{Name: "decoder_embedding", Layer: m.decoderEmbedding},
		{Name: "encoder", Layer: m.encoder},
		{Name: "decoder", Layer: m.decoder},
		{Name: "projection", Layer: m.projection},
	}
}
