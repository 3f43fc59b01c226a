package informer

import (
	"github.com/imu1984/Time-series-prediction/internal/config"
	"github.com/imu1984/Time-series-prediction/internal/layers"
	"github.com/imu1984/Time-series-prediction/internal/nn"
)

// ModelType is the registry tag of the Informer architecture.
const ModelType = "informer"

// Config holds the Informer hyperparameters.
type Config struct {
	HiddenSize                int     `json:"hidden_size"`
	NumLayers                 int     `json:"num_layers"`
	NumDecoderLayers          int     `json:"num_decoder_layers"`
	NumAttentionHeads         int     `json:"num_attention_heads"`
	AttentionProbsDropoutProb float32 `json:"attention_probs_dropout_prob"`
	FFNIntermediateSize       int     `json:"ffn_intermediate_size"`
	HiddenDropoutProb         float32 `json:"hidden_dropout_prob"`
	// ProbAttention switches encoder self-attention and decoder masked
	// self-attention to ProbSparse attention. Cross-attention stays full.
	ProbAttention bool `json:"prob_attention"`
	// ProbFactor is the sampling factor c of ProbSparse attention.
	ProbFactor int `json:"prob_factor"`
	// DistilConv inserts a halving convolution between encoder layers.
	DistilConv bool `json:"distil_conv"`
	// FFNActivation is applied inside the encoder feed-forward block. The
	// default "linear" applies none.
	FFNActivation string `json:"ffn_activation"`
	// PositionalEncoding adds the sinusoidal table to both embeddings.
	PositionalEncoding bool `json:"positional_encoding"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		HiddenSize:          64,
		NumLayers:           1,
		NumDecoderLayers:    1,
		NumAttentionHeads:   1,
		FFNIntermediateSize: 128,
		ProbFactor:          layers.DefaultProbFactor,
		FFNActivation:       "linear",
		PositionalEncoding:  true,
	}
}

// ModelType implements config.Config.
func (c Config) ModelType() string {
	return ModelType
}

// Validate implements config.Config.
func (c Config) Validate() error {
	for _, f := range []struct {
		name  string
		value int
	}{
		{"hidden_size", c.HiddenSize},
		{"num_layers", c.NumLayers},
		{"num_decoder_layers", c.NumDecoderLayers},
		{"num_attention_heads", c.NumAttentionHeads},
		{"ffn_intermediate_size", c.FFNIntermediateSize},
		{"prob_factor", c.ProbFactor},
	} {
		if err := config.Positive(f.name, f.value); err != nil {
			return err
		}
	}
	if err := config.Divisible("hidden_size", c.HiddenSize, c.NumAttentionHeads, "num_attention_heads"); err != nil {
		return err
	}
	if err := config.DropoutRate("attention_probs_dropout_prob", c.AttentionProbsDropoutProb); err != nil {
		return err
	}
	if err := config.DropoutRate("hidden_dropout_prob", c.HiddenDropoutProb); err != nil {
		return err
	}
	if _, err := nn.ActivationByName(c.FFNActivation); err != nil {
		return &config.FieldError{Field: "ffn_activation", Value: c.FFNActivation, Reason: err.Error()}
	}
	return nil
}

// selfAttention builds the self-attention variant selected by the config.
func (c Config) selfAttention(init *nn.Initializer) (layers.AttentionLayer, error) {
	if c.ProbAttention {
		return layers.NewProbAttention(c.HiddenSize, c.NumAttentionHeads, c.ProbFactor, c.AttentionProbsDropoutProb, init)
	}
	return layers.NewAttention(c.HiddenSize, c.NumAttentionHeads, c.AttentionProbsDropoutProb, init)
}
