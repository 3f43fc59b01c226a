package informer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imu1984/Time-series-prediction/internal/config"
	"github.com/imu1984/Time-series-prediction/internal/inputs"
	"github.com/imu1984/Time-series-prediction/internal/layers"
	"github.com/imu1984/Time-series-prediction/internal/models/base"
	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.HiddenSize = 16
	cfg.NumAttentionHeads = 2
	cfg.FFNIntermediateSize = 32
	return cfg
}

func rand3(seed uint64, b, t, f int) *tensor.Tensor {
	return tensor.RandUniform(tensor.Shape{b, t, f}, 0, 1, tensor.NewRand(seed))
}

func covariateInputs(batch, steps, horizon int) inputs.Dict {
	return inputs.Dict{
		inputs.KeyX:              rand3(1, batch, steps, 1),
		inputs.KeyEncoderFeature: rand3(2, batch, steps, 2),
		inputs.KeyDecoderFeature: rand3(3, batch, horizon, 3),
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero hidden", func(c *Config) { c.HiddenSize = 0 }},
		{"negative layers", func(c *Config) { c.NumLayers = -1 }},
		{"zero decoder layers", func(c *Config) { c.NumDecoderLayers = 0 }},
		{"heads do not divide hidden", func(c *Config) { c.NumAttentionHeads = 3 }},
		{"zero ffn", func(c *Config) { c.FFNIntermediateSize = 0 }},
		{"zero factor", func(c *Config) { c.ProbFactor = 0 }},
		{"dropout of one", func(c *Config) { c.HiddenDropoutProb = 1 }},
		{"negative attention dropout", func(c *Config) { c.AttentionProbsDropoutProb = -0.1 }},
		{"unknown activation", func(c *Config) { c.FFNActivation = "swish" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
			_, err := New(cfg, 4)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestConfig_MapRoundTrip(t *testing.T) {
	m, err := config.ToMap(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"model_type":                   ModelType,
		"hidden_size":                  64,
		"num_layers":                   1,
		"num_decoder_layers":           1,
		"num_attention_heads":          1,
		"attention_probs_dropout_prob": 0,
		"ffn_intermediate_size":        128,
		"hidden_dropout_prob":          0,
		"prob_attention":               false,
		"prob_factor":                  5,
		"distil_conv":                  false,
		"ffn_activation":               "linear",
		"positional_encoding":          true,
	}, m)

	cfg := DefaultConfig()
	require.NoError(t, config.FromMap(map[string]any{"num_layers": 3, "distil_conv": true}, &cfg))
	assert.Equal(t, 3, cfg.NumLayers)
	assert.True(t, cfg.DistilConv)
	assert.Equal(t, 64, cfg.HiddenSize)
}

func TestModel_EndToEnd(t *testing.T) {
	variants := map[string]func(*Config){
		"default": func(*Config) {},
		"prob attention": func(c *Config) {
			c.ProbAttention = true
		},
		"distil": func(c *Config) {
			c.NumLayers = 3
			c.DistilConv = true
		},
		"prob distil multi head": func(c *Config) {
			c.ProbAttention = true
			c.DistilConv = true
			c.NumLayers = 2
			c.NumDecoderLayers = 2
			c.NumAttentionHeads = 4
		},
	}
	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			m, err := New(cfg, 9, base.WithSeed(42))
			require.NoError(t, err)

			y, err := m.Predict(covariateInputs(1, 32, 9))
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{1, 9, 1}, y.Shape())
			assert.True(t, y.AllFinite())
		})
	}
}

func TestModel_DistilHalvesEncoderSteps(t *testing.T) {
	cfg := smallConfig()
	cfg.NumLayers = 3
	cfg.NumDecoderLayers = 2
	cfg.DistilConv = true
	m, err := New(cfg, 5)
	require.NoError(t, err)

	out, err := m.Forward(covariateInputs(2, 32, 5), &base.ForwardOptions{OutputHiddenStates: true})
	require.NoError(t, err)
	require.Len(t, out.HiddenStates, 5)
	for i, want := range []tensor.Shape{
		{2, 32, 16}, {2, 16, 16}, {2, 8, 16}, // encoder layers
		{2, 5, 16}, {2, 5, 16}, // decoder layers
	} {
		assert.Equal(t, want, out.HiddenStates[i].Shape(), "hidden state %d", i)
	}
	assert.Len(t, m.encoder.distils, 2)
}

func TestModel_WithoutDecoderCovariates(t *testing.T) {
	m, err := New(smallConfig(), 6)
	require.NoError(t, err)

	y, err := m.Predict(inputs.Array{X: rand3(1, 3, 20, 4)})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 6, 1}, y.Shape())
	assert.True(t, y.AllFinite())
	assert.Equal(t, 1, m.decoderEmbedding.InFeatures())

	idx := stepIndex(2, 3)
	assert.Equal(t, []float32{0, 1, 2, 0, 1, 2}, idx.Data())
}

func TestEncoderLayer_FFNActivation(t *testing.T) {
	// f(a) + f(b) == f(a+b) + f(0) holds only for an affine block.
	affine := func(t *testing.T, activation string) bool {
		cfg := smallConfig()
		cfg.FFNActivation = activation
		l, err := NewEncoderLayer(cfg, nn.NewInitializer(4))
		require.NoError(t, err)

		a, b := rand3(5, 1, 6, cfg.HiddenSize), rand3(6, 1, 6, cfg.HiddenSize)
		forward := func(x *tensor.Tensor) *tensor.Tensor {
			y, err := l.ffn.Forward(x, nn.CallOptions{})
			require.NoError(t, err)
			return y
		}
		lhs := forward(a).Add(forward(b))
		rhs := forward(a.Add(b)).Add(forward(tensor.Zeros(a.Shape())))
		return tensor.AllClose(lhs, rhs, 1e-4, 1e-5)
	}

	assert.Equal(t, "linear", DefaultConfig().FFNActivation)
	assert.True(t, affine(t, DefaultConfig().FFNActivation), "default encoder FFN has no activation")
	assert.False(t, affine(t, "relu"))
}

func TestModel_DecoderIsCausal(t *testing.T) {
	const horizon = 8
	m, err := New(smallConfig(), horizon, base.WithSeed(3))
	require.NoError(t, err)

	in := covariateInputs(1, 16, horizon)
	want, err := m.Predict(in)
	require.NoError(t, err)

	for cut := 0; cut < horizon-1; cut++ {
		dec := in[inputs.KeyDecoderFeature].Clone()
		for j := cut + 1; j < horizon; j++ {
			dec.Set(dec.At(0, j, 0)+10, 0, j, 0)
		}
		perturbed := inputs.Dict{
			inputs.KeyX:              in[inputs.KeyX],
			inputs.KeyEncoderFeature: in[inputs.KeyEncoderFeature],
			inputs.KeyDecoderFeature: dec,
		}
		got, err := m.Predict(perturbed)
		require.NoError(t, err)
		assert.True(t, want.Narrow(1, 0, cut+1).Equal(got.Narrow(1, 0, cut+1)), "steps <= %d changed", cut)
		assert.False(t, want.Equal(got))
	}
}

func TestModel_SparseDecoderIsCausal(t *testing.T) {
	const horizon, cut = 40, 20
	cfg := smallConfig()
	cfg.ProbAttention = true
	require.Less(t, layers.SampleCount(cfg.ProbFactor, horizon), horizon)
	m, err := New(cfg, horizon, base.WithSeed(5))
	require.NoError(t, err)

	in := covariateInputs(1, 48, horizon)
	want, err := m.Predict(in)
	require.NoError(t, err)

	dec := in[inputs.KeyDecoderFeature].Clone()
	for j := cut; j < horizon; j++ {
		for f := range dec.Dim(2) {
			dec.Set(dec.At(0, j, f)+100, 0, j, f)
		}
	}
	got, err := m.Predict(inputs.Dict{
		inputs.KeyX:              in[inputs.KeyX],
		inputs.KeyEncoderFeature: in[inputs.KeyEncoderFeature],
		inputs.KeyDecoderFeature: dec,
	})
	require.NoError(t, err)
	assert.True(t, tensor.AllClose(want.Narrow(1, 0, cut), got.Narrow(1, 0, cut), 1e-5, 1e-6))
	assert.False(t, want.Equal(got))
}

func TestModel_ProbAttentionMatchesFullWhenCovering(t *testing.T) {
	full := smallConfig()
	full.NumLayers = 2
	prob := full
	prob.ProbAttention = true
	prob.ProbFactor = 100

	fm, err := New(full, 7, base.WithSeed(1))
	require.NoError(t, err)
	pm, err := New(prob, 7, base.WithSeed(2))
	require.NoError(t, err)

	in := covariateInputs(2, 24, 7)
	want, err := fm.Predict(in)
	require.NoError(t, err)
	require.NoError(t, pm.LoadStateDict(base.StateDict(fm)))
	got, err := pm.Predict(in)
	require.NoError(t, err)
	assert.True(t, tensor.AllClose(want, got, 1e-3, 1e-4))
}

func TestModel_SparseInferenceIsRepeatable(t *testing.T) {
	cfg := smallConfig()
	cfg.ProbAttention = true
	m, err := New(cfg, 4, base.WithSeed(8))
	require.NoError(t, err)

	in := covariateInputs(2, 64, 4)
	a, err := m.Predict(in)
	require.NoError(t, err)
	b, err := m.Predict(in)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestModel_TrainingDropout(t *testing.T) {
	cfg := smallConfig()
	cfg.HiddenDropoutProb = 0.3
	cfg.AttentionProbsDropoutProb = 0.3
	m, err := New(cfg, 4)
	require.NoError(t, err)

	in := covariateInputs(2, 12, 4)
	infer, err := m.Predict(in)
	require.NoError(t, err)
	again, err := m.Predict(in)
	require.NoError(t, err)
	assert.True(t, infer.Equal(again))

	train, err := m.Forward(in, &base.ForwardOptions{Training: true, Rand: tensor.NewRand(1)})
	require.NoError(t, err)
	assert.False(t, infer.Equal(train.Prediction))
	assert.True(t, train.Prediction.AllFinite())
}

func TestModel_StateDict(t *testing.T) {
	cfg := smallConfig()
	cfg.NumLayers = 2
	cfg.DistilConv = true
	m, err := New(cfg, 3, base.WithSeed(5))
	require.NoError(t, err)

	in := covariateInputs(2, 10, 3)
	want, err := m.Predict(in)
	require.NoError(t, err)

	sd := base.StateDict(m)
	for _, name := range []string{
		"encoder_embedding.token.kernel",
		"encoder.layers.0.attention.query.kernel",
		"encoder.layers.1.ffn.conv2.bias",
		"encoder.distil.0.conv.kernel",
		"encoder.distil.0.norm.moving_variance",
		"encoder.norm.gamma",
		"decoder.layers.0.cross_attention.value.kernel",
		"decoder.norm.beta",
		"projection.kernel",
	} {
		assert.Contains(t, sd, name)
	}

	restored, err := New(cfg, 3, base.WithSeed(6))
	require.NoError(t, err)
	require.NoError(t, restored.LoadStateDict(sd))
	got, err := restored.Predict(in)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestModel_Errors(t *testing.T) {
	m, err := New(smallConfig(), 4)
	require.NoError(t, err)
	_, err = m.Predict(covariateInputs(1, 10, 4))
	require.NoError(t, err)

	in := covariateInputs(1, 10, 4)
	in[inputs.KeyDecoderFeature] = rand3(3, 1, 4, 5)
	_, err = m.Predict(in)
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)

	_, err = m.Predict(inputs.Tuple{rand3(1, 1, 10, 1)})
	assert.ErrorIs(t, err, inputs.ErrInvalidInputShape)

	_, err = m.Forward(covariateInputs(1, 10, 4), &base.ForwardOptions{Teacher: rand3(1, 2, 4, 1)})
	assert.ErrorIs(t, err, inputs.ErrInvalidInputShape)
}
