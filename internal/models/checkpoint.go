package models

import (
	"fmt"
	"strconv"

	"github.com/imu1984/Time-series-prediction/internal/config"
	"github.com/imu1984/Time-series-prediction/internal/models/base"
	"github.com/imu1984/Time-series-prediction/internal/serialization"
)

// Metadata keys written into checkpoint files.
const (
	MetaModelType = "model_type"
	MetaHorizon   = "horizon"
	MetaConfig    = "config"
)

// Save writes the model's weights to a SafeTensors file at path, with its
// configuration and horizon in the file metadata so Load can rebuild it.
// Layers bind their input widths on the first Forward, so a model that has
// never run has only part of its weights to save.
func Save(path string, m base.Model, dtype serialization.DType) error {
	cfg, err := config.Marshal(m.Config(), config.FormatJSON)
	if err != nil {
		return err
	}
	meta := map[string]string{
		MetaModelType: m.Config().ModelType(),
		MetaHorizon:   strconv.Itoa(m.Horizon()),
		MetaConfig:    string(cfg),
	}
	return serialization.WriteSafeTensors(path, base.StateDict(m), meta, dtype)
}

// Load rebuilds a model saved by Save. opts apply to the new model; the
// loaded weights replace its initialization.
func Load(path string, opts ...base.Option) (base.Model, error) {
	weights, meta, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, err
	}

	raw, ok := meta[MetaConfig]
	if !ok {
		return nil, fmt.Errorf("%s: missing %q metadata", path, MetaConfig)
	}
	m, err := config.Unmarshal([]byte(raw), config.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg, err := ConfigFromMap(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	horizon, err := strconv.Atoi(meta[MetaHorizon])
	if err != nil {
		return nil, fmt.Errorf("%s: invalid %q metadata %q", path, MetaHorizon, meta[MetaHorizon])
	}

	model, err := AutoModel(cfg, horizon, opts...)
	if err != nil {
		return nil, err
	}
	if err := model.LoadStateDict(weights); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}
