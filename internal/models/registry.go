// Package models maps architecture names to their configurations and
// constructors.
//
// Example:
//
//	cfg, err := models.AutoConfig("wavenet")
//	m, err := models.AutoModel(cfg, 12, base.WithSeed(1))
package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/imu1984/Time-series-prediction/internal/config"
	"github.com/imu1984/Time-series-prediction/internal/models/base"
	"github.com/imu1984/Time-series-prediction/internal/models/informer"
	"github.com/imu1984/Time-series-prediction/internal/models/wavenet"
)

// ErrUnknownModel is returned for a name or config type with no registered
// architecture.
var ErrUnknownModel = errors.New("unknown model")

type entry struct {
	config func() config.Config
	build  func(cfg config.Config, horizon int, opts ...base.Option) (base.Model, error)
}

var registry = map[string]entry{
	wavenet.ModelType: {
		config: func() config.Config {
			cfg := wavenet.DefaultConfig()
			return &cfg
		},
		build: func(cfg config.Config, horizon int, opts ...base.Option) (base.Model, error) {
			switch c := cfg.(type) {
			case wavenet.Config:
				return wavenet.New(c, horizon, opts...)
			case *wavenet.Config:
				return wavenet.New(*c, horizon, opts...)
			}
			return nil, fmt.Errorf("%w: %T is not a wavenet config", ErrUnknownModel, cfg)
		},
	},
	informer.ModelType: {
		config: func() config.Config {
			cfg := informer.DefaultConfig()
			return &cfg
		},
		build: func(cfg config.Config, horizon int, opts ...base.Option) (base.Model, error) {
			switch c := cfg.(type) {
			case informer.Config:
				return informer.New(c, horizon, opts...)
			case *informer.Config:
				return informer.New(*c, horizon, opts...)
			}
			return nil, fmt.Errorf("%w: %T is not an informer config", ErrUnknownModel, cfg)
		},
	},
}

// Names returns the registered architecture names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func lookup(name string) (entry, error) {
	e, ok := registry[strings.ToLower(name)]
	if !ok {
		return entry{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownModel, name, strings.Join(Names(), ", "))
	}
	return e, nil
}

// AutoConfig returns a pointer to the default configuration of the named
// architecture, ready to be adjusted or filled by config.FromMap.
func AutoConfig(name string) (config.Config, error) {
	e, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return e.config(), nil
}

// AutoModel builds the architecture identified by cfg.ModelType.
func AutoModel(cfg config.Config, horizon int, opts ...base.Option) (base.Model, error) {
	e, err := lookup(cfg.ModelType())
	if err != nil {
		return nil, err
	}
	return e.build(cfg, horizon, opts...)
}

// New is AutoModel for a name and its default configuration.
func New(name string, horizon int, opts ...base.Option) (base.Model, error) {
	cfg, err := AutoConfig(name)
	if err != nil {
		return nil, err
	}
	return AutoModel(cfg, horizon, opts...)
}

// ConfigFromMap builds the configuration tagged by the "model_type" entry of
// m. Missing fields keep their defaults.
func ConfigFromMap(m map[string]any) (config.Config, error) {
	tag, ok := m[config.ModelTypeKey].(string)
	if !ok {
		return nil, &config.FieldError{Field: config.ModelTypeKey, Value: m[config.ModelTypeKey], Reason: "must name an architecture"}
	}
	cfg, err := AutoConfig(tag)
	if err != nil {
		return nil, err
	}
	if err := config.FromMap(m, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads a JSON or YAML configuration file of any registered
// architecture.
func LoadConfig(path string) (config.Config, error) {
	m, err := config.ReadMap(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ConfigFromMap(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
