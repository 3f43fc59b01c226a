package nn

import (
	"fmt"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Child is a named sub-layer of a composite layer.
type Child struct {
	Name  string
	Layer Layer
}

// Children lists the sub-layers of a composite in a stable order.
//
// Composite layers build a Children value and delegate Parameters and
// LoadStateDict to it, so state-dict names become dotted paths such as
// "decoder.dense1.kernel".
type Children []Child

// Parameters collects every child's parameters under its name.
func (c Children) Parameters() []*Parameter {
	var params []*Parameter
	for _, child := range c {
		params = append(params, Prefix(child.Name, child.Layer.Parameters())...)
	}
	return params
}

// LoadStateDict hands every child the entries under its name.
func (c Children) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	for _, child := range c {
		if err := child.Layer.LoadStateDict(SubDict(stateDict, child.Name)); err != nil {
			return fmt.Errorf("%s: %w", child.Name, err)
		}
	}
	return nil
}

// Indexed names a slice of layers "<prefix>.0", "<prefix>.1", ...
func Indexed[L Layer](prefix string, layers []L) Children {
	c := make(Children, len(layers))
	for i, l := range layers {
		c[i] = Child{Name: fmt.Sprintf("%s.%d", prefix, i), Layer: l}
	}
	return c
}
