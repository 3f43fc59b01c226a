package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Parameter is a named weight tensor owned by a layer.
//
// Names are local to the owning layer ("kernel", "bias"); containers add
// dotted prefixes with Prefix when they collect their children.
//
// Example:
//
//	kernel := nn.NewParameter("kernel", init.GlorotUniform(in, out, tensor.Shape{in, out}))
//	w := kernel.Tensor()
type Parameter struct {
	name   string         // Parameter name (e.g., "kernel", "encoder.dense.bias")
	tensor *tensor.Tensor // The parameter tensor
}

// NewParameter creates a parameter around an initialized tensor.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Prefix returns views of params renamed to prefix + "." + name.
// The tensors are shared, not copied.
func Prefix(prefix string, params []*Parameter) []*Parameter {
	out := make([]*Parameter, len(params))
	for i, p := range params {
		out[i] = &Parameter{name: prefix + "." + p.name, tensor: p.tensor}
	}
	return out
}

// StateDict flattens parameters into a name → tensor map.
func StateDict(params []*Parameter) map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor, len(params))
	for _, p := range params {
		sd[p.name] = p.tensor
	}
	return sd
}

// SubDict returns the entries of stateDict under prefix with the prefix removed.
func SubDict(stateDict map[string]*tensor.Tensor, prefix string) map[string]*tensor.Tensor {
	sub := make(map[string]*tensor.Tensor)
	p := prefix + "."
	for name, t := range stateDict {
		if rest, ok := strings.CutPrefix(name, p); ok {
			sub[rest] = t
		}
	}
	return sub
}

// Names returns the sorted parameter names.
func Names(params []*Parameter) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.name
	}
	sort.Strings(names)
	return names
}

// CountParameters returns the total number of scalar weights.
func CountParameters(params []*Parameter) int {
	n := 0
	for _, p := range params {
		n += p.tensor.NumElements()
	}
	return n
}

// loadInto copies a stored tensor into an existing parameter after checking
// its shape.
func loadInto(p *Parameter, stateDict map[string]*tensor.Tensor) error {
	src, ok := stateDict[p.name]
	if !ok {
		return fmt.Errorf("missing %s in state dict", p.name)
	}
	if !src.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", p.name, p.tensor.Shape(), src.Shape())
	}
	copy(p.tensor.Data(), src.Data())
	return nil
}

// lookup fetches a stored tensor and checks its rank.
func lookup(stateDict map[string]*tensor.Tensor, name string, rank int) (*tensor.Tensor, error) {
	src, ok := stateDict[name]
	if !ok {
		return nil, fmt.Errorf("missing %s in state dict", name)
	}
	if src.Rank() != rank {
		return nil, fmt.Errorf("%s: expected rank %d, got shape %v", name, rank, src.Shape())
	}
	return src, nil
}
