package nn

import (
	"fmt"
	"sync"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Dense is a fully connected layer applied to the last axis.
//
// Performs the transformation: y = act(x @ W + b)
// where:
//   - x is the input tensor with shape [..., in_features]
//   - W is the kernel with shape [in_features, units]
//   - b is the bias vector with shape [units]
//   - y is the output tensor with shape [..., units]
//
// in_features is bound on the first Forward call. The kernel is drawn with
// Glorot uniform initialization and the bias starts at zero.
//
// Example:
//
//	init := nn.NewInitializer(42)
//	layer := nn.NewDense(64, nn.Tanh, true, init)
//
//	out, err := layer.Forward(x) // [batch, time, 3] -> [batch, time, 64]
//	layer.InFeatures()           // 3
type Dense struct {
	units      int
	useBias    bool
	activation Activation
	init       *Initializer

	mu         sync.Mutex
	bound      bool
	inFeatures int
	kernel     *Parameter // [in_features, units]
	bias       *Parameter // [units]
}

// NewDense declares a Dense layer with the given output width.
//
// Parameters:
//   - units: Number of output features
//   - act: Activation applied to the output, nil for none
//   - useBias: Whether to add a learned bias
//   - init: Initializer that draws the kernel when the layer binds
func NewDense(units int, act Activation, useBias bool, init *Initializer) *Dense {
	if units <= 0 {
		panic(fmt.Sprintf("NewDense: units must be positive, got %d", units))
	}
	return &Dense{
		units:      units,
		useBias:    useBias,
		activation: act,
		init:       init,
	}
}

// bind fixes the input width, creating weights on first use.
func (d *Dense) bind(in int) (kernel, bias *Parameter, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.bound {
		d.allocate(in, d.init.GlorotUniform(in, d.units, tensor.Shape{in, d.units}))
	}
	if d.inFeatures != in {
		return nil, nil, &ShapeError{Layer: "Dense", Want: d.inFeatures, Got: in}
	}
	return d.kernel, d.bias, nil
}

// allocate installs a kernel and zero bias. Callers hold d.mu.
func (d *Dense) allocate(in int, kernel *tensor.Tensor) {
	d.inFeatures = in
	d.kernel = NewParameter("kernel", kernel)
	if d.useBias {
		d.bias = NewParameter("bias", tensor.Zeros(tensor.Shape{d.units}))
	}
	d.bound = true
}

// Forward computes the output of the layer.
//
// Input shape: [..., in_features]
// Output shape: [..., units]
//
// Returns ErrShapeMismatch if in_features differs from the bound width.
func (d *Dense) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() == 0 {
		return nil, fmt.Errorf("Dense.Forward: expected at least 1D input, got scalar")
	}
	kernel, bias, err := d.bind(x.Dim(-1))
	if err != nil {
		return nil, err
	}

	out := x.MatMul(kernel.Tensor())
	if bias != nil {
		out = out.Add(bias.Tensor())
	}
	return d.activation.apply(out), nil
}

// Bound reports whether the input width has been fixed.
func (d *Dense) Bound() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bound
}

// InFeatures returns the bound input width, or 0 before binding.
func (d *Dense) InFeatures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFeatures
}

// Units returns the number of output features.
func (d *Dense) Units() int {
	return d.units
}

// Parameters returns [kernel, bias] once bound, or nothing before.
func (d *Dense) Parameters() []*Parameter {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.bound {
		return nil
	}
	if d.bias != nil {
		return []*Parameter{d.kernel, d.bias}
	}
	return []*Parameter{d.kernel}
}

// LoadStateDict loads kernel and bias, binding the layer if needed.
func (d *Dense) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	src, err := lookup(stateDict, "kernel", 2)
	if err != nil {
		return err
	}
	if src.Dim(1) != d.units {
		return fmt.Errorf("kernel shape mismatch: expected [*, %d], got %v", d.units, src.Shape())
	}

	d.mu.Lock()
	if !d.bound {
		d.allocate(src.Dim(0), src.Clone())
	}
	params := []*Parameter{d.kernel}
	if d.bias != nil {
		params = append(params, d.bias)
	}
	d.mu.Unlock()

	for _, p := range params {
		if err := loadInto(p, stateDict); err != nil {
			return err
		}
	}
	return nil
}
