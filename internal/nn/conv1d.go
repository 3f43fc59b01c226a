package nn

import (
	"fmt"
	"sync"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Padding selects how Conv1D and MaxPool1D pad the time axis.
type Padding string

// Supported paddings.
const (
	PaddingValid  Padding = "valid"  // No padding, output is shorter
	PaddingSame   Padding = "same"   // Output length equals input length
	PaddingCausal Padding = "causal" // Left padding only, output t sees inputs <= t
)

// Conv1D implements a dilated 1-D convolution over [batch, time, channels].
//
// The kernel has shape [kernel_size, in_channels, filters] and in_channels is
// bound on the first Forward call. With PaddingCausal, output step t depends
// only on input steps t, t-d, t-2d, ... where d is the dilation.
//
// The convolution is computed as an im2col gather followed by one matrix
// product: each output step collects kernel_size dilated input rows into a
// [kernel_size*in_channels] patch.
//
// Example:
//
//	conv := nn.NewConv1D(256, 2, 4, nn.PaddingCausal, true, init)
//	y, err := conv.Forward(x) // [B, T, C] -> [B, T, 256]
type Conv1D struct {
	filters    int
	kernelSize int
	dilation   int
	padding    Padding
	useBias    bool
	init       *Initializer

	mu         sync.Mutex
	bound      bool
	inChannels int
	kernel     *Parameter // [kernel_size, in_channels, filters]
	bias       *Parameter // [filters]
}

// NewConv1D declares a Conv1D layer.
//
// Parameters:
//   - filters: Number of output channels
//   - kernelSize: Number of taps
//   - dilation: Spacing between taps (1 = dense)
//   - padding: PaddingValid, PaddingSame or PaddingCausal
//   - useBias: Whether to add a learned bias
//   - init: Initializer that draws the kernel when the layer binds
func NewConv1D(filters, kernelSize, dilation int, padding Padding, useBias bool, init *Initializer) *Conv1D {
	if filters <= 0 || kernelSize <= 0 || dilation <= 0 {
		panic(fmt.Sprintf("NewConv1D: filters=%d kernel=%d dilation=%d must be positive", filters, kernelSize, dilation))
	}
	switch padding {
	case PaddingValid, PaddingSame, PaddingCausal:
	default:
		panic(fmt.Sprintf("NewConv1D: unknown padding %q", padding))
	}
	return &Conv1D{
		filters:    filters,
		kernelSize: kernelSize,
		dilation:   dilation,
		padding:    padding,
		useBias:    useBias,
		init:       init,
	}
}

func (c *Conv1D) bind(in int) (kernel, bias *Parameter, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bound {
		fanIn := c.kernelSize * in
		fanOut := c.kernelSize * c.filters
		c.allocate(in, c.init.GlorotUniform(fanIn, fanOut, tensor.Shape{c.kernelSize, in, c.filters}))
	}
	if c.inChannels != in {
		return nil, nil, &ShapeError{Layer: "Conv1D", Want: c.inChannels, Got: in}
	}
	return c.kernel, c.bias, nil
}

func (c *Conv1D) allocate(in int, kernel *tensor.Tensor) {
	c.inChannels = in
	c.kernel = NewParameter("kernel", kernel)
	if c.useBias {
		c.bias = NewParameter("bias", tensor.Zeros(tensor.Shape{c.filters}))
	}
	c.bound = true
}

// padAmounts returns the zero padding added before and after the time axis.
func (c *Conv1D) padAmounts() (left, right int) {
	span := (c.kernelSize - 1) * c.dilation
	switch c.padding {
	case PaddingCausal:
		return span, 0
	case PaddingSame:
		return span / 2, span - span/2
	default:
		return 0, 0
	}
}

// Forward applies the convolution.
//
// Input shape: [batch, time, in_channels]
// Output shape: [batch, time_out, filters], where time_out equals time for
// causal and same padding.
func (c *Conv1D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 3 {
		return nil, fmt.Errorf("Conv1D.Forward: expected 3D input [batch, time, channels], got shape %v", x.Shape())
	}
	batch, steps, in := x.Dim(0), x.Dim(1), x.Dim(2)
	kernel, bias, err := c.bind(in)
	if err != nil {
		return nil, err
	}

	left, right := c.padAmounts()
	span := (c.kernelSize - 1) * c.dilation
	outSteps := steps + left + right - span
	if outSteps <= 0 {
		return nil, fmt.Errorf("Conv1D.Forward: input of %d steps is shorter than the receptive field %d", steps, span+1)
	}

	patchWidth := c.kernelSize * in
	patches := tensor.Zeros(tensor.Shape{batch, outSteps, patchWidth})
	dst := patches.Data()
	src := x.Data()
	for b := 0; b < batch; b++ {
		for t := 0; t < outSteps; t++ {
			row := dst[(b*outSteps+t)*patchWidth:]
			for k := 0; k < c.kernelSize; k++ {
				s := t + k*c.dilation - left
				if s < 0 || s >= steps {
					continue // zero padding
				}
				copy(row[k*in:(k+1)*in], src[(b*steps+s)*in:(b*steps+s+1)*in])
			}
		}
	}

	out := patches.MatMul(kernel.Tensor().Reshape(patchWidth, c.filters))
	if bias != nil {
		out = out.Add(bias.Tensor())
	}
	return out, nil
}

// Bound reports whether the input channel count has been fixed.
func (c *Conv1D) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

// InChannels returns the bound input channel count, or 0 before binding.
func (c *Conv1D) InChannels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inChannels
}

// Parameters returns [kernel, bias] once bound.
func (c *Conv1D) Parameters() []*Parameter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.bound {
		return nil
	}
	if c.bias != nil {
		return []*Parameter{c.kernel, c.bias}
	}
	return []*Parameter{c.kernel}
}

// LoadStateDict loads kernel and bias, binding the layer if needed.
func (c *Conv1D) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	src, err := lookup(stateDict, "kernel", 3)
	if err != nil {
		return err
	}
	if src.Dim(0) != c.kernelSize || src.Dim(2) != c.filters {
		return fmt.Errorf("kernel shape mismatch: expected [%d, *, %d], got %v", c.kernelSize, c.filters, src.Shape())
	}

	c.mu.Lock()
	if !c.bound {
		c.allocate(src.Dim(1), src.Clone())
	}
	params := []*Parameter{c.kernel}
	if c.bias != nil {
		params = append(params, c.bias)
	}
	c.mu.Unlock()

	for _, p := range params {
		if err := loadInto(p, stateDict); err != nil {
			return err
		}
	}
	return nil
}
