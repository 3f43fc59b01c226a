package wavenet

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/imu1984/Time-series-prediction/internal/nn"
	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// Decoder generates the forecast one step at a time.
//
// Every step projects the previous output (plus the step's decoder
// covariates) to Filters, then for each level combines it with the history
// state `dilation` steps back through a kernel-2 convolution written as two
// Dense layers, applies the gated unit, and splits skip and residual like
// the encoder. The updated signal is appended to the level's history, so
// later steps see the decoder's own states. The concatenated skips go
// through two Dense layers to a scalar.
//
// The state, current, gate and output layers are shared by all levels and
// all steps.
type Decoder struct {
	filters           int
	dilations         []int
	scheduledSampling float32
	horizon           int
	variant           string
	logger            *slog.Logger

	input   *nn.Dense
	state   *nn.Dense
	current *nn.Dense
	gate    *nn.Dense
	hidden  *nn.Dense
	head    *nn.Dense
}

// NewDecoder declares a decoder for cfg producing horizon steps.
func NewDecoder(cfg Config, horizon int, init *nn.Initializer, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		filters:           cfg.Filters,
		dilations:         cfg.DilationRates,
		scheduledSampling: cfg.ScheduledSampling,
		horizon:           horizon,
		variant:           cfg.DecoderVariant,
		logger:            logger,
		input:             nn.NewDense(cfg.Filters, nn.Tanh, true, init),
		state:             nn.NewDense(2*cfg.Filters, nil, true, init),
		current:           nn.NewDense(2*cfg.Filters, nil, false, init),
		gate:              nn.NewDense(2*cfg.Filters, nil, true, init),
		hidden:            nn.NewDense(cfg.DenseHiddenSize, nn.ReLU, true, init),
		head:              nn.NewDense(1, nil, true, init),
	}
}

// Request holds the per-call decoder inputs.
type Request struct {
	// Init is the value fed to the first step, [B, 1].
	Init *tensor.Tensor
	// Covariates are the decoder covariates [B, H, Fd], or nil.
	Covariates *tensor.Tensor
	// Teacher is the ground truth [B, H], or nil.
	Teacher *tensor.Tensor
	// States are the encoder states, one [B, T, Filters] tensor per level.
	States []*tensor.Tensor
	// Options carries the training flag and random source.
	Options nn.CallOptions
}

// Trace records what happened during decoding.
type Trace struct {
	// StepInputs holds the scalar fed into each step, [B, 1] per step.
	StepInputs []*tensor.Tensor
	// Warnings holds one *DilationError per clamped level.
	Warnings []error
	// History holds each level's states after decoding, [B, T+H, Filters].
	History []*tensor.Tensor
}

// Forward decodes req with the configured variant and returns the
// forecast [B, H, 1].
func (d *Decoder) Forward(req Request) (*tensor.Tensor, *Trace, error) {
	if len(req.States) != len(d.dilations) {
		return nil, nil, fmt.Errorf("decoder: got %d encoder states for %d levels", len(req.States), len(d.dilations))
	}
	if req.Options.Training && req.Options.Rand == nil {
		return nil, nil, errors.New("decoder: training requires a random source")
	}
	if d.variant == VariantLoop {
		return d.loop(req)
	}
	return d.eager(req)
}

// eager unrolls the fixed horizon and stacks the step outputs.
func (d *Decoder) eager(req Request) (*tensor.Tensor, *Trace, error) {
	r := d.start(req, d.horizon)
	outputs := make([]*tensor.Tensor, 0, d.horizon)
	prev := req.Init
	for t := 0; t < d.horizon; t++ {
		y, err := r.step(t, prev)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, y)
		prev = y
	}
	return tensor.Stack(1, outputs...), r.finish(), nil
}

// loop reads the horizon from the covariates when present and writes each
// step into a preallocated output.
func (d *Decoder) loop(req Request) (*tensor.Tensor, *Trace, error) {
	horizon := d.horizon
	if req.Covariates != nil {
		horizon = req.Covariates.Dim(1)
	}
	batch := req.Init.Dim(0)

	r := d.start(req, horizon)
	out := tensor.Zeros(tensor.Shape{batch, horizon, 1})
	data := out.Data()
	prev := req.Init
	for t := 0; t < horizon; t++ {
		y, err := r.step(t, prev)
		if err != nil {
			return nil, nil, err
		}
		for b, v := range y.Data() {
			data[b*horizon+t] = v
		}
		prev = y
	}
	return out, r.finish(), nil
}

// run is the state of one decoding pass.
type run struct {
	d       *Decoder
	req     Request
	hist    *arena
	clamped []bool
	trace   Trace
}

func (d *Decoder) start(req Request, horizon int) *run {
	return &run{
		d:       d,
		req:     req,
		hist:    newArena(req.States, horizon),
		clamped: make([]bool, len(d.dilations)),
	}
}

func (r *run) finish() *Trace {
	for i := range r.d.dilations {
		r.trace.History = append(r.trace.History, r.hist.states(i))
	}
	return &r.trace
}

// feed picks the step input: the previous output, or the teacher's value
// of the previous step under scheduled sampling. Training draws exactly one
// number per step; inference draws none.
func (r *run) feed(t int, prev *tensor.Tensor) *tensor.Tensor {
	opts := r.req.Options
	if !opts.Training {
		return prev
	}
	p := 1 - opts.Rand.Float64() // (0, 1]
	if r.req.Teacher != nil && t > 0 && p > float64(r.d.scheduledSampling) {
		return r.req.Teacher.Narrow(1, t-1, 1)
	}
	return prev
}

// offset clamps a dilation to the stored history of level and reports the
// first clamp per level.
func (r *run) offset(level, dilation int) int {
	n := r.hist.size(level)
	if dilation <= n {
		return dilation
	}
	if !r.clamped[level] {
		r.clamped[level] = true
		r.trace.Warnings = append(r.trace.Warnings, &DilationError{Level: level, Dilation: dilation, Available: n})
		r.d.logger.Warn("dilation exceeds history, clamping", "level", level, "dilation", dilation, "available", n)
	}
	return n
}

func (r *run) step(t int, prev *tensor.Tensor) (*tensor.Tensor, error) {
	d := r.d
	in := r.feed(t, prev)
	r.trace.StepInputs = append(r.trace.StepInputs, in)
	if c := r.req.Covariates; c != nil {
		in = tensor.Concat(-1, in, c.Select(1, t))
	}

	x, err := d.input.Forward(in)
	if err != nil {
		return nil, fmt.Errorf("decoder step %d: %w", t, err)
	}
	skips := make([]*tensor.Tensor, 0, len(d.dilations))
	for i, dilation := range d.dilations {
		s, err := d.state.Forward(r.hist.back(i, r.offset(i, dilation)))
		if err != nil {
			return nil, fmt.Errorf("decoder step %d level %d: %w", t, i, err)
		}
		c, err := d.current.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("decoder step %d level %d: %w", t, i, err)
		}
		out, err := d.gate.Forward(nn.GatedUnit(s.Add(c)))
		if err != nil {
			return nil, fmt.Errorf("decoder step %d level %d: %w", t, i, err)
		}
		parts := out.Split(-1, d.filters, d.filters)
		skips = append(skips, parts[0])
		x = x.Add(parts[1])
		r.hist.push(i, x)
	}

	h, err := d.hidden.Forward(tensor.Concat(-1, skips...).ReLU())
	if err != nil {
		return nil, fmt.Errorf("decoder step %d: %w", t, err)
	}
	return d.head.Forward(h)
}

// Parameters returns the decoder weights.
func (d *Decoder) Parameters() []*nn.Parameter {
	return d.children().Parameters()
}

// LoadStateDict loads the decoder weights.
func (d *Decoder) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return d.children().LoadStateDict(stateDict)
}

func (d *Decoder) children() nn.Children {
	return nn.Children{
		{Name: "dense1", Layer: d.input},
		{Name: "dense2", Layer: d.state},
		{Name: "dense3", Layer: d.current},
		{Name: "dense4", Layer: d.gate},
		{Name: "dense5", Layer: d.hidden},
		{Name: "dense6", Layer: d.head},
	}
}
