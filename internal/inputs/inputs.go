// Package inputs normalizes the accepted model input forms into one
// canonical triple: target history, encoder covariates and decoder
// covariates.
//
// Three forms are accepted:
//   - Array: a single [batch, time, features] tensor
//   - Dict: named tensors under "x", "encoder_feature", "decoder_feature"
//   - Tuple: the same three tensors by position
package inputs

import (
	"errors"
	"fmt"
	"slices"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// ErrInvalidInputShape is returned when an input matches none of the
// accepted forms or its parts disagree on batch or time length.
var ErrInvalidInputShape = errors.New("invalid input shape")

// Keys accepted in a Dict.
const (
	KeyX              = "x"
	KeyEncoderFeature = "encoder_feature"
	KeyDecoderFeature = "decoder_feature"
)

// Inputs is one of Array, Dict or Tuple.
type Inputs interface {
	isInputs()
}

// Array is a single history tensor [batch, time, features].
//
// The target is the whole array when it has one feature, otherwise its last
// channel. Arrays carry no covariates.
type Array struct {
	X *tensor.Tensor
}

// Dict holds named tensors. "x" is required, the covariate keys are
// optional.
type Dict map[string]*tensor.Tensor

// Tuple holds x, encoder_feature and decoder_feature by position.
// Absent covariates are nil; any other length is rejected.
type Tuple []*tensor.Tensor

func (Array) isInputs() {}
func (Dict) isInputs()  {}
func (Tuple) isInputs() {}

// Triple is the canonical form every model consumes.
type Triple struct {
	Target            *tensor.Tensor // [B, T, Ft]
	EncoderCovariates *tensor.Tensor // [B, T, Fe] or nil
	DecoderCovariates *tensor.Tensor // [B, H, Fd] or nil
}

// Batch returns the shared batch size.
func (t Triple) Batch() int {
	return t.Target.Dim(0)
}

// Steps returns the history length.
func (t Triple) Steps() int {
	return t.Target.Dim(1)
}

// EncoderInput concatenates the target and the encoder covariates along the
// feature axis.
func (t Triple) EncoderInput() *tensor.Tensor {
	return tensor.Concat(2, t.Target, t.EncoderCovariates)
}

// LastValue returns the first target channel at the last observed step,
// shaped [B, 1].
func (t Triple) LastValue() *tensor.Tensor {
	return t.Target.Narrow(1, t.Steps()-1, 1).Narrow(2, 0, 1).Reshape(t.Batch(), 1)
}

// Prepare validates in and converts it to the canonical triple.
//
// horizon is the forecast length decoder covariates must cover.
func Prepare(in Inputs, horizon int) (Triple, error) {
	var tr Triple
	switch v := in.(type) {
	case Array:
		tr.Target = v.X
		if err := tr.validate(horizon); err != nil {
			return Triple{}, err
		}
		if f := v.X.Dim(2); f > 1 {
			tr.Target = v.X.Narrow(2, f-1, 1)
		}
		return tr, nil

	case *Array:
		if v == nil {
			return Triple{}, fmt.Errorf("%w: nil array", ErrInvalidInputShape)
		}
		return Prepare(*v, horizon)

	case Dict:
		for key := range v {
			if !slices.Contains([]string{KeyX, KeyEncoderFeature, KeyDecoderFeature}, key) {
				return Triple{}, fmt.Errorf("%w: unknown key %q", ErrInvalidInputShape, key)
			}
		}
		tr = Triple{Target: v[KeyX], EncoderCovariates: v[KeyEncoderFeature], DecoderCovariates: v[KeyDecoderFeature]}

	case Tuple:
		if len(v) != 3 {
			return Triple{}, fmt.Errorf("%w: tuple needs 3 elements (x, encoder_feature, decoder_feature), got %d", ErrInvalidInputShape, len(v))
		}
		tr = Triple{Target: v[0], EncoderCovariates: v[1], DecoderCovariates: v[2]}

	case nil:
		return Triple{}, fmt.Errorf("%w: no input", ErrInvalidInputShape)

	default:
		return Triple{}, fmt.Errorf("%w: unsupported input type %T", ErrInvalidInputShape, in)
	}

	if tr.Target == nil {
		return Triple{}, fmt.Errorf("%w: missing %q", ErrInvalidInputShape, KeyX)
	}
	if err := tr.validate(horizon); err != nil {
		return Triple{}, err
	}
	return tr, nil
}

func (t Triple) validate(horizon int) error {
	if err := rank3(KeyX, t.Target); err != nil {
		return err
	}
	if t.Target.Dim(2) == 0 {
		return fmt.Errorf("%w: %s has no feature channels", ErrInvalidInputShape, KeyX)
	}
	batch, steps := t.Batch(), t.Steps()

	if c := t.EncoderCovariates; c != nil {
		if err := rank3(KeyEncoderFeature, c); err != nil {
			return err
		}
		if c.Dim(0) != batch {
			return fmt.Errorf("%w: %s batch %d, want %d", ErrInvalidInputShape, KeyEncoderFeature, c.Dim(0), batch)
		}
		if c.Dim(1) != steps {
			return fmt.Errorf("%w: %s has %d steps, want %d to match %s", ErrInvalidInputShape, KeyEncoderFeature, c.Dim(1), steps, KeyX)
		}
	}
	if c := t.DecoderCovariates; c != nil {
		if err := rank3(KeyDecoderFeature, c); err != nil {
			return err
		}
		if c.Dim(0) != batch {
			return fmt.Errorf("%w: %s batch %d, want %d", ErrInvalidInputShape, KeyDecoderFeature, c.Dim(0), batch)
		}
		if c.Dim(1) != horizon {
			return fmt.Errorf("%w: %s has %d steps, want horizon %d", ErrInvalidInputShape, KeyDecoderFeature, c.Dim(1), horizon)
		}
	}
	return nil
}

func rank3(name string, t *tensor.Tensor) error {
	if t == nil {
		return fmt.Errorf("%w: %s is nil", ErrInvalidInputShape, name)
	}
	if t.Rank() != 3 {
		return fmt.Errorf("%w: %s must be [batch, time, features], got shape %v", ErrInvalidInputShape, name, t.Shape())
	}
	if t.Dim(1) == 0 {
		return fmt.Errorf("%w: %s has no time steps", ErrInvalidInputShape, name)
	}
	return nil
}
