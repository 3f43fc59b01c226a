package serialization

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTensorName(t *testing.T) {
	valid := []string{"kernel", "encoder.conv_time.0.kernel", "decoder.layers.1.cross_attention.query.bias"}
	for _, name := range valid {
		assert.NoError(t, ValidateTensorName(name), name)
	}

	invalid := []string{"", "a..b", "../w", "/abs", `win\path`, "nul\x00byte", strings.Repeat("a", MaxTensorNameLen+1)}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateTensorName(name), ErrInvalidTensorName, "%q", name)
	}
}

func TestValidateTensorOffsets(t *testing.T) {
	ok := []TensorMeta{
		{Name: "b", Offset: 8, Size: 8},
		{Name: "a", Offset: 0, Size: 8},
		{Name: "empty", Offset: 16, Size: 0},
	}
	assert.NoError(t, ValidateTensorOffsets(ok, 16))

	err := ValidateTensorOffsets([]TensorMeta{{Name: "a", Offset: -4, Size: 4}}, 16)
	assert.ErrorIs(t, err, ErrNegativeOffset)

	err = ValidateTensorOffsets([]TensorMeta{{Name: "a", Offset: 8, Size: 16}}, 16)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	err = ValidateTensorOffsets([]TensorMeta{{Name: "a", Offset: 0, Size: 8}, {Name: "b", Offset: 4, Size: 4}}, 16)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, ErrOffsetOverlap)
	assert.Equal(t, "a", vErr.Tensor)
	assert.Equal(t, "b", vErr.Tensor2)
	assert.Contains(t, err.Error(), `tensors "a" and "b"`)
}

func TestValidateChecksum(t *testing.T) {
	data := []byte("weights")
	assert.NoError(t, ValidateChecksum(data, ComputeChecksum(data)))
	assert.ErrorIs(t, ValidateChecksum(data, ComputeChecksum([]byte("other"))), ErrChecksumMismatch)
}
