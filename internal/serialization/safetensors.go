package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/x448/float16"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// DType is a SafeTensors element type.
type DType string

// Supported dtypes.
const (
	F32 DType = "F32"
	F16 DType = "F16"
)

const metadataKey = "__metadata__"

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case F32:
		return 4
	case F16:
		return 2
	default:
		return 0
	}
}

// SafeTensorHeader describes one tensor in the JSON header.
type SafeTensorHeader struct {
	DType       DType    `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WriteSafeTensors writes stateDict to path, storing elements as dtype.
// metadata may be nil; the data checksum is always added to it.
func WriteSafeTensors(path string, stateDict map[string]*tensor.Tensor, metadata map[string]string, dtype DType) error {
	data, err := EncodeSafeTensors(stateDict, metadata, dtype)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// EncodeSafeTensors returns the SafeTensors encoding of stateDict.
func EncodeSafeTensors(stateDict map[string]*tensor.Tensor, metadata map[string]string, dtype DType) ([]byte, error) {
	if dtype.Size() == 0 {
		return nil, &ValidationError{Kind: ErrUnsupportedDType, Details: string(dtype)}
	}

	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var body bytes.Buffer
	header := make(map[string]any, len(names)+1)
	var offset int64
	for _, name := range names {
		t := stateDict[name]
		shape := make([]int64, t.Rank())
		for i, d := range t.Shape() {
			shape[i] = int64(d)
		}
		encodeValues(&body, t.Data(), dtype)
		size := int64(t.NumElements() * dtype.Size())
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[ChecksumKey] = ComputeChecksum(body.Bytes())
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	// Pad with spaces so the data section starts 8-byte aligned.
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	out := make([]byte, 8, 8+len(headerJSON)+body.Len())
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, body.Bytes()...)
	return out, nil
}

func encodeValues(w *bytes.Buffer, values []float32, dtype DType) {
	buf := make([]byte, len(values)*dtype.Size())
	switch dtype {
	case F32:
		for i, v := range values {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}
	case F16:
		for i, v := range values {
			binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(v).Bits())
		}
	}
	w.Write(buf)
}

// ReadSafeTensors loads a state dict and its metadata from path.
// F16 tensors are widened to float32.
func ReadSafeTensors(path string) (map[string]*tensor.Tensor, map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return DecodeSafeTensors(data)
}

// DecodeSafeTensors parses a SafeTensors buffer.
func DecodeSafeTensors(data []byte) (map[string]*tensor.Tensor, map[string]string, error) {
	f, err := parse(data)
	if err != nil {
		return nil, nil, err
	}

	out := make(map[string]*tensor.Tensor, len(f.headers))
	for name, h := range f.headers {
		shape := make(tensor.Shape, len(h.Shape))
		for i, d := range h.Shape {
			shape[i] = int(d)
		}
		values := decodeValues(f.body[h.DataOffsets[0]:h.DataOffsets[1]], h.DType)
		t, err := tensor.New(shape, values)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		out[name] = t
	}
	return out, f.metadata, nil
}

// file is a parsed and validated SafeTensors buffer.
type file struct {
	headers  map[string]SafeTensorHeader
	metadata map[string]string
	body     []byte
}

func parse(data []byte) (*file, error) {
	if len(data) < 8 {
		return nil, &ValidationError{Kind: ErrOutOfBounds, Details: fmt.Sprintf("file is %d bytes, header length needs 8", len(data))}
	}
	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > MaxHeaderSize {
		return nil, &ValidationError{Kind: ErrHeaderTooLarge, Details: fmt.Sprintf("%d > %d", headerSize, MaxHeaderSize)}
	}
	if headerSize > uint64(len(data)-8) {
		return nil, &ValidationError{Kind: ErrOutOfBounds, Details: fmt.Sprintf("header length %d exceeds file size %d", headerSize, len(data))}
	}
	f := &file{body: data[8+headerSize:]}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerSize], &raw); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &f.metadata); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", metadataKey, err)
		}
		delete(raw, metadataKey)
	}

	f.headers = make(map[string]SafeTensorHeader, len(raw))
	metas := make([]TensorMeta, 0, len(raw))
	for name, msg := range raw {
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, fmt.Errorf("failed to parse header for %q: %w", name, err)
		}
		if h.DType.Size() == 0 {
			return nil, &ValidationError{Kind: ErrUnsupportedDType, Tensor: name, Details: string(h.DType)}
		}
		n := int64(1)
		for _, d := range h.Shape {
			if d < 0 {
				return nil, &ValidationError{Kind: ErrNegativeOffset, Tensor: name, Details: fmt.Sprintf("shape %v", h.Shape)}
			}
			n *= d
		}
		size := h.DataOffsets[1] - h.DataOffsets[0]
		if want := n * int64(h.DType.Size()); size != want {
			return nil, &ValidationError{
				Kind:    ErrOutOfBounds,
				Tensor:  name,
				Details: fmt.Sprintf("shape %v of %s needs %d bytes, range holds %d", h.Shape, h.DType, want, size),
			}
		}
		f.headers[name] = h
		metas = append(metas, TensorMeta{Name: name, Offset: h.DataOffsets[0], Size: size})
	}

	if err := ValidateTensorOffsets(metas, int64(len(f.body))); err != nil {
		return nil, err
	}
	if sum, ok := f.metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(f.body, sum); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func decodeValues(b []byte, dtype DType) []float32 {
	n := len(b) / dtype.Size()
	values := make([]float32, n)
	switch dtype {
	case F32:
		for i := range n {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
	case F16:
		for i := range n {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(b[2*i:])).Float32()
		}
	}
	return values
}

// Entry is one tensor header, as listed by Inspect.
type Entry struct {
	Name string
	SafeTensorHeader
}

// Inspect validates the file at path and returns its tensor headers in name
// order along with its metadata.
func Inspect(path string) ([]Entry, map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, err := parse(data)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]Entry, 0, len(f.headers))
	for name, h := range f.headers {
		entries = append(entries, Entry{Name: name, SafeTensorHeader: h})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, f.metadata, nil
}
