// Package serialization stores model state dicts in the SafeTensors format.
//
// A file is an 8-byte little-endian header length, a JSON header mapping
// tensor names to dtype, shape and byte range, and then the raw tensor data
// in little-endian order. Tensors are written in sorted name order, so the
// same state dict always produces the same bytes.
//
// Supported dtypes are F32 and F16. F16 halves checkpoint size and is
// converted back to float32 on load.
//
// The writer records a SHA-256 of the data section under the "sha256"
// metadata key; the reader verifies it when present.
//
// Example:
//
//	err := serialization.WriteSafeTensors(path, model.StateDict(), map[string]string{"model_type": "wavenet"}, serialization.F32)
//	...
//	weights, meta, err := serialization.ReadSafeTensors(path)
package serialization
