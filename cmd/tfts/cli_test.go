package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCLI(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tfts version "+version+"\n", out)
}

func TestConfig(t *testing.T) {
	out, err := run(t, "config", "wavenet")
	require.NoError(t, err)
	assert.Contains(t, out, "model_type: wavenet")
	assert.Contains(t, out, "dilation_rates:")

	out, err = run(t, "config", "informer", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"model_type": "informer"`)

	path := filepath.Join(t.TempDir(), "informer.yaml")
	_, err = run(t, "config", "informer", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "prob_attention: false")

	_, err = run(t, "config", "lstm")
	assert.Error(t, err)
}

func TestPredict_Sine(t *testing.T) {
	out, err := run(t, "predict", "--model", "informer", "--series", "2", "--steps", "16", "--horizon", "3", "--seed", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"STEP", "SINE0", "SINE1"}, strings.Fields(lines[0]))
	assert.Equal(t, "3", strings.Fields(lines[3])[0])
}

func TestPredict_CSVSaveInspect(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "series.csv")
	var sb strings.Builder
	sb.WriteString("load,temp\n")
	for i := range 20 {
		fmt.Fprintf(&sb, "%.2f,%d\n", float64(i)/20, i%2+1)
	}
	require.NoError(t, os.WriteFile(input, []byte(sb.String()), 0o644))

	ckpt := filepath.Join(dir, "model.safetensors")
	first, err := run(t, "predict", "-i", input, "--horizon", "4", "--save", ckpt, "--dtype", "f32")
	require.NoError(t, err)
	assert.Contains(t, first, "LOAD")

	again, err := run(t, "predict", "-i", input, "-w", ckpt)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = run(t, "predict", "-i", input, "-w", ckpt, "--horizon", "5")
	assert.ErrorContains(t, err, "disagrees with checkpoint horizon 4")

	out, err := run(t, "inspect", ckpt)
	require.NoError(t, err)
	assert.Contains(t, out, "model_type: wavenet")
	assert.Contains(t, out, "horizon: 4")
	assert.Contains(t, out, "encoder.dense_time1.kernel")
	assert.Contains(t, out, "F32")
}

func TestPredict_Errors(t *testing.T) {
	_, err := run(t, "predict", "--series", "0")
	assert.Error(t, err)

	_, err = run(t, "predict", "--steps", "8", "--save", filepath.Join(t.TempDir(), "m.safetensors"), "--dtype", "bf16")
	assert.ErrorContains(t, err, "unsupported dtype")

	_, err = run(t, "predict", "-i", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	names, series, err := readCSV(strings.NewReader("a,b\n1,2\n3, 4\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, [][]float32{{1, 3}, {2, 4}}, series)

	_, _, err = readCSV(strings.NewReader("a,b\n"))
	assert.Error(t, err)

	_, _, err = readCSV(strings.NewReader("a,b\n1,x\n"))
	assert.ErrorContains(t, err, `column "b"`)

	_, _, err = readCSV(strings.NewReader("a,b\n1\n"))
	assert.Error(t, err)
}

func TestSineSeries(t *testing.T) {
	names, series := sineSeries(2, 8)
	assert.Equal(t, []string{"sine0", "sine1"}, names)
	assert.InDelta(t, 0, series[0][0], 1e-6)
	assert.InDelta(t, 1, series[0][2], 1e-6)
	assert.InDelta(t, 1, series[1][4], 1e-6)
}
