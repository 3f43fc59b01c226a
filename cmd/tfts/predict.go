package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/imu1984/Time-series-prediction/forecast"
	"github.com/imu1984/Time-series-prediction/internal/envconfig"
	"github.com/imu1984/Time-series-prediction/tensor"
)

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Forecast one or more series",
		Long: "Forecast every column of a CSV file (one series per column, header row first),\n" +
			"or a set of generated sine waves when no --input is given.",
		Args: cobra.NoArgs,
		RunE: predictHandler,
	}
	cmd.Flags().StringP("model", "m", "wavenet", "Architecture to build (wavenet or informer)")
	cmd.Flags().StringP("config", "c", "", "Configuration file (.json, .yaml or .yml)")
	cmd.Flags().StringP("weights", "w", "", "SafeTensors checkpoint written by --save")
	cmd.Flags().Int("horizon", 12, "Number of steps to forecast")
	cmd.Flags().StringP("input", "i", "", "CSV file with one series per column")
	cmd.Flags().Int("series", 3, "Number of sine waves to generate without --input")
	cmd.Flags().Int("steps", 64, "History length of generated sine waves")
	cmd.Flags().Uint64("seed", 0, "Weight initialization seed (default TFTS_SEED)")
	cmd.Flags().String("save", "", "Write the model to a SafeTensors checkpoint after predicting")
	cmd.Flags().String("dtype", "f32", "Checkpoint element type (f32 or f16)")
	return cmd
}

func predictHandler(cmd *cobra.Command, _ []string) error {
	m, err := buildModel(cmd)
	if err != nil {
		return err
	}

	names, series, err := loadSeries(cmd)
	if err != nil {
		return err
	}

	preds := make([]*tensor.Tensor, len(series))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(int(envconfig.NumThreads()), 1))
	for i, values := range series {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			x, err := tensor.FromSlice(values, tensor.Shape{1, len(values), 1})
			if err != nil {
				return err
			}
			out, err := m.Forward(forecast.Array{X: x}, nil)
			if err != nil {
				return fmt.Errorf("series %q: %w", names[i], err)
			}
			for _, w := range out.Warnings {
				slog.Debug("prediction warning", "series", names[i], "warning", w)
			}
			preds[i] = out.Prediction
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	renderPredictions(cmd.OutOrStdout(), names, preds, m.Horizon())

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		dtype, err := parseDType(cmd)
		if err != nil {
			return err
		}
		if err := forecast.Save(path, m, dtype); err != nil {
			return err
		}
		slog.Info("saved checkpoint", "path", path, "dtype", dtype)
	}
	return nil
}

func buildModel(cmd *cobra.Command) (forecast.Model, error) {
	var opts []forecast.Option
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetUint64("seed")
		opts = append(opts, forecast.WithSeed(seed))
	}
	horizon, _ := cmd.Flags().GetInt("horizon")

	if path, _ := cmd.Flags().GetString("weights"); path != "" {
		m, err := forecast.Load(path, opts...)
		if err != nil {
			return nil, err
		}
		if cmd.Flags().Changed("horizon") && horizon != m.Horizon() {
			return nil, fmt.Errorf("--horizon %d disagrees with checkpoint horizon %d", horizon, m.Horizon())
		}
		return m, nil
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err := forecast.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		return forecast.AutoModel(cfg, horizon, opts...)
	}

	name, _ := cmd.Flags().GetString("model")
	return forecast.New(name, horizon, opts...)
}

func parseDType(cmd *cobra.Command) (forecast.DType, error) {
	s, _ := cmd.Flags().GetString("dtype")
	switch strings.ToLower(s) {
	case "f32":
		return forecast.F32, nil
	case "f16":
		return forecast.F16, nil
	default:
		return "", fmt.Errorf("unsupported dtype %q (want f32 or f16)", s)
	}
}

func loadSeries(cmd *cobra.Command) ([]string, [][]float32, error) {
	if path, _ := cmd.Flags().GetString("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		names, series, err := readCSV(f)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return names, series, nil
	}

	n, _ := cmd.Flags().GetInt("series")
	steps, _ := cmd.Flags().GetInt("steps")
	if n < 1 || steps < 1 {
		return nil, nil, fmt.Errorf("--series and --steps must be positive, got %d and %d", n, steps)
	}
	names, series := sineSeries(n, steps)
	return names, series, nil
}

// readCSV parses a header row of series names followed by one row per time
// step.
func readCSV(r io.Reader) ([]string, [][]float32, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, errors.New("need a header row and at least one value row")
	}

	names := rows[0]
	series := make([][]float32, len(names))
	for _, row := range rows[1:] {
		for j, field := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
			if err != nil {
				return nil, nil, fmt.Errorf("column %q: %w", names[j], err)
			}
			series[j] = append(series[j], float32(v))
		}
	}
	return names, series, nil
}

// sineSeries generates n sine waves of increasing period.
func sineSeries(n, steps int) ([]string, [][]float32) {
	names := make([]string, n)
	series := make([][]float32, n)
	for i := range n {
		names[i] = fmt.Sprintf("sine%d", i)
		period := float64(8 * (i + 1))
		series[i] = make([]float32, steps)
		for t := range steps {
			series[i][t] = float32(math.Sin(2 * math.Pi * float64(t) / period))
		}
	}
	return names, series
}

func renderPredictions(w io.Writer, names []string, preds []*tensor.Tensor, horizon int) {
	header := append([]string{"STEP"}, names...)
	data := make([][]string, horizon)
	for h := range horizon {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(h+1))
		for _, p := range preds {
			row = append(row, strconv.FormatFloat(float64(p.At(0, h, 0)), 'f', 4, 32))
		}
		data[h] = row
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
