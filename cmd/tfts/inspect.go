package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/imu1984/Time-series-prediction/internal/serialization"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "List the tensors and metadata of a SafeTensors checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectHandler,
	}
}

func inspectHandler(cmd *cobra.Command, args []string) error {
	entries, meta, err := serialization.Inspect(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		v := meta[k]
		if k == "config" {
			v = strings.Join(strings.Fields(v), " ")
		}
		fmt.Fprintf(out, "%s: %s\n", k, v)
	}
	if len(meta) > 0 {
		fmt.Fprintln(out)
	}

	var data [][]string
	var total int64
	for _, e := range entries {
		dims := make([]string, len(e.Shape))
		for i, d := range e.Shape {
			dims[i] = strconv.FormatInt(d, 10)
		}
		size := e.DataOffsets[1] - e.DataOffsets[0]
		total += size
		data = append(data, []string{e.Name, string(e.DType), "[" + strings.Join(dims, " ") + "]", strconv.FormatInt(size, 10)})
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"NAME", "DTYPE", "SHAPE", "BYTES"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(out, "\n%d tensors, %d bytes\n", len(entries), total)
	return nil
}
