// Command tfts runs and inspects time-series forecasting models.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(NewCLI(os.Stdout).ExecuteContext(context.Background()))
}
