// Package parallel fans independent kernel work out across goroutines.
//
// The runtime uses it for per-batch and per-head loops whose iterations write
// disjoint output regions, so results are identical to a sequential run.
package parallel

import (
	"sync"

	"github.com/imu1984/Time-series-prediction/internal/envconfig"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

var defaultConfig = sync.OnceValue(func() Config {
	n := int(envconfig.NumThreads())
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 4,
	}
})

// Default returns the process-wide configuration, read once from
// TFTS_NUM_THREADS (defaulting to the CPU count).
func Default() Config {
	return defaultConfig()
}

// For executes f(i) for i in [0, n).
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < 2*cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForGrid executes f(r, c) over a rows×cols grid, e.g. batch×heads.
func ForGrid(rows, cols int, f func(r, c int), cfg Config) {
	if cols == 0 {
		return
	}
	For(rows*cols, func(k int) {
		f(k/cols, k%cols)
	}, cfg)
}
