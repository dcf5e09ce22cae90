package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for sKV servers",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfTable            = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfTest is one benchmark. setup runs before the timer starts, op is timed per call.
type perfTest struct {
	name  string
	setup func(ctx context.Context, keys []string)
	op    func(ctx context.Context, key string) error
}

// perfResult holds the benchmark result and the client side latencies of one test
type perfResult struct {
	bench testing.BenchmarkResult
	timer gometrics.Timer
}

func runPerf(cmd *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for sKV servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	ctx := cmd.Context()
	small := store.StringValue("test")
	large := store.BinaryValue(make([]byte, perfLargeValueSizeKB*1024))
	fill := func(ctx context.Context, keys []string) {
		for _, k := range keys {
			if _, _, err := rpcStore.Set(ctx, perfTable, k, small); err != nil {
				log.Printf("(fill) - error setting key: %v\n", err)
			}
		}
	}

	tests := []perfTest{
		{name: "set", op: func(ctx context.Context, key string) error {
			_, _, err := rpcStore.Set(ctx, perfTable, key, small)
			return err
		}},
		{name: "set-large", op: func(ctx context.Context, key string) error {
			_, _, err := rpcStore.Set(ctx, perfTable, key, large)
			return err
		}},
		{name: "get", setup: fill, op: func(ctx context.Context, key string) error {
			_, _, err := rpcStore.Get(ctx, perfTable, key)
			return err
		}},
		{name: "delete", setup: fill, op: func(ctx context.Context, key string) error {
			_, _, err := rpcStore.Delete(ctx, perfTable, key)
			return err
		}},
		{name: "has", setup: fill, op: func(ctx context.Context, key string) error {
			_, err := rpcStore.Has(ctx, perfTable, key)
			return err
		}},
		{name: "has-not", op: func(ctx context.Context, key string) error {
			_, err := rpcStore.Has(ctx, perfTable, key+"-missing")
			return err
		}},
		{name: "mget", setup: fill, op: func(ctx context.Context, key string) error {
			_, err := rpcStore.MultiGet(ctx, perfTable, key, key+"-a", key+"-b")
			return err
		}},
		{name: "publish", op: func(ctx context.Context, key string) error {
			return rpcStore.Publish(ctx, perfTable, small)
		}},
		{name: "mixed", setup: fill, op: mixedOp(small)},
	}

	registry := gometrics.NewRegistry()
	results := make(map[string]perfResult, len(tests))
	names := make([]string, 0, len(tests))

	for _, test := range tests {
		timer := gometrics.GetOrRegisterTimer(test.name, registry)
		bench := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test.name) {
				return
			}
			runBenchmark(ctx, b, test, timer)
		})

		results[test.name] = perfResult{bench: bench, timer: timer}
		names = append(names, test.name)
		printResult(test.name, results[test.name])
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, names, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

func runBenchmark(ctx context.Context, b *testing.B, test perfTest, timer gometrics.Timer) {
	keys := getKeys(test.name)
	if test.setup != nil {
		test.setup(ctx, keys)
	}

	b.Cleanup(func() {
		if _, err := rpcStore.MultiDelete(ctx, perfTable, keys...); err != nil {
			log.Printf("(%s) - error deleting keys: %v\n", test.name, err)
		}
	})

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := time.Now()
			if err := test.op(ctx, keys[counter%len(keys)]); err != nil {
				log.Printf("(%s) - error: %v\n", test.name, err)
			}
			timer.UpdateSince(start)
			counter++
		}
	})
}

// mixedOp cycles through set, get, delete and has on the same key
func mixedOp(value store.Value) func(ctx context.Context, key string) error {
	return func(ctx context.Context, key string) error {
		var err error
		switch time.Now().UnixNano() % 4 {
		case 0:
			_, _, err = rpcStore.Set(ctx, perfTable, key, value)
		case 1:
			_, _, err = rpcStore.Get(ctx, perfTable, key)
		case 2:
			_, _, err = rpcStore.Delete(ctx, perfTable, key)
		case 3:
			_, err = rpcStore.Has(ctx, perfTable, key)
		}
		return err
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getKeys creates the test keys of one benchmark
func getKeys(prefix string) []string {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return keys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	t := result.timer.Snapshot()
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s mean=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(t.Percentile(0.5)), time.Duration(t.Percentile(0.99)), time.Duration(t.Mean()))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, names []string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Calls", "P50Ns", "P99Ns", "MeanNs", "Rate1",
		"Endpoint", "TimeoutSec", "RetryCount", "TLS",
		"Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, test := range names {
		result := results[test]
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.bench.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		t := result.timer.Snapshot()
		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strconv.FormatInt(t.Count(), 10),
			fmt.Sprintf("%.0f", t.Percentile(0.5)),
			fmt.Sprintf("%.0f", t.Percentile(0.99)),
			fmt.Sprintf("%.0f", t.Mean()),
			fmt.Sprintf("%.2f", t.Rate1()),
			config.Endpoint,
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.FormatBool(config.TLSEnabled),
			config.Serializer,
			config.Transport,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
