package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ulikoehler/YakDB-sub001/cmd/util"
	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for YakDB servers",
		Long:    "Runs parallel benchmarks of the basic operations against the table selected with --table. Every benchmark cleans up the keys it wrote.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
	perfDurability       = db.DurabilityBuffered
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,read)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	var err error
	perfDurability, err = util.GetDurability()
	return err
}

// benchmark is a single named perf test
type benchmark struct {
	name string
	// seed writes the keys before the timer starts
	seed bool
	// op performs one operation on the given key
	op func(ctx context.Context, table uint32, key []byte, counter int) error
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for YakDB servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Table: %d\n", util.GetTable())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Durability: %s\n", perfDurability)
	fmt.Println()

	fmt.Println("starting tests...")

	table := util.GetTable()
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	benchmarks := []benchmark{
		{name: "put", op: func(ctx context.Context, table uint32, key []byte, _ int) error {
			return rpcClient.Put(ctx, table, perfDurability, db.KeyValue{Key: key, Value: value})
		}},
		{name: "put-large", op: func(ctx context.Context, table uint32, key []byte, _ int) error {
			return rpcClient.Put(ctx, table, perfDurability, db.KeyValue{Key: key, Value: largeValue})
		}},
		{name: "read", seed: true, op: func(ctx context.Context, table uint32, key []byte, _ int) error {
			_, err := rpcClient.Read(ctx, table, key)
			return err
		}},
		{name: "exists", seed: true, op: func(ctx context.Context, table uint32, key []byte, _ int) error {
			_, err := rpcClient.Exists(ctx, table, key)
			return err
		}},
		{name: "exists-miss", op: func(ctx context.Context, table uint32, _ []byte, counter int) error {
			_, err := rpcClient.Exists(ctx, table, []byte(fmt.Sprintf("%s/exists-miss-%d", perfKeyPrefix, counter%100)))
			return err
		}},
		{name: "delete", seed: true, op: func(ctx context.Context, table uint32, key []byte, _ int) error {
			return rpcClient.Delete(ctx, table, perfDurability, key)
		}},
		{name: "mixed", seed: true, op: func(ctx context.Context, table uint32, key []byte, counter int) error {
			var err error
			switch counter % 4 {
			case 0: // put
				err = rpcClient.Put(ctx, table, perfDurability, db.KeyValue{Key: key, Value: value})
			case 1: // read
				_, err = rpcClient.Read(ctx, table, key)
			case 2: // delete
				err = rpcClient.Delete(ctx, table, perfDurability, key)
			case 3: // exists
				_, err = rpcClient.Exists(ctx, table, key)
			}
			return err
		}},
		{name: "scan", seed: true, op: func(ctx context.Context, table uint32, _ []byte, _ int) error {
			prefix := []byte(perfKeyPrefix + "-scan-")
			stream, err := rpcClient.Scan(ctx, table, prefix, append(prefix, 0xFF), 0)
			if err != nil {
				return err
			}
			defer stream.Close()
			_, err = stream.Collect(ctx)
			return err
		}},
	}

	// Create results map
	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range benchmarks {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bm.name) {
				return
			}
			ctx := context.Background()

			// prepare keys
			getKey, iter := getKeys(bm.name)

			if bm.seed {
				iter(func(k []byte) {
					if err := rpcClient.Put(ctx, table, db.DurabilityBuffered, db.KeyValue{Key: k, Value: value}); err != nil {
						log.Printf("(%s) - error setting key: %v\n", bm.name, err)
					}
				})
			}

			// cleanup
			b.Cleanup(func() {
				iter(func(k []byte) {
					if err := rpcClient.Delete(ctx, table, db.DurabilityBuffered, k); err != nil {
						log.Printf("(%s) - error deleting key: %v\n", bm.name, err)
					}
				})
			})

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := bm.op(ctx, table, getKey(counter), counter); err != nil {
						log.Printf("(%s) - error performing operation: %v\n", bm.name, err)
					}
					counter++
				}
			})
		})
		results[bm.name] = result
		printResult(bm.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) []byte, func(func([]byte))) {
	keys := make([][]byte, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = []byte(fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i))
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) []byte {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func([]byte)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Table", "Durability", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(uint64(util.GetTable()), 10),
			perfDurability.String(),
			viper.GetString("transport"),
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
