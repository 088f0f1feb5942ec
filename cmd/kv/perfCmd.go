package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dCB/cmd/util"
	"github.com/ValentinKolb/dCB/lib/batch"
	"github.com/ValentinKolb/dCB/lib/codec"
	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/ValentinKolb/dCB/rpc/client"
	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dCB servers",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfBatchSize        = 10
	perfSkip             = make([]string, 0)
)

// perfTest is a single benchmark. op names the client timer that records the
// latencies of the benchmark.
type perfTest struct {
	name  string
	op    string
	setup bool
	run   func(key func(int) string, keys []string, counter int) error
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "batch-size"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("How many keys the batch tests fetch or store at once"))
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
	perfBatchSize = min(max(viper.GetInt("batch-size"), 1), perfKeySpread)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func perfTests() []perfTest {
	value := map[string]any{"test": true}
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	return []perfTest{
		{name: "set", op: "store", run: func(key func(int) string, _ []string, i int) error {
			_, err := rpcBucket.Store(engine.StoreSet, key(i), value, client.StoreOptions{})
			return err
		}},
		{name: "set-large", op: "store", run: func(key func(int) string, _ []string, i int) error {
			_, err := rpcBucket.Store(engine.StoreSet, key(i), largeValue, client.StoreOptions{Format: codec.FormatBytes})
			return err
		}},
		{name: "set-durable", op: "store", run: func(key func(int) string, _ []string, i int) error {
			_, err := rpcBucket.Store(engine.StoreSet, key(i), value, client.StoreOptions{
				Durability: batch.Durability{PersistTo: 1},
			})
			return err
		}},
		{name: "get", op: "get", setup: true, run: func(key func(int) string, _ []string, i int) error {
			_, err := rpcBucket.Get(key(i))
			return err
		}},
		{name: "get-batch", op: "get", setup: true, run: func(_ func(int) string, keys []string, i int) error {
			start := (i * perfBatchSize) % (len(keys) - perfBatchSize + 1)
			mres, err := rpcBucket.GetMulti(keys[start:start+perfBatchSize], client.ReadOptions{})
			if err != nil {
				return err
			}
			return mres.Err()
		}},
		{name: "get-async", op: "get", setup: true, run: func(_ func(int) string, keys []string, i int) error {
			start := (i * perfBatchSize) % (len(keys) - perfBatchSize + 1)
			var (
				wg     sync.WaitGroup
				failed error
			)
			wg.Add(1)
			err := rpcBucket.GetMultiAsync(keys[start:start+perfBatchSize], client.ReadOptions{},
				func(*batch.MultiResult) { wg.Done() },
				func(mres *batch.MultiResult) { failed = mres.Err(); wg.Done() })
			if err != nil {
				return err
			}
			wg.Wait()
			return failed
		}},
		{name: "incr", op: "counter", run: func(key func(int) string, _ []string, i int) error {
			_, err := rpcBucket.Counter(key(i), 1, client.CounterOptions{Create: true})
			return err
		}},
		{name: "remove", op: "remove", setup: true, run: func(key func(int) string, _ []string, i int) error {
			_, err := rpcBucket.Remove(key(i), 0, batch.Durability{})
			if result.StatusOf(err) == result.StatusKeyNotFound {
				return nil
			}
			return err
		}},
	}
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for dCB servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]perfResult)
	for _, test := range perfTests() {
		res := runPerfTest(test)
		results[test.name] = res
		printPerfResult(test.name, res)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// perfResult combines the benchmark result with the latencies recorded by the client.
type perfResult struct {
	bench   testing.BenchmarkResult
	latency metrics.Timer
	skipped bool
}

func runPerfTest(test perfTest) perfResult {
	if slices.Contains(perfSkip, test.name) {
		return perfResult{skipped: true}
	}

	// every test starts with fresh timers
	rpcBucket.Metrics().Unregister(test.op)

	bench := testing.Benchmark(func(b *testing.B) {
		getKey, keys := getKeys(test.name)

		if test.setup {
			if _, err := rpcBucket.StoreMulti(engine.StoreSet, keyValues(keys), client.StoreOptions{}); err != nil {
				log.Printf("(%s) - error setting keys: %v\n", test.name, err)
			}
		}

		b.Cleanup(func() {
			if _, err := rpcBucket.RemoveMulti(keys, batch.FlagQuiet, batch.Durability{}); err != nil {
				log.Printf("(%s) - error removing keys: %v\n", test.name, err)
			}
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := test.run(getKey, keys, counter); err != nil {
					log.Printf("(%s) - error: %v\n", test.name, err)
				}
				counter++
			}
		})
	})

	return perfResult{
		bench:   bench,
		latency: metrics.GetOrRegisterTimer(test.op, rpcBucket.Metrics()).Snapshot(),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// creates the test keys of a benchmark and a function to pick one by index
func getKeys(prefix string) (func(int) string, []string) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}
	return getKey, keys
}

func keyValues(keys []string) map[string]any {
	values := make(map[string]any, len(keys))
	for _, key := range keys {
		values[key] = "test"
	}
	return values
}

// printPerfResult prints the result of a benchmark test in a formatted way
func printPerfResult(test string, res perfResult) {
	if res.skipped || res.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(res.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p := res.latency.Percentiles([]float64{0.5, 0.99})

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, time.Duration(p[0]), time.Duration(p[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Bucket", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count", "Batch Size",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, res := range results {
		var nsPerOp, opsPerSec, p50, p99 float64
		skipped := res.skipped || res.bench.NsPerOp() == 0

		if !skipped {
			nsPerOp = math.Max(float64(res.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
			p := res.latency.Percentiles([]float64{0.5, 0.99})
			p50, p99 = p[0], p[1]
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", p50),
			fmt.Sprintf("%.0f", p99),
			strconv.FormatBool(skipped),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(config.Bucket, 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBatchSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
