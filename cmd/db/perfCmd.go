package db

import (
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/cmd/util"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for ahnlich DB servers",
		Long:    "Runs every benchmark with the configured number of concurrent workers and prints latency percentiles and throughput. The benchmarks work on a temporary store that is dropped afterwards.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfStore      = "__perf"
	perfNumThreads = 10
	perfRequests   = 10000
	perfDimension  = 128
	perfKeySpread  = 1000
	perfBatchSize  = 16
	perfSkip       = make([]string, 0)
)

// perfBenchmarks lists the benchmarks in the order they are run
var perfBenchmarks = []string{"ping", "set", "get-key", "get-sim-n", "pipeline"}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get-key)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent workers"))
	key = "requests"
	perfTestCmd.Flags().Int(key, 10000, util.WrapString("Number of requests per benchmark"))
	key = "dimension"
	perfTestCmd.Flags().Int(key, 128, util.WrapString("Dimension of the keys of the test store"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("How many different keys to use for the tests"))
	key = "batch-size"
	perfTestCmd.Flags().Int(key, 16, util.WrapString("Number of queries per request in the pipeline benchmark"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfRequests = viper.GetInt("requests")
	perfDimension = viper.GetInt("dimension")
	perfKeySpread = viper.GetInt("keys")
	perfBatchSize = viper.GetInt("batch-size")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfNumThreads < 1 || perfRequests < 1 || perfDimension < 1 || perfKeySpread < 1 || perfBatchSize < 1 {
		return fmt.Errorf("threads, requests, dimension, keys and batch-size must be at least 1")
	}
	return nil
}

// perfResult is the outcome of one benchmark
type perfResult struct {
	name    string
	timer   metrics.Timer
	errors  metrics.Counter
	elapsed time.Duration
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Println("Performance testing tool for ahnlich DB servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	config := dbClient.Config()
	fmt.Println(config.String())
	fmt.Printf("Threads: %d, Requests: %d, Dimension: %d, Keys: %d, Batch Size: %d\n",
		perfNumThreads, perfRequests, perfDimension, perfKeySpread, perfBatchSize)
	fmt.Println()

	// prepare the test store
	keys := makeKeys(perfKeySpread, perfDimension)
	if err := preparePerfStore(ctx, keys); err != nil {
		return err
	}
	defer func() {
		if _, err := dbClient.DropStore(context.Background(), perfStore, false); err != nil {
			log.Printf("error dropping store %s: %v\n", perfStore, err)
		}
	}()

	fmt.Println("starting tests...")

	registry := metrics.NewRegistry()
	var results []perfResult

	for _, name := range perfBenchmarks {
		if shouldSkip(name) {
			printSkipped(name)
			continue
		}

		request := perfRequest(name, keys)
		res, err := runBenchmark(ctx, registry, name, request)
		if err != nil {
			return err
		}
		results = append(results, res)
		printResult(res)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return err
		}
		fmt.Printf("results written to %s\n", csvPath)
	}

	return nil
}

// perfRequest returns the request function of a benchmark
func perfRequest(name string, keys []common.StoreKey) func(ctx context.Context, i int) (common.Result, error) {
	switch name {
	case "ping":
		return func(ctx context.Context, _ int) (common.Result, error) {
			return dbClient.Ping(ctx)
		}
	case "set":
		return func(ctx context.Context, i int) (common.Result, error) {
			return dbClient.Set(ctx, perfStore, common.StoreEntry{
				Key:   keys[i%len(keys)],
				Value: common.StoreValue{"i": common.RawString(strconv.Itoa(i))},
			})
		}
	case "get-key":
		return func(ctx context.Context, i int) (common.Result, error) {
			return dbClient.GetKey(ctx, perfStore, keys[i%len(keys)])
		}
	case "get-sim-n":
		return func(ctx context.Context, i int) (common.Result, error) {
			return dbClient.GetSimN(ctx, common.QueryGetSimN{
				Store:       perfStore,
				SearchInput: keys[i%len(keys)],
				ClosestN:    10,
				Algorithm:   common.CosineSimilarity,
			})
		}
	default:
		// pipeline: one round trip with perfBatchSize lookups
		return func(ctx context.Context, i int) (common.Result, error) {
			p := dbClient.Pipeline()
			for j := 0; j < perfBatchSize; j++ {
				p.GetKey(perfStore, keys[(i+j)%len(keys)])
			}
			results, err := p.Exec(ctx)
			if err != nil {
				return nil, err
			}
			for _, r := range results {
				if _, isErr := r.(common.ResultErr); isErr {
					return r, nil
				}
			}
			return results[0], nil
		}
	}
}

// runBenchmark sends perfRequests requests with perfNumThreads workers and
// records the latency of every request
func runBenchmark(ctx context.Context, registry metrics.Registry, name string, request func(ctx context.Context, i int) (common.Result, error)) (perfResult, error) {
	res := perfResult{
		name:   name,
		timer:  metrics.NewTimer(),
		errors: metrics.NewCounter(),
	}
	if err := registry.Register(name+".latency", res.timer); err != nil {
		return res, err
	}
	if err := registry.Register(name+".errors", res.errors); err != nil {
		return res, err
	}

	var next atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()

	for w := 0; w < perfNumThreads; w++ {
		g.Go(func() error {
			for {
				i := int(next.Add(1) - 1)
				if i >= perfRequests {
					return nil
				}

				reqStart := time.Now()
				r, err := request(ctx, i)
				res.timer.UpdateSince(reqStart)

				if err != nil {
					// local failures abort the benchmark
					return fmt.Errorf("(%s) request failed: %w", name, err)
				}
				if e, isErr := r.(common.ResultErr); isErr {
					res.errors.Inc(1)
					log.Printf("(%s) server error: %s\n", name, e.Message)
				}
			}
		})
	}

	err := g.Wait()
	res.elapsed = time.Since(start)
	res.timer.Stop()
	return res, err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func preparePerfStore(ctx context.Context, keys []common.StoreKey) error {
	p := dbClient.Pipeline().
		DropStore(perfStore, false).
		CreateStore(common.QueryCreateStore{Store: perfStore, Dimension: uint64(perfDimension)})

	// fill the store in batches so every lookup has a hit
	for i := 0; i < len(keys); i += perfBatchSize {
		end := min(i+perfBatchSize, len(keys))
		p.Set(perfStore, toEntries(keys[i:end])...)
	}

	results, err := p.Exec(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		if e, isErr := r.(common.ResultErr); isErr {
			return fmt.Errorf("failed to prepare store %s: %s", perfStore, e.Message)
		}
	}
	return nil
}

func toEntries(keys []common.StoreKey) []common.StoreEntry {
	entries := make([]common.StoreEntry, len(keys))
	for i, k := range keys {
		entries[i] = common.StoreEntry{Key: k}
	}
	return entries
}

// makeKeys creates n random keys of the given dimension
func makeKeys(n, dimension int) []common.StoreKey {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	keys := make([]common.StoreKey, n)
	for i := range keys {
		k := make(common.StoreKey, dimension)
		for j := range k {
			k[j] = r.Float32()
		}
		keys[i] = k
	}
	return keys
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

func printSkipped(test string) {
	fmt.Printf("%-12sskipped\n", test)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(res perfResult) {
	t := res.timer.Snapshot()
	ps := t.Percentiles([]float64{0.5, 0.99})
	opsPerSec := float64(t.Count()) / res.elapsed.Seconds()

	fmt.Printf("%-12s%8.0f ops/sec\tmean %-10s p50 %-10s p99 %-10s errors %d\n",
		res.name,
		opsPerSec,
		time.Duration(t.Mean()).Round(time.Microsecond),
		time.Duration(ps[0]).Round(time.Microsecond),
		time.Duration(ps[1]).Round(time.Microsecond),
		res.errors.Count(),
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := dbClient.Config()

	// Write header
	header := []string{
		"Test", "Requests", "OpsPerSec", "MeanNs", "P50Ns", "P99Ns", "Errors",
		"Endpoints", "WireFormat", "IntEncoding", "MaxPerEndpoint",
		"Threads", "Dimension", "Keys", "BatchSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, res := range results {
		t := res.timer.Snapshot()
		ps := t.Percentiles([]float64{0.5, 0.99})

		row := []string{
			res.name,
			strconv.FormatInt(t.Count(), 10),
			fmt.Sprintf("%.0f", float64(t.Count())/res.elapsed.Seconds()),
			fmt.Sprintf("%.0f", t.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strconv.FormatInt(res.errors.Count(), 10),
			strings.Join(config.Transport.Endpoints, ";"),
			string(config.Transport.WireFormat),
			string(config.Protocol.IntEncoding),
			strconv.Itoa(config.Transport.Pool.MaxPerEndpoint),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfDimension),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBatchSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", res.name, err)
		}
	}

	return nil
}
