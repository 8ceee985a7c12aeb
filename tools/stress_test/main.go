package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/VanDung-dev/HieraLedger-Engine/engine"
)

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Accounts       int
	Workers        int
	Transfers      int
	InitialBalance int64
	MaxAmount      int64
	QueueCapacity  int
	Seed           int64
	ReportFile     string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	Transfers       int64
	Succeeded       int64
	Failed          int64
	TotalDuration   time.Duration
	AvgLatency      time.Duration
	MinLatency      time.Duration
	MaxLatency      time.Duration
	TransfersPerSec float64
	ExpectedTotal   int64
	FinalTotal      int64
	NegativeCount   int
}

// Conserved reports whether money was neither created nor destroyed.
func (r StressTestResult) Conserved() bool {
	return r.ExpectedTotal == r.FinalTotal && r.NegativeCount == 0 && r.Succeeded+r.Failed == r.Transfers
}

func main() {
	config := parseFlags()

	fmt.Println("=== HieraLedger Transfer Stress Test ===")
	fmt.Printf("Accounts: %d\n", config.Accounts)
	fmt.Printf("Workers: %d\n", config.Workers)
	fmt.Printf("Transfers: %d\n", config.Transfers)
	fmt.Printf("Seed: %d\n", config.Seed)
	fmt.Println()

	result, err := runStressTest(config)
	if err != nil {
		log.Fatalf("stress test failed: %v", err)
	}

	printResults(result)

	if config.ReportFile != "" {
		saveReport(config, result)
	}
	if !result.Conserved() {
		fmt.Println("FAIL: balance conservation violated")
		os.Exit(1)
	}
	fmt.Println("OK: total balance conserved")
}

func parseFlags() StressTestConfig {
	config := StressTestConfig{}

	flag.IntVar(&config.Accounts, "a", 8, "Number of accounts")
	flag.IntVar(&config.Workers, "c", 16, "Number of concurrent workers")
	flag.IntVar(&config.Transfers, "n", 100000, "Total number of transfers")
	flag.Int64Var(&config.InitialBalance, "b", 1000, "Initial balance per account")
	flag.Int64Var(&config.MaxAmount, "m", 100, "Maximum transfer amount")
	flag.IntVar(&config.QueueCapacity, "q", 256, "Work queue capacity")
	flag.Int64Var(&config.Seed, "seed", time.Now().UnixNano(), "Random seed")
	flag.StringVar(&config.ReportFile, "o", "", "Output report file (JSON)")

	flag.Parse()

	return config
}

// latencyRecorder tracks min, max and total latency without locks.
type latencyRecorder struct {
	total      int64
	minLatency int64
	maxLatency int64
}

func (r *latencyRecorder) Record(o engine.Outcome) {
	lat := int64(o.Duration)
	atomic.AddInt64(&r.total, lat)
	for {
		old := atomic.LoadInt64(&r.minLatency)
		if lat >= old || atomic.CompareAndSwapInt64(&r.minLatency, old, lat) {
			break
		}
	}
	for {
		old := atomic.LoadInt64(&r.maxLatency)
		if lat <= old || atomic.CompareAndSwapInt64(&r.maxLatency, old, lat) {
			break
		}
	}
}

// transfers returns n random transfers between distinct accounts. Every
// other transfer reverses the previous pair to provoke lock-order conflicts.
func transfers(rng *rand.Rand, n, accounts int, maxAmount int64) []engine.Entry {
	entries := make([]engine.Entry, 0, n)
	for i := 0; i < n; i++ {
		src := rng.Intn(accounts)
		dst := (src + 1 + rng.Intn(accounts-1)) % accounts
		if i%2 == 1 {
			prev := entries[i-1]
			src, dst = prev.To, prev.From
		}
		entries = append(entries, engine.Entry{
			LedgerID: int64(i),
			Op:       engine.OpTransfer,
			From:     src,
			To:       dst,
			Amount:   rng.Int63n(maxAmount + 1),
		})
	}
	return entries
}

func runStressTest(config StressTestConfig) (StressTestResult, error) {
	if config.Accounts < 2 {
		return StressTestResult{}, fmt.Errorf("need at least 2 accounts, got %d", config.Accounts)
	}
	if config.MaxAmount < 0 {
		return StressTestResult{}, fmt.Errorf("maximum amount must not be negative")
	}

	rng := rand.New(rand.NewSource(config.Seed))
	entries := transfers(rng, config.Transfers, config.Accounts, config.MaxAmount)

	lat := &latencyRecorder{minLatency: 1<<63 - 1}
	store := engine.NewStore(config.Accounts,
		engine.WithRecorder(lat),
		engine.WithInitialBalance(config.InitialBalance))
	q := engine.NewQueue(config.QueueCapacity)
	pool := engine.NewWorkerPool("stress", config.Workers, store, q)

	startTime := time.Now()
	if err := pool.Start(); err != nil {
		return StressTestResult{}, err
	}
	for _, e := range entries {
		if err := q.Put(e); err != nil {
			return StressTestResult{}, err
		}
	}
	q.Close()
	snap := pool.Wait()
	duration := time.Since(startTime)

	result := StressTestResult{
		Transfers:       int64(len(entries)),
		Succeeded:       snap.Succeeded,
		Failed:          snap.Failed,
		TotalDuration:   duration,
		MaxLatency:      time.Duration(atomic.LoadInt64(&lat.maxLatency)),
		TransfersPerSec: float64(len(entries)) / duration.Seconds(),
		ExpectedTotal:   int64(config.Accounts) * config.InitialBalance,
		FinalTotal:      snap.Total(),
	}
	if n := snap.Succeeded + snap.Failed; n > 0 {
		result.AvgLatency = time.Duration(atomic.LoadInt64(&lat.total) / n)
		result.MinLatency = time.Duration(atomic.LoadInt64(&lat.minLatency))
	}
	for _, a := range snap.Accounts {
		if a.Balance < 0 {
			result.NegativeCount++
		}
	}
	return result, nil
}

func printResults(result StressTestResult) {
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Transfers:       %d\n", result.Transfers)
	fmt.Printf("Succeeded:       %d\n", result.Succeeded)
	fmt.Printf("Failed:          %d\n", result.Failed)
	fmt.Printf("Transfers/sec:   %.2f\n", result.TransfersPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
	fmt.Printf("Total balance:   %d (expected %d)\n", result.FinalTotal, result.ExpectedTotal)
}

func saveReport(config StressTestConfig, result StressTestResult) {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"accounts":        config.Accounts,
			"workers":         config.Workers,
			"transfers":       config.Transfers,
			"initial_balance": config.InitialBalance,
			"seed":            config.Seed,
		},
		"results": map[string]interface{}{
			"succeeded":         result.Succeeded,
			"failed":            result.Failed,
			"transfers_per_sec": result.TransfersPerSec,
			"avg_latency_ms":    float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":    float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":    float64(result.MaxLatency.Microseconds()) / 1000,
			"conserved":         result.Conserved(),
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	data, _ := json.MarshalIndent(report, "", "  ")
	if err := os.WriteFile(config.ReportFile, data, 0644); err != nil {
		log.Printf("Failed to write report: %v", err)
	} else {
		fmt.Printf("Report saved to: %s\n", config.ReportFile)
	}
}
