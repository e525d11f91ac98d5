// Benchmark tool for load-testing Settle's run endpoint.
//
// Usage:
//
//	go run ./cmd/benchmark -source rapidpost -file export.csv -url http://localhost:8080
//	go run ./cmd/benchmark -orders 5000 -runs 200 -workers 20
//
// This tool:
//  1. Loads orders from a courier export, or generates a synthetic month
//  2. Posts the same batch to POST /runs repeatedly from concurrent workers
//  3. Checks every response against a local engine pass over the same batch
//  4. Reports latency percentiles and throughput
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/settle/internal/api"
	"github.com/opensource-finance/settle/internal/domain"
	"github.com/opensource-finance/settle/internal/engine"
	"github.com/opensource-finance/settle/internal/intake"
)

// Results tracks benchmark outcomes
type Results struct {
	TotalRuns  int64
	Errors     int64
	Mismatches int64
	Alerts     int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (r *Results) record(d time.Duration) {
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	r.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Settle base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	source := flag.String("source", string(domain.SourceRapidPost), "Source format of -file")
	file := flag.String("file", "", "Courier export to replay (synthetic orders when empty)")
	orders := flag.Int("orders", 1000, "Synthetic orders per run")
	runs := flag.Int("runs", 100, "Number of runs to post")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each run result")
	flag.Parse()

	fmt.Println("SETTLE BENCHMARK - POST /runs")
	fmt.Printf("\nSettle URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Runs:        %d\n", *runs)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Settle not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Settle is running:")
		fmt.Println("  go run ./cmd/settle")
		os.Exit(1)
	}
	fmt.Println("Settle is healthy")

	batch, err := loadOrders(domain.Source(*source), *file, *orders)
	if err != nil {
		fmt.Printf("ERROR: Failed to load orders: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d orders\n", len(batch))

	// Local reference pass with the default configuration
	want := engine.NewProcessor().Process(context.Background(), &engine.Input{
		Orders: intake.Dedupe(batch),
	})
	fmt.Printf("Expected net owed: %s, alerts: %d\n", engine.TotalBalance(want).NetOwed, len(want.Alerts))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	results := runBenchmark(*baseURL, *tenantID, batch, want, *runs, *workers, *verbose)
	printResults(results, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func loadOrders(src domain.Source, path string, n int) ([]domain.OrderRecord, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return intake.ParseOrders(src, data)
	}
	return syntheticOrders(n), nil
}

// syntheticOrders spreads n orders over this month's days, the three
// sources and a handful of cities, with roughly one in six returned.
func syntheticOrders(n int) []domain.OrderRecord {
	rng := rand.New(rand.NewSource(42))
	cities := []string{"Karachi", "Lahore", "Islamabad", "Multan", "Quetta"}
	statuses := []string{"Delivered", "Delivered", "Delivered", "Delivered", "Returned", "In Transit"}
	sources := domain.Sources()

	now := time.Now().UTC()
	out := make([]domain.OrderRecord, 0, n)
	for i := 0; i < n; i++ {
		src := sources[i%len(sources)]
		day := time.Date(now.Year(), now.Month(), 1+rng.Intn(now.Day()), 0, 0, 0, 0, time.UTC)
		out = append(out, domain.OrderRecord{
			Source:     src,
			TrackingID: fmt.Sprintf("BM-%d", i),
			Status:     statuses[rng.Intn(len(statuses))],
			Courier:    string(src),
			City:       cities[rng.Intn(len(cities))],
			OrderDate:  day.Format("2006-01-02"),
			Amount:     domain.RawAmount(fmt.Sprintf("%d", 500+rng.Intn(4500))),
		})
	}
	return out
}

func runBenchmark(baseURL, tenantID string, batch []domain.OrderRecord, want *domain.Run, runs, workers int, verbose bool) *Results {
	results := &Results{}
	wantNet := engine.TotalBalance(want).NetOwed

	body, err := json.Marshal(api.RunRequestBody{Orders: batch})
	if err != nil {
		fmt.Printf("ERROR: Failed to marshal request: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	var g errgroup.Group
	g.SetLimit(workers)

	for i := 0; i < runs; i++ {
		g.Go(func() error {
			start := time.Now()
			run, err := postRun(client, baseURL, tenantID, body)
			results.record(time.Since(start))
			atomic.AddInt64(&results.TotalRuns, 1)

			if err != nil {
				atomic.AddInt64(&results.Errors, 1)
				if verbose {
					fmt.Printf("ERROR: %v\n", err)
				}
				return nil
			}

			atomic.AddInt64(&results.Alerts, int64(len(run.Alerts)))
			got := engine.TotalBalance(run).NetOwed
			match := got.Equal(wantNet)
			if !match {
				atomic.AddInt64(&results.Mismatches, 1)
			}
			if verbose {
				fmt.Printf("%s | net owed %s | alerts %d | match %v\n", run.ID, got, len(run.Alerts), match)
			}
			return nil
		})
	}
	g.Wait()

	return results
}

func postRun(client *http.Client, baseURL, tenantID string, body []byte) (*domain.Run, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/runs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var run domain.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(r *Results, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nRUNS\n")
	fmt.Printf("   Total:        %d\n", r.TotalRuns)
	fmt.Printf("   Errors:       %d\n", r.Errors)
	fmt.Printf("   Mismatches:   %d\n", r.Mismatches)
	fmt.Printf("   Alerts:       %d\n", r.Alerts)

	sort.Slice(r.latencies, func(i, j int) bool { return r.latencies[i] < r.latencies[j] })

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   p50 Latency:      %v\n", percentile(r.latencies, 0.50).Round(time.Microsecond))
	fmt.Printf("   p95 Latency:      %v\n", percentile(r.latencies, 0.95).Round(time.Microsecond))
	fmt.Printf("   p99 Latency:      %v\n", percentile(r.latencies, 0.99).Round(time.Microsecond))
	if r.TotalRuns > 0 {
		fmt.Printf("   Throughput:       %.2f runs/sec\n", float64(r.TotalRuns)/duration.Seconds())
	}

	if r.Mismatches > 0 {
		fmt.Println("\n   Server totals differ from the default engine; check fee overrides in the server config")
	}
	fmt.Println()
}
