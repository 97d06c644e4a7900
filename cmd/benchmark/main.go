// Benchmark tool for replaying labeled alerts against Kestrel.
//
// Usage:
//   go run cmd/benchmark/main.go -data /path/to/alerts.jsonl -url http://localhost:8080
//
// This tool:
//   1. Reads a JSONL file of alerts with ground-truth labels
//   2. Sends each alert to Kestrel's /score endpoint
//   3. Compares Kestrel's decision (escalate/dismiss) with the labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Each input line is a JSON object:
//   {"alertId": "A-1", "label": 1, "alert": {"rule": {...}, "data": {...}}}
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledAlert is one line of the replay file.
type LabeledAlert struct {
	AlertID string         `json:"alertId"`
	Label   int            `json:"label"` // 1 = true positive, 0 = benign
	Alert   map[string]any `json:"alert"`
}

// ScoreRequest is the Kestrel API request format.
type ScoreRequest struct {
	AlertID string         `json:"alertId"`
	Alert   map[string]any `json:"alert"`
}

// ScoreResponse is the subset of the Kestrel API response the
// benchmark cares about.
type ScoreResponse struct {
	AlertID  string  `json:"alertId"`
	Score    float64 `json:"score"`    // calibrated P(malicious)
	RawScore float64 `json:"rawScore"` // uncalibrated model output
	Decision string  `json:"decision"` // "escalate" or "dismiss"
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // True alerts escalated
	FalsePositives int64 // Benign alerts escalated
	TrueNegatives  int64 // Benign alerts dismissed
	FalseNegatives int64 // True alerts dismissed (missed attacks!)

	TotalProcessed int64
	TotalPositive  int64
	TotalBenign    int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	dataPath := flag.String("data", "", "Path to labeled alerts JSONL file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 10000, "Maximum alerts to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	positiveOnly := flag.Bool("positive-only", false, "Only replay labeled-positive alerts")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for benign alerts (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each alert result")
	flag.Parse()

	if *dataPath == "" {
		fmt.Println("Usage: benchmark -data /path/to/alerts.jsonl [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            KESTREL BENCHMARK - Alert Triage Replay            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nData File:   %s\n", *dataPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Pos. Only:   %v\n", *positiveOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read labeled alerts
	fmt.Printf("\nReading labeled alerts from %s...\n", *dataPath)
	alerts, err := readLabeledAlerts(*dataPath, *limit, *positiveOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read data: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d alerts\n", len(alerts))

	positiveCount := 0
	for _, a := range alerts {
		if a.Label == 1 {
			positiveCount++
		}
	}
	fmt.Printf("  - True positives: %d (%.2f%%)\n", positiveCount, 100*float64(positiveCount)/float64(len(alerts)))
	fmt.Printf("  - Benign:         %d (%.2f%%)\n", len(alerts)-positiveCount, 100*float64(len(alerts)-positiveCount)/float64(len(alerts)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(alerts, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
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

func readLabeledAlerts(path string, limit int, positiveOnly bool, sampleRate float64) ([]LabeledAlert, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var alerts []LabeledAlert
	sampleCounter := 0
	lineNo := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var la LabeledAlert
		if err := json.Unmarshal(line, &la); err != nil {
			fmt.Printf("WARN: skipping malformed line %d: %v\n", lineNo, err)
			continue
		}
		if la.AlertID == "" {
			la.AlertID = fmt.Sprintf("replay-%d", lineNo)
		}

		// Apply filters
		if positiveOnly && la.Label != 1 {
			continue
		}

		// Sample benign alerts
		if la.Label == 0 && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		alerts = append(alerts, la)

		if limit > 0 && len(alerts) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return alerts, nil
}

func runBenchmark(alerts []LabeledAlert, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledAlert, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for la := range work {
				start := time.Now()
				result, err := scoreAlert(client, baseURL, la)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", la.AlertID, err)
					}
					continue
				}

				// Track actual labels
				if la.Label == 1 {
					atomic.AddInt64(&metrics.TotalPositive, 1)
				} else {
					atomic.AddInt64(&metrics.TotalBenign, 1)
				}

				// Confusion matrix
				predicted := result.Decision == "escalate"
				actual := la.Label == 1

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					id := la.AlertID
					if len(id) > 16 {
						id = id[:16]
					}
					fmt.Printf("%s %-16s | Label: %d | Kestrel: %-8s (raw %.3f, cal %.3f)\n",
						status,
						id,
						la.Label,
						result.Decision,
						result.RawScore,
						result.Score,
					)
				}
			}
		}()
	}

	for _, la := range alerts {
		work <- la
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreAlert(client *http.Client, baseURL string, la LabeledAlert) (*ScoreResponse, error) {
	req := ScoreRequest{
		AlertID: la.AlertID,
		Alert:   la.Alert,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   True Positives:   %d\n", m.TotalPositive)
	fmt.Printf("   Benign:           %d\n", m.TotalBenign)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                          Predicted")
	fmt.Println("                  escalate     dismiss")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  T  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           B  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 TRIAGE METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of escalations, how many were real)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of real alerts, how many did we escalate)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct decisions)\n", accuracy)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalPositive > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalPositive) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalPositive) * 100
		fmt.Printf("   Attacks Escalated: %d / %d (%.2f%%)\n", m.TruePositives, m.TotalPositive, detectionRate)
		fmt.Printf("   Attacks Missed:    %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalPositive, missRate)
	}
	if m.TotalBenign > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalBenign) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalBenign, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		aps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f alerts/sec\n", aps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - escalating almost every real alert")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but some real alerts slip through")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant misses")
	} else {
		fmt.Println("   ❌ Poor recall - most real alerts are being dismissed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - escalations are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - analysts will see many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
