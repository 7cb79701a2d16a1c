package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pointify/ledger/internal/identity"
	"github.com/pointify/ledger/internal/models"
)

// Config holds the benchmark settings
var (
	targetURL     string
	concurrency   int
	duration      time.Duration
	workload      string
	totalAccounts int
	jwtSecret     string
	jwtIssuer     string
)

// Metrics
var (
	totalRequests uint64
	success201    uint64
	fail422       uint64 // Business rejections (insufficient balance, limits)
	fail503       uint64 // Conflicts the ledger gave up on
	failOther     uint64
)

var tokens []string

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&totalAccounts, "accounts", 1000, "Number of seeded accounts (ids 1..N)")
	flag.StringVar(&jwtSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "HS256 secret shared with the API")
	flag.StringVar(&jwtIssuer, "jwt-issuer", os.Getenv("JWT_ISSUER"), "Issuer expected by the API")
}

func main() {
	flag.Parse()
	if jwtSecret == "" {
		log.Fatal("jwt secret is required (-jwt-secret or JWT_SECRET)")
	}
	if totalAccounts < 2 {
		log.Fatal("need at least two accounts")
	}

	signer := identity.NewJWTProvider(jwtSecret, jwtIssuer)
	tokens = make([]string, totalAccounts+1)
	for id := 1; id <= totalAccounts; id++ {
		tok, err := signer.Sign(int64(id), "", duration+time.Hour)
		if err != nil {
			log.Fatalf("Signing token for %d: %v", id, err)
		}
		tokens[id] = tok
	}

	before := totalPoints()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Points in system: %d", workload, concurrency, duration, before)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	elapsed := time.Since(start)

	after := totalPoints()
	if after != before {
		log.Printf("CONSERVATION VIOLATED: %d points before, %d after", before, after)
	}
	printResults(elapsed, before == after)
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		from, to := generateAccounts()

		body, _ := json.Marshal(models.TransferRequest{
			Recipient:   fmt.Sprintf("user%d@bench.pointify.dev", to),
			Amount:      100,
			Description: "bench",
		})

		req, _ := http.NewRequest(http.MethodPost, targetURL+"/api/v1/transfers", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tokens[from])
		req.Header.Set("Idempotency-Key", ulid.Make().String())

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		case http.StatusServiceUnavailable:
			atomic.AddUint64(&fail503, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

// generateAccounts picks a sender and a distinct recipient. The hotspot
// workload sends 90% of traffic between accounts 1 and 2 to force lock
// contention.
func generateAccounts() (int64, int64) {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		if rand.Intn(2) == 0 {
			return 1, 2
		}
		return 2, 1
	}

	a := rand.Intn(totalAccounts) + 1
	b := rand.Intn(totalAccounts-1) + 1
	if b >= a {
		b++
	}
	return int64(a), int64(b)
}

// totalPoints sums every seeded account's balance through the API.
func totalPoints() int64 {
	client := &http.Client{Timeout: 5 * time.Second}
	var sum int64
	for id := 1; id <= totalAccounts; id++ {
		req, _ := http.NewRequest(http.MethodGet, targetURL+"/api/v1/balance", nil)
		req.Header.Set("Authorization", "Bearer "+tokens[id])
		resp, err := client.Do(req)
		if err != nil {
			log.Fatalf("Balance of %d: %v", id, err)
		}

		var env struct {
			Data models.BalanceResponse `json:"data"`
		}
		err = json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			log.Fatalf("Balance of %d: status %d: %v", id, resp.StatusCode, err)
		}
		sum += env.Data.Balances.Points
	}
	return sum
}

type results struct {
	Workload       string  `json:"workload"`
	DurationSec    float64 `json:"duration_sec"`
	TotalRequests  uint64  `json:"total_requests"`
	ThroughputTPS  float64 `json:"throughput_tps"`
	SuccessCreated uint64  `json:"success_created"`
	Rejected       uint64  `json:"rejected"`
	AbortsConflict uint64  `json:"aborts_conflict"`
	AbortRatePct   float64 `json:"abort_rate_pct"`
	Errors         uint64  `json:"errors"`
	Conserved      bool    `json:"conserved"`
}

func printResults(d time.Duration, conserved bool) {
	res := results{
		Workload:       workload,
		DurationSec:    d.Seconds(),
		TotalRequests:  atomic.LoadUint64(&totalRequests),
		SuccessCreated: atomic.LoadUint64(&success201),
		Rejected:       atomic.LoadUint64(&fail422),
		AbortsConflict: atomic.LoadUint64(&fail503),
		Errors:         atomic.LoadUint64(&failOther),
		Conserved:      conserved,
	}
	if res.TotalRequests > 0 {
		res.ThroughputTPS = float64(res.TotalRequests) / d.Seconds()
		res.AbortRatePct = float64(res.AbortsConflict) / float64(res.TotalRequests) * 100
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(res)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("Saving %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(res)
}
