package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/finance-ledger/internal/logger"
	"github.com/punchamoorthee/finance-ledger/internal/models"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	numAccounts int
	ownerID     string
)

// Metrics
var (
	totalRequests uint64
	success2xx    uint64
	fail409       uint64 // Conflicts (Aborts)
	failOther     uint64
)

var log = logger.New("info", true)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&numAccounts, "accounts", 20, "Accounts created for the run")
	flag.StringVar(&ownerID, "owner", "", "Owner id sent as X-User-ID (default: generated per run)")
}

func main() {
	flag.Parse()
	if ownerID == "" {
		ownerID = fmt.Sprintf("bench-%d", time.Now().UnixNano())
	}
	log.Info().Str("workload", workload).Int("workers", concurrency).Dur("duration", duration).
		Str("owner_id", ownerID).Msg("Starting Benchmark")

	client := &http.Client{Timeout: 5 * time.Second}
	accounts, err := setupAccounts(client)
	if err != nil {
		log.Fatal().Err(err).Msg("Account setup failed")
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, accounts)
	}

	wg.Wait()
	elapsed := time.Since(start)

	mismatches, err := verify(client, accounts)
	if err != nil {
		log.Fatal().Err(err).Msg("Verification failed")
	}
	printResults(elapsed, mismatches)
	if mismatches > 0 {
		os.Exit(1)
	}
}

func setupAccounts(client *http.Client) ([]string, error) {
	ids := make([]string, 0, numAccounts)
	for i := 0; i < numAccounts; i++ {
		var acc models.Account
		code, err := call(client, "POST", "/api/v1/accounts", models.AccountRequest{
			Name: fmt.Sprintf("bench-%d", i), Type: "CURRENT", Balance: decimal.NewFromInt(1000),
		}, &acc)
		if err != nil {
			return nil, err
		}
		if code != http.StatusCreated {
			return nil, fmt.Errorf("create account: unexpected status %d", code)
		}
		ids = append(ids, acc.ID)
	}
	return ids, nil
}

// worker mixes creates, updates (some reassigning accounts) and deletes over
// the transactions it owns.
func worker(wg *sync.WaitGroup, start time.Time, accounts []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	var owned []string

	for time.Since(start) < duration {
		roll := rand.Float32()
		var (
			code int
			err  error
		)

		switch {
		case roll < 0.2 && len(owned) > 0:
			id := owned[rand.Intn(len(owned))]
			code, err = call(client, "PUT", "/api/v1/transactions/"+id, randomTxn(accounts), nil)
		case roll < 0.3 && len(owned) > 0:
			n := rand.Intn(min(len(owned), 5)) + 1
			batch := owned[len(owned)-n:]
			code, err = call(client, "POST", "/api/v1/transactions/bulk-delete", models.BulkDeleteRequest{IDs: batch}, nil)
			if err == nil && code == http.StatusOK {
				owned = owned[:len(owned)-n]
			}
		default:
			var txn models.Transaction
			code, err = call(client, "POST", "/api/v1/transactions", randomTxn(accounts), &txn)
			if err == nil && code == http.StatusCreated {
				owned = append(owned, txn.ID)
			}
		}

		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		atomic.AddUint64(&totalRequests, 1)
		switch {
		case code >= 200 && code < 300:
			atomic.AddUint64(&success2xx, 1)
		case code == http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func randomTxn(accounts []string) models.TransactionRequest {
	typ := "EXPENSE"
	if rand.Float32() < 0.4 {
		typ = "INCOME"
	}
	return models.TransactionRequest{
		AccountID: pickAccount(accounts),
		Type:      typ,
		Amount:    decimal.New(int64(rand.Intn(10000)+1), -2),
		Date:      time.Now().UTC().Format(models.DateLayout),
		Category:  "bench",
	}
}

func pickAccount(accounts []string) string {
	// Hotspot: 90% of traffic goes to the first two accounts
	if workload == "hotspot" && len(accounts) >= 2 && rand.Float32() < 0.90 {
		return accounts[rand.Intn(2)]
	}
	return accounts[rand.Intn(len(accounts))]
}

// verify checks every account balance against its opening balance plus the
// signed sum of its remaining transactions.
func verify(client *http.Client, accounts []string) (int, error) {
	opening := decimal.NewFromInt(1000)
	mismatches := 0
	for _, id := range accounts {
		var view models.AccountWithTransactions
		code, err := call(client, "GET", "/api/v1/accounts/"+id, nil, &view)
		if err != nil {
			return 0, err
		}
		if code != http.StatusOK {
			return 0, fmt.Errorf("get account %s: unexpected status %d", id, code)
		}

		want := opening
		for _, t := range view.Transactions {
			amount := decimal.NewFromFloat(t.Amount)
			if t.Type == "EXPENSE" {
				amount = amount.Neg()
			}
			want = want.Add(amount)
		}
		got := decimal.NewFromFloat(view.Balance)
		if !got.Equal(want) {
			mismatches++
			log.Error().Str("account_id", id).Str("balance", got.String()).Str("expected", want.String()).
				Msg("Balance drift detected")
		}
	}
	return mismatches, nil
}

func call(client *http.Client, method, path string, payload, out interface{}) (int, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequest(method, targetURL+path, &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", ownerID)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func printResults(d time.Duration, mismatches int) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&success2xx)
	f409 := atomic.LoadUint64(&fail409)
	fErr := atomic.LoadUint64(&failOther)

	var abortRate float64
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    float64(total) / d.Seconds(),
		"success":           ok,
		"aborts_conflict":   f409,
		"abort_rate_pct":    abortRate,
		"errors":            fErr,
		"accounts_verified": numAccounts,
		"balance_drift":     mismatches,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Error().Err(err).Msg("Could not save results")
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
