//go:build ignore
// +build ignore

// Package main is a manual stress test for the collect step of the rental API.
//
// Usage:
//
//	JWT_SECRET=<secret> go run ./scripts/concurrency_test.go [copies] [rentals]
//
// What it does:
//  1. Mints an admin token with JWT_SECRET and adds a fresh title with `copies` copies.
//  2. Registers `rentals` verified patrons; each requests the title and an admin approves it.
//  3. Fires every collect at once and tallies 200s against 409s.
//  4. Reads GET /titles/:id/audit to confirm the counter matches the ledger.
//
// The run fails unless exactly `copies` collects succeed.
//
// Prerequisites:
//   - Server must be running with the same JWT_SECRET.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SatyamPandey-07/lms--3/internal/auth"
	"github.com/SatyamPandey-07/lms--3/internal/models"
)

const defaultServerAddr = "http://localhost:8080"

type collectResult struct {
	RentalID   string
	StatusCode int
	Err        error
}

type client struct {
	base string
	http *http.Client
}

func (c *client) call(method, path, token string, body, out any) (int, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("bad JSON: %s", raw)
		}
	}
	return resp.StatusCode, nil
}

func mustStatus(code int, err error, want int, what string) {
	if err != nil {
		log.Fatalf("%s: %v", what, err)
	}
	if code != want {
		log.Fatalf("%s: status %d, want %d", what, code, want)
	}
}

func intArg(i, def int) int {
	if len(os.Args) <= i {
		return def
	}
	n, err := strconv.Atoi(os.Args[i])
	if err != nil || n < 0 {
		log.Fatalf("argument %d must be a non-negative integer", i)
	}
	return n
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET must be set to the server's signing secret")
	}
	copies := intArg(1, 3)
	rentals := intArg(2, 20)

	c := &client{base: serverAddr, http: &http.Client{Timeout: 10 * time.Second}}
	adminToken, err := auth.Issue(secret, models.Actor{ID: uuid.New(), Role: models.RoleAdmin}, time.Hour)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("=== Rental Collect Concurrency Test ===\n")
	fmt.Printf("Server  : %s\n", serverAddr)
	fmt.Printf("Copies  : %d\n", copies)
	fmt.Printf("Rentals : %d\n\n", rentals)

	var title models.Title
	code, err := c.call(http.MethodPost, "/titles", adminToken, map[string]any{
		"title":  "Stress Test",
		"author": "Load Generator",
		"isbn":   uuid.NewString()[:13],
		"copies": copies,
	}, &title)
	mustStatus(code, err, http.StatusCreated, "add title")

	rentalIDs := make([]string, 0, rentals)
	for i := 0; i < rentals; i++ {
		var patron models.Patron
		code, err = c.call(http.MethodPost, "/patrons", adminToken, map[string]any{
			"fullname":    "Patron",
			"surname":     strconv.Itoa(i),
			"email":       uuid.NewString() + "@stress.test",
			"is_verified": true,
		}, &patron)
		mustStatus(code, err, http.StatusCreated, "register patron")

		patronToken, err := auth.Issue(secret, models.Actor{ID: patron.ID, Role: models.RolePatron}, time.Hour)
		if err != nil {
			log.Fatal(err)
		}
		var rental models.Rental
		code, err = c.call(http.MethodPost, "/rentals", patronToken, map[string]any{"title_id": title.ID}, &rental)
		mustStatus(code, err, http.StatusCreated, "request rental")

		code, err = c.call(http.MethodPost, "/rentals/"+rental.ID.String()+"/approve", adminToken, nil, nil)
		mustStatus(code, err, http.StatusOK, "approve rental")
		rentalIDs = append(rentalIDs, rental.ID.String())
	}

	results := make([]collectResult, len(rentalIDs))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, id := range rentalIDs {
		wg.Add(1)
		go func(idx int, rentalID string) {
			defer wg.Done()
			<-start
			code, err := c.call(http.MethodPost, "/rentals/"+rentalID+"/collect", adminToken, nil, nil)
			results[idx] = collectResult{RentalID: rentalID, StatusCode: code, Err: err}
		}(i, id)
	}

	fmt.Println("Firing all collects simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var collected, outOfStock, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] rental=%-38s err=%v\n", r.RentalID, r.Err)
		case r.StatusCode == http.StatusOK:
			collected++
		case r.StatusCode == http.StatusConflict:
			outOfStock++
		default:
			failures++
			fmt.Printf("  [FAIL] rental=%-38s status=%d\n", r.RentalID, r.StatusCode)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Collected    : %d\n", collected)
	fmt.Printf("Out of stock : %d\n", outOfStock)
	fmt.Printf("Failures     : %d\n\n", failures)

	var audit struct {
		OwnedCopies      int   `json:"owned_copies"`
		AvailableCopies  int   `json:"available_copies"`
		CollectedRentals int64 `json:"collected_rentals"`
	}
	code, err = c.call(http.MethodGet, "/titles/"+title.ID.String()+"/audit", adminToken, nil, &audit)
	if err != nil || code != http.StatusOK {
		log.Fatalf("audit failed: status=%d err=%v", code, err)
	}
	fmt.Println("--- Invariant Check ---")
	fmt.Printf("owned=%d available=%d collected=%d\n", audit.OwnedCopies, audit.AvailableCopies, audit.CollectedRentals)

	want := copies
	if rentals < copies {
		want = rentals
	}
	if failures > 0 || collected != want || audit.AvailableCopies != copies-want {
		fmt.Printf("\n[FAIL] expected %d collects and %d copies left\n", want, copies-want)
		os.Exit(1)
	}
	fmt.Println("\n[OK] no copy was handed out twice")
}
