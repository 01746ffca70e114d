package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/seat-booking/internal/adapter/handler"
	"github.com/rl1809/seat-booking/internal/core/domain"
)

const (
	httpAddr       = "http://localhost:8080"
	grpcAddr       = "localhost:50051"
	initialUnits   = 20
	totalRequests  = 50
	duplicateEvery = 10
)

func main() {
	ctx := context.Background()
	client := &http.Client{Timeout: 10 * time.Second}

	// Register a fresh resource for this run
	var resource domain.Resource
	if err := postJSON(ctx, client, httpAddr+"/resources", domain.RegisterResourceRequest{
		Title:      fmt.Sprintf("stress-%d", time.Now().UnixNano()),
		TotalUnits: initialUnits,
		StartsAt:   time.Now().Add(24 * time.Hour),
	}, &resource); err != nil {
		log.Fatalf("failed to register resource: %v", err)
	}

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to dial grpc: %v", err)
	}
	defer conn.Close()
	bookings := handler.NewBookingClient(conn)

	// Counters
	var createdCount, duplicateCount, rejectedCount, errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			// every tenth request retries an earlier key
			key := fmt.Sprintf("%s-req-%d", resource.ID, n)
			if n > 0 && n%duplicateEvery == 0 {
				key = fmt.Sprintf("%s-req-%d", resource.ID, n-1)
			}
			reply, err := bookings.CreateBooking(ctx, &handler.CreateBookingRequest{
				ResourceID:     resource.ID,
				RequesterID:    fmt.Sprintf("user-%d", n),
				UnitCount:      1,
				IdempotencyKey: key,
			})
			switch {
			case err == nil && reply.Created:
				createdCount.Add(1)
			case err == nil:
				duplicateCount.Add(1)
			case status.Code(err) == codes.Aborted:
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("request %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	created := createdCount.Load()
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Units:    %d\n", initialUnits)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Created:          %d\n", created)
	fmt.Printf("Duplicates:       %d\n", duplicateCount.Load())
	fmt.Printf("Rejected:         %d\n", rejectedCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if created == initialUnits {
		fmt.Printf("PASS: Exactly %d bookings created\n", initialUnits)
	} else {
		fmt.Printf("FAIL: Expected %d bookings, got %d\n", initialUnits, created)
	}

	var final domain.Resource
	if err := getJSON(ctx, client, httpAddr+"/resources/"+resource.ID, &final); err != nil {
		log.Fatalf("failed to read resource: %v", err)
	}
	fmt.Printf("Final Available:  %d\n", final.AvailableUnits)
	if final.AvailableUnits == 0 {
		fmt.Println("PASS: Units depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected 0 available, got %d\n", final.AvailableUnits)
	}

	var report domain.ReconciliationReport
	if err := getJSON(ctx, client, httpAddr+"/reconciliation", &report); err != nil {
		log.Fatalf("failed to reconcile: %v", err)
	}
	if report.Consistent() {
		fmt.Printf("PASS: %d resources reconciled\n", report.Resources)
	} else {
		fmt.Printf("FAIL: %d reconciliation violations\n", len(report.Violations))
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req, out)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return do(client, req, out)
}

func do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
