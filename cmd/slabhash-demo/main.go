// cmd/slabhash-demo drives a Table through a short insert/search/remove
// cycle with a periodic diagnostics logger running alongside, adapted from
// the teacher's cmd/server/main.go startup sequence (tracing init, banner,
// signal-driven shutdown) with the object-storage server swapped for a
// table.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/minio/slabhash"
	"github.com/minio/slabhash/internal/telemetry"
)

const (
	Version = "1.0.0"

	demoNumBuckets  = 1024
	demoMaxKV       = 1 << 16
	demoBatchSize   = 10000
)

func main() {
	fmt.Printf("slabhash demo v%s\n", Version)
	fmt.Println("GPU-style slab hash table, simulated over goroutines")
	fmt.Println("======================================================")
	fmt.Printf("CPUs: %d, GOMAXPROCS: %d\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))

	jaegerEndpoint := os.Getenv("JAEGER_ENDPOINT")
	if err := telemetry.InitTracing(jaegerEndpoint); err != nil {
		log.Printf("warning: failed to initialize tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(ctx)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("demo failed: %v", err)
	}
}

func run(ctx context.Context) error {
	table, err := slabhash.New[uint32, uint32](slabhash.Uint32Hash(0xC0FFEE), slabhash.Config{
		NumBuckets:       demoNumBuckets,
		MaxKeyValueCount: demoMaxKV,
		DeviceIndex:      0,
		Seed:             0xC0FFEE,
	})
	if err != nil {
		return fmt.Errorf("construct table: %w", err)
	}
	defer table.Close(ctx)
	table.StartDiagnosticsLogger(ctx, 2*time.Second)

	keys := make([]uint32, demoBatchSize)
	values := make([]uint32, demoBatchSize)
	seen := make(map[uint32]bool, demoBatchSize)
	rng := rand.New(rand.NewSource(1))
	for i := range keys {
		k := rng.Uint32()
		for seen[k] {
			k = rng.Uint32()
		}
		seen[k] = true
		keys[i] = k
		values[i] = uint32(i)
	}

	insertStart := time.Now()
	insertResults, err := table.Insert(ctx, keys, values)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	inserted := 0
	for _, r := range insertResults {
		if r.Inserted {
			inserted++
		}
	}
	fmt.Printf("inserted %d/%d keys in %s\n", inserted, len(keys), time.Since(insertStart))

	searchStart := time.Now()
	searchResults, err := table.Search(ctx, keys)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	found := 0
	for _, r := range searchResults {
		if r.Found {
			found++
		}
	}
	fmt.Printf("found %d/%d keys in %s\n", found, len(keys), time.Since(searchStart))

	loadFactor, err := table.ComputeLoadFactor(ctx)
	if err != nil {
		return fmt.Errorf("compute load factor: %w", err)
	}
	fmt.Printf("load factor: %.4f\n", loadFactor)

	removeStart := time.Now()
	removeResults, err := table.Remove(ctx, keys[:demoBatchSize/2])
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	removed := 0
	for _, r := range removeResults {
		if r.Removed {
			removed++
		}
	}
	fmt.Printf("removed %d/%d keys in %s\n", removed, demoBatchSize/2, time.Since(removeStart))

	return nil
}
