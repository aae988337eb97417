// Load generator: seeds a save dir with synthetic tasks and optionally
// drains them with in-process workers, reporting throughput.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"sweepq/internal/cfgtree"
	"sweepq/internal/executor"
	"sweepq/internal/store"
	"sweepq/internal/worker"
)

func main() {
	saveDir := flag.String("save-dir", os.Getenv("SWEEPQ_SAVE_DIR"), "Save directory to seed")
	numTasks := flag.Int("tasks", 1000, "Number of tasks to enqueue")
	payloadSize := flag.Int("payload-size", 100, "Size of the random payload per task, in bytes")
	workers := flag.Int("workers", 0, "Drain with this many workers after seeding (0 = seed only)")
	sleep := flag.Duration("sleep", 0, "Simulated work per task")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	if *saveDir == "" {
		log.Fatal("save dir is required via -save-dir or SWEEPQ_SAVE_DIR")
	}

	r := rand.New(rand.NewSource(*seed))
	ctx := context.Background()

	st, err := store.Open(executor.StorePath(*saveDir))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	log.Printf("Enqueuing %d tasks...", *numTasks)
	start := time.Now()

	tasks := make([]any, *numTasks)
	for i := range tasks {
		payload := make([]byte, *payloadSize)
		r.Read(payload)
		tasks[i] = map[string]any{
			"index":   i,
			"payload": fmt.Sprintf("%x", payload),
		}
	}
	if err := st.Enqueue(ctx, tasks); err != nil {
		log.Fatalf("Failed to enqueue: %v", err)
	}
	log.Printf("Seeded in %v", time.Since(start))

	if *workers <= 0 {
		return
	}

	log.Printf("Draining with %d workers...", *workers)
	start = time.Now()

	fn := func(cfg cfgtree.Tree) (any, error) {
		if *sleep > 0 {
			time.Sleep(*sleep)
		}
		return cfg["index"], nil
	}

	errs := make(chan error, *workers)
	for i := 0; i < *workers; i++ {
		go func() {
			errs <- worker.Loop(ctx, worker.Options{Store: st, Func: fn})
		}()
	}
	for i := 0; i < *workers; i++ {
		if err := <-errs; err != nil {
			log.Fatalf("Worker failed: %v", err)
		}
	}

	elapsed := time.Since(start)
	log.Printf("Drained %d tasks in %v (%.0f tasks/s)",
		*numTasks, elapsed, float64(*numTasks)/elapsed.Seconds())
}
