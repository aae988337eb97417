// Store consistency checker: scans a save dir's task database and
// reports rows that violate the queue's invariants.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"sweepq/internal/executor"
	"sweepq/internal/store"
	"sweepq/internal/task"
)

func main() {
	saveDir := flag.String("save-dir", os.Getenv("SWEEPQ_SAVE_DIR"), "Save directory to inspect")
	flag.Parse()

	if *saveDir == "" {
		log.Fatal("save dir is required via -save-dir or SWEEPQ_SAVE_DIR")
	}

	ctx := context.Background()
	st, err := store.Open(executor.StorePath(*saveDir))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	records, err := st.Records(ctx)
	if err != nil {
		log.Fatalf("Failed to read store: %v", err)
	}
	fmt.Printf("Total tasks in store: %d\n", len(records))

	counts, err := st.Counts(ctx)
	if err != nil {
		log.Fatalf("Failed to count tasks: %v", err)
	}
	for _, s := range []store.Status{store.StatusPending, store.StatusRunning, store.StatusDone, store.StatusFailed} {
		fmt.Printf("  %-8s %d\n", s, counts[s])
	}

	failures := 0

	// 1. Ids must be the content hash of the payload.
	mismatched := 0
	for _, r := range records {
		v, err := task.Unmarshal(r.TaskInfo)
		if err != nil {
			mismatched++
			continue
		}
		id, err := task.Hash(v)
		if err != nil || id != r.TaskID {
			mismatched++
		}
	}
	failures += report(mismatched, "rows whose id does not match their payload hash")

	// 2. Completed rows must carry a finish timestamp.
	unfinished := 0
	for _, r := range records {
		if (r.Status == store.StatusDone || r.Status == store.StatusFailed) && !r.FinishedAt.Valid {
			unfinished++
		}
	}
	failures += report(unfinished, "completed rows without a finish timestamp")

	// 3. Failed rows must carry an error message.
	silent := 0
	for _, r := range records {
		if r.Status == store.StatusFailed && (!r.Error.Valid || r.Error.String == "") {
			silent++
		}
	}
	failures += report(silent, "failed rows without an error message")

	// 4. Claimed rows must name their claiming worker.
	unowned := 0
	for _, r := range records {
		if r.Status != store.StatusPending && !r.Node.Valid {
			unowned++
		}
	}
	failures += report(unowned, "claimed rows without an owner")

	// Running rows are not an invariant violation, but after a run has
	// ended they mean a worker died mid-task. Such rows are never
	// reclaimed; flag them for the operator.
	if n := counts[store.StatusRunning]; n > 0 {
		fmt.Printf("[WARN] %d rows still running; if no workers are alive these tasks are stuck\n", n)
	}

	if failures > 0 {
		os.Exit(1)
	}
}

func report(count int, what string) int {
	if count > 0 {
		fmt.Printf("[FAIL] Found %d %s\n", count, what)
		return 1
	}
	fmt.Printf("[PASS] No %s\n", what)
	return 0
}
