package main

import (
	"context"
	"fmt"
	"time"
)

// waitForRecord blocks until the execution's history row appears, the
// timeout passes, or the context is cancelled. The row is written once
// output is parsed and knowledge is stored, just before the terminal
// event is emitted, so its presence means the run's work is done.
func waitForRecord(ctx context.Context, app *App, executionID string, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = app.Coordinator.Cancel(executionID)
			return
		case <-deadline.C:
			fmt.Println("timed out waiting for execution to finish")
			return
		case <-ticker.C:
			records, err := app.Store.ListExecutions("", 200)
			if err != nil {
				continue
			}
			for i := range records {
				if records[i].ExecutionID == executionID {
					return
				}
			}
		}
	}
}
