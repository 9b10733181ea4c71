// cycle-sweeper abandons reporting cycles that have sat untouched past a
// cutoff, running their compensating deletes so the owning station's
// sub-ledgers realign. Sessions die mid-cycle; this job is why recovery
// never depends on the session that started the cycle.
//
// Usage:
//
//	DB_* and REDIS_* env as for the server, then:
//	go run ./cmd/cycle-sweeper            # one pass, 6h cutoff
//	SWEEP_INTERVAL_MINUTES=15 go run ./cmd/cycle-sweeper   # run forever
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"bitbucket.org/mmdatafocus/stationops_backend/utils"
	"bitbucket.org/mmdatafocus/stationops_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	logger := config.GetLogger()

	cutoffHours := 6
	if v := os.Getenv("SWEEP_CUTOFF_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cutoffHours = n
		}
	}
	olderThan := time.Duration(cutoffHours) * time.Hour

	ctx := context.Background()
	ctx = utils.SetUserNameInContext(ctx, "cycle-sweeper")
	ctx = utils.SetOriginIpInContext(ctx, "internal")

	interval := 0
	if v := os.Getenv("SWEEP_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			interval = n
		}
	}

	for {
		abandoned, err := workflow.AbandonStaleCycles(ctx, olderThan)
		if err != nil {
			config.LogError(logger, "cycle-sweeper", "main", "Error sweeping stale cycles", nil, err)
			if interval == 0 {
				os.Exit(1)
			}
		} else {
			logger.WithFields(logrus.Fields{
				"abandoned": abandoned,
				"cutoff":    olderThan.String(),
			}).Info("stale cycle sweep complete")
		}
		if interval == 0 {
			fmt.Printf("abandoned %d stale cycle(s)\n", abandoned)
			return
		}
		time.Sleep(time.Duration(interval) * time.Minute)
	}
}
