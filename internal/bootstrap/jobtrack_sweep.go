package bootstrap

import (
	"context"
	"time"

	"jobtrack_server/pkg/logger"
)

// RunSweep syncs every enabled account of every owner once. It is meant to be
// started by an external scheduler.
func RunSweep(ctx context.Context, deps *Dependencies) error {
	start := time.Now()
	logger.Info("[Sweep] starting")

	result, err := deps.Orchestrator.SyncAllOwners(ctx)
	if err != nil {
		logger.WithError(err).Error("[Sweep] failed after %s", time.Since(start))
		return err
	}

	logger.WithDuration(time.Since(start)).Info("[Sweep] done: processed=%d, new=%d, failed=%d, account_errors=%d",
		result.ProcessedCount, result.NewRecordCount, result.FailedCount, result.AccountErrors)
	return nil
}
