// Package tasks defines the scheduled background tasks: loop-detector
// expiry sweeps, registry statistics logging, and database maintenance.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/textilepro/businessbot/internal/database"
	"github.com/textilepro/businessbot/internal/loopdetect"
)

const maintenanceTimeout = 5 * time.Minute

// ScheduledTaskFunc is the signature of a runnable scheduled task.
type ScheduledTaskFunc func(ctx context.Context) error

// TaskDeps provides dependencies for scheduled tasks.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Detector *loopdetect.Detector
}

// RegisterAllTasks returns the map of task name to task function. Names must
// match the scheduler.tasks keys in configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	return map[string]ScheduledTaskFunc{
		"detector_sweep": newDetectorSweepTask(deps),
		"registry_stats": newRegistryStatsTask(deps),
		"db_maintenance": newMaintenanceTask(deps),
	}
}

// newDetectorSweepTask expires stale fingerprints even when no traffic
// arrives to trigger a passive sweep, so idle chats don't pin memory.
func newDetectorSweepTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		deps.Detector.Sweep()

		stats := deps.Detector.Stats()
		deps.Logger.InfoContext(ctx, "Loop detector state",
			"tracked_chats", stats.TrackedChats,
			"tracked_messages", stats.TrackedMessages,
			"live_fingerprints", stats.LiveFingerprints)
		return nil
	}
}

// newRegistryStatsTask logs ownership registry counters for monitoring.
func newRegistryStatsTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		stats, err := deps.Store.ConnectionStats(ctx)
		if err != nil {
			return err
		}

		deps.Logger.InfoContext(ctx, "Ownership registry state",
			"active_connections", stats.ActiveConnections,
			"total_connections", stats.TotalConnections,
			"inactive_connections", stats.InactiveConnections,
			"storage_bytes", stats.StorageSizeBytes)
		return nil
	}
}

// newMaintenanceTask runs SQLite maintenance.
func newMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		maintCtx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
		defer cancel()

		return deps.Store.RunMaintenance(maintCtx)
	}
}
