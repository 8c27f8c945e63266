// Package tasks wires the built-in maintenance tasks into the scheduler.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/wb1016/copernicus-mcp/internal/config"
	"github.com/wb1016/copernicus-mcp/internal/library"
	"github.com/wb1016/copernicus-mcp/internal/pathutil"
	"github.com/wb1016/copernicus-mcp/internal/scheduler"
)

// CleanupTaskID identifies the automatic download cleanup task.
const CleanupTaskID = "download-cleanup"

// CleanupTask evicts downloaded files per the configured retention
// policy. Scheduled runs are always real runs, never dry-run.
type CleanupTask struct {
	library *library.Service
	root    string
	policy  library.CleanupPolicy
	logger  zerolog.Logger
}

// NewCleanupTask creates the cleanup task over the given download root.
func NewCleanupTask(lib *library.Service, root string, policy library.CleanupPolicy, logger zerolog.Logger) *CleanupTask {
	policy.DryRun = false
	return &CleanupTask{
		library: lib,
		root:    root,
		policy:  policy,
		logger:  logger.With().Str("task", CleanupTaskID).Logger(),
	}
}

// Run plans and executes one cleanup pass.
func (t *CleanupTask) Run(ctx context.Context) error {
	t.logger.Info().Str("root", t.root).Msg("Starting download cleanup")

	plan, result, err := t.library.Cleanup(t.root, t.policy)
	if err != nil {
		t.logger.Error().Err(err).Msg("Cleanup failed")
		return err
	}
	if len(plan.Entries) == 0 {
		t.logger.Info().Msg("Nothing to clean up")
		return nil
	}

	t.logger.Info().
		Int("planned", len(plan.Entries)).
		Int("deleted", len(result.Deleted)).
		Int("failed", len(result.Failed)).
		Str("reclaimed", humanize.Bytes(uint64(result.BytesReclaimed))).
		Msg("Download cleanup completed")

	if len(result.Failed) > 0 {
		return fmt.Errorf("cleanup left %d of %d files undeleted", len(result.Failed), len(plan.Entries))
	}
	return nil
}

// RegisterCleanupTask registers the cleanup task when it is enabled in
// config. A disabled task registers nothing.
func RegisterCleanupTask(sched *scheduler.Scheduler, lib *library.Service, cfg config.CleanupConfig, root string, logger zerolog.Logger) error {
	if !cfg.Enabled {
		logger.Debug().Msg("Download cleanup task disabled")
		return nil
	}

	policy := library.CleanupPolicy{
		MaxAge:        time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		MaxTotalBytes: int64(cfg.MaxTotalSizeMB * 1024 * 1024),
	}
	if cfg.Kind != "" {
		kind, err := pathutil.ParseKind(cfg.Kind)
		if err != nil {
			return fmt.Errorf("cleanup.kind: %w", err)
		}
		policy.Kind = kind
	}

	cron := cfg.Cron
	if cron == "" {
		cron = "0 3 * * *"
	}

	task := NewCleanupTask(lib, root, policy, logger)
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          CleanupTaskID,
		Name:        "Download Cleanup",
		Description: "Deletes downloaded files exceeding the configured age or total size",
		Cron:        cron,
		RunOnStart:  false,
		Func:        task.Run,
	})
}
