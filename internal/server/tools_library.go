package server

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wb1016/copernicus-mcp/internal/library"
	"github.com/wb1016/copernicus-mcp/internal/pathutil"
)

func (s *Server) registerLibraryTools() {
	s.mcp.AddTool(mcp.NewTool("list_downloaded_files",
		mcp.WithDescription("List downloaded files, newest first"),
		mcp.WithString("download_dir",
			mcp.Description("Directory to inspect; defaults to the configured download dir")),
		mcp.WithString("file_type",
			mcp.Description("Only list files of this kind"),
			mcp.Enum("full", "quicklook", "compressed")),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to return"),
			mcp.DefaultNumber(50)),
	), s.handleListFiles)

	s.mcp.AddTool(mcp.NewTool("cleanup_downloads",
		mcp.WithDescription("Delete downloaded files by age or shrink the directory to a size cap; dry-run by default"),
		mcp.WithString("download_dir",
			mcp.Description("Directory to clean; defaults to the configured download dir")),
		mcp.WithNumber("older_than_days",
			mcp.Description("Delete files older than this many days")),
		mcp.WithNumber("max_size_mb",
			mcp.Description("Delete oldest files until the directory fits under this size")),
		mcp.WithString("file_type",
			mcp.Description("Only consider files of this kind"),
			mcp.Enum("full", "quicklook", "compressed")),
		mcp.WithBoolean("dry_run",
			mcp.Description("Report what would be deleted without deleting"),
			mcp.DefaultBool(true)),
	), s.handleCleanup)

	s.mcp.AddTool(mcp.NewTool("get_download_statistics",
		mcp.WithDescription("Summarize the download library: totals and breakdowns by mission, type, and month"),
		mcp.WithString("download_dir",
			mcp.Description("Directory to inspect; defaults to the configured download dir")),
	), s.handleStatistics)
}

type listResponse struct {
	Directory  string                `json:"directory"`
	Count      int                   `json:"count"`
	TotalBytes int64                 `json:"total_bytes"`
	TotalSize  string                `json:"total_size"`
	Files      []library.ManagedFile `json:"files"`
}

// fileKindArg decodes the optional file_type argument; absent means no filter.
func fileKindArg(req mcp.CallToolRequest) (pathutil.Kind, error) {
	raw := req.GetString("file_type", "")
	if raw == "" {
		return "", nil
	}
	return pathutil.ParseKind(raw)
}

func (s *Server) handleListFiles(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := fileKindArg(req)
	if err != nil {
		return validationError(err), nil
	}
	dir := req.GetString("download_dir", s.cfg.Download.Dir)
	limit := req.GetInt("limit", 50)

	files, err := s.library.List(dir, kind, limit)
	if err != nil {
		return s.toolError("list_downloaded_files", err), nil
	}
	resp := listResponse{Directory: dir, Count: len(files), Files: files}
	for _, f := range files {
		resp.TotalBytes += f.SizeBytes
	}
	resp.TotalSize = humanize.Bytes(uint64(resp.TotalBytes))
	return jsonResult(resp)
}

type cleanupResponse struct {
	Directory        string                 `json:"directory"`
	DryRun           bool                   `json:"dry_run"`
	PlannedCount     int                    `json:"planned_count"`
	ReclaimableBytes int64                  `json:"reclaimable_bytes"`
	ReclaimableSize  string                 `json:"reclaimable_size"`
	Planned          []library.ManagedFile  `json:"planned"`
	Executed         *library.CleanupResult `json:"executed,omitempty"`
}

func (s *Server) handleCleanup(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	olderThanDays := req.GetInt("older_than_days", 0)
	maxSizeMB := req.GetFloat("max_size_mb", 0)
	if olderThanDays <= 0 && maxSizeMB <= 0 {
		return validationError(fmt.Errorf("at least one of older_than_days or max_size_mb is required")), nil
	}
	kind, err := fileKindArg(req)
	if err != nil {
		return validationError(err), nil
	}
	dir := req.GetString("download_dir", s.cfg.Download.Dir)
	dryRun := req.GetBool("dry_run", true)

	policy := library.CleanupPolicy{
		MaxAge:        time.Duration(olderThanDays) * 24 * time.Hour,
		MaxTotalBytes: int64(maxSizeMB * 1024 * 1024),
		Kind:          kind,
		DryRun:        dryRun,
	}
	if !dryRun {
		s.logger.Warn().Str("dir", dir).Msg("Executing cleanup requested over MCP")
	}

	plan, result, err := s.library.Cleanup(dir, policy)
	if err != nil {
		return s.toolError("cleanup_downloads", err), nil
	}
	return jsonResult(cleanupResponse{
		Directory:        dir,
		DryRun:           dryRun,
		PlannedCount:     len(plan.Entries),
		ReclaimableBytes: plan.TotalBytes,
		ReclaimableSize:  humanize.Bytes(uint64(plan.TotalBytes)),
		Planned:          plan.Entries,
		Executed:         result,
	})
}

type statsResponse struct {
	Directory string `json:"directory"`
	library.Stats
}

func (s *Server) handleStatistics(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := req.GetString("download_dir", s.cfg.Download.Dir)

	stats, err := s.library.Statistics(dir)
	if err != nil {
		return s.toolError("get_download_statistics", err), nil
	}
	return jsonResult(statsResponse{Directory: dir, Stats: *stats})
}
