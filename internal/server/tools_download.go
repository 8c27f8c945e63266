package server

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wb1016/copernicus-mcp/internal/cdse"
	"github.com/wb1016/copernicus-mcp/internal/downloader"
	"github.com/wb1016/copernicus-mcp/internal/missions"
	"github.com/wb1016/copernicus-mcp/internal/pathutil"
)

func (s *Server) registerDownloadTools() {
	s.mcp.AddTool(mcp.NewTool("download_image",
		mcp.WithDescription("Download one satellite image product to local disk"),
		mcp.WithString("image_id", mcp.Required(),
			mcp.Description("Catalog product identifier")),
		mcp.WithString("mission",
			mcp.Description("Mission key"),
			mcp.DefaultString("sentinel-2")),
		mcp.WithString("download_type",
			mcp.Description("What to fetch"),
			mcp.Enum("full", "quicklook", "compressed"),
			mcp.DefaultString("full")),
		mcp.WithString("output_dir",
			mcp.Description("Destination directory; defaults to the configured download dir")),
	), s.handleDownloadImage)

	s.mcp.AddTool(mcp.NewTool("batch_download_images",
		mcp.WithDescription("Download several image products concurrently"),
		mcp.WithArray("image_ids", mcp.Required(),
			mcp.Description("Catalog product identifiers")),
		mcp.WithString("mission",
			mcp.Description("Mission key applied to every product"),
			mcp.DefaultString("sentinel-2")),
		mcp.WithString("download_type",
			mcp.Description("What to fetch for each product"),
			mcp.Enum("full", "quicklook", "compressed"),
			mcp.DefaultString("full")),
		mcp.WithString("output_dir",
			mcp.Description("Destination directory; defaults to the configured batch dir")),
		mcp.WithNumber("max_concurrent",
			mcp.Description("Parallel download limit"),
			mcp.DefaultNumber(3)),
	), s.handleBatchDownload)

	s.mcp.AddTool(mcp.NewTool("search_and_download",
		mcp.WithDescription("Search an area, pick the best matching image, and download it in one step"),
		mcp.WithString("geometry", mcp.Required(),
			mcp.Description("Location, typically a point [lon, lat]")),
		mcp.WithString("geometry_type",
			mcp.Description("How to interpret geometry"),
			mcp.Enum("point", "bbox", "polygon"),
			mcp.DefaultString("point")),
		mcp.WithString("mission",
			mcp.Description("Mission key"),
			mcp.DefaultString("sentinel-2")),
		mcp.WithString("start_date",
			mcp.Description("Range start, YYYY-MM-DD or RFC3339")),
		mcp.WithString("end_date",
			mcp.Description("Range end, YYYY-MM-DD or RFC3339")),
		mcp.WithNumber("max_cloud_cover",
			mcp.Description("Maximum cloud cover percentage (0-100)")),
		mcp.WithString("download_type",
			mcp.Description("What to fetch"),
			mcp.Enum("full", "quicklook", "compressed"),
			mcp.DefaultString("quicklook")),
		mcp.WithString("output_dir",
			mcp.Description("Destination directory; defaults to the configured search dir")),
		mcp.WithNumber("limit",
			mcp.Description("How many candidates to rank (1-50)"),
			mcp.DefaultNumber(5)),
	), s.handleSearchAndDownload)

	s.mcp.AddTool(mcp.NewTool("check_download_availability",
		mcp.WithDescription("Probe whether products are online and downloadable before committing to a transfer"),
		mcp.WithArray("image_ids", mcp.Required(),
			mcp.Description("Catalog product identifiers")),
	), s.handleCheckAvailability)

	s.mcp.AddTool(mcp.NewTool("get_product_download_links",
		mcp.WithDescription("List every known download endpoint for a product without fetching anything"),
		mcp.WithString("image_id", mcp.Required(),
			mcp.Description("Catalog product identifier")),
	), s.handleDownloadLinks)
}

type downloadReport struct {
	ImageID   string `json:"image_id"`
	Kind      string `json:"download_type"`
	Success   bool   `json:"success"`
	Path      string `json:"path,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Size      string `json:"size,omitempty"`
	Duration  string `json:"duration"`
	Attempts  int    `json:"attempts"`
	URL       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func reportOutcome(o downloader.Outcome) downloadReport {
	r := downloadReport{
		ImageID:   o.ProductID,
		Kind:      string(o.Kind),
		Success:   o.Success,
		Path:      o.Path,
		SizeBytes: o.Bytes,
		Duration:  o.Elapsed.Round(time.Millisecond).String(),
		Attempts:  o.Attempts,
		URL:       o.URL,
	}
	if o.Success {
		r.Size = humanize.Bytes(uint64(o.Bytes))
	} else if o.Err != nil {
		r.Error = o.Err.Error()
		r.Reason = o.Reason
	}
	return r
}

// downloadArgs decodes the arguments shared by the download tools. The kind
// and mission are validated here so a bad request never reaches the network.
func (s *Server) downloadArgs(req mcp.CallToolRequest, defaultDir string) (string, pathutil.Kind, string, error) {
	mission := req.GetString("mission", "sentinel-2")
	if _, err := missions.Get(mission); err != nil {
		return "", "", "", err
	}
	kind, err := pathutil.ParseKind(req.GetString("download_type", "full"))
	if err != nil {
		return "", "", "", err
	}
	return mission, kind, req.GetString("output_dir", defaultDir), nil
}

func (s *Server) credentialError() *mcp.CallToolResult {
	return mcp.NewToolResultError(
		"configuration error: downloads require COPERNICUS_USERNAME and COPERNICUS_PASSWORD to be set")
}

func (s *Server) handleDownloadImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("image_id")
	if err != nil {
		return validationError(err), nil
	}
	mission, kind, dir, err := s.downloadArgs(req, s.cfg.Download.Dir)
	if err != nil {
		return validationError(err), nil
	}
	if !s.cfg.HasCredentials() {
		return s.credentialError(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout())
	defer cancel()

	out, err := s.orch.RunOne(ctx, dir, downloader.Task{ProductID: id, Mission: mission, Kind: kind})
	if err != nil {
		return s.toolError("download_image", err), nil
	}
	if !out.Success {
		return mcp.NewToolResultError(fmt.Sprintf(
			"%s error: download failed after %d attempts: %v", out.Reason, out.Attempts, out.Err)), nil
	}
	return jsonResult(reportOutcome(out))
}

type batchSummary struct {
	Total      int    `json:"total"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	TotalBytes int64  `json:"total_bytes"`
	TotalSize  string `json:"total_size"`
}

type batchResponse struct {
	Mission   string           `json:"mission"`
	Directory string           `json:"directory"`
	Results   []downloadReport `json:"results"`
	Summary   batchSummary     `json:"summary"`
}

func (s *Server) handleBatchDownload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := req.GetStringSlice("image_ids", nil)
	if len(ids) == 0 {
		return validationError(fmt.Errorf("image_ids must contain at least one identifier")), nil
	}
	mission, kind, dir, err := s.downloadArgs(req, s.cfg.Download.BatchDir)
	if err != nil {
		return validationError(err), nil
	}
	if !s.cfg.HasCredentials() {
		return s.credentialError(), nil
	}
	concurrency := req.GetInt("max_concurrent", 0)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout())
	defer cancel()

	tasks := make([]downloader.Task, len(ids))
	for i, id := range ids {
		tasks[i] = downloader.Task{ProductID: id, Mission: mission, Kind: kind}
	}
	outcomes, err := s.orch.Run(ctx, dir, tasks, concurrency)
	if err != nil {
		return s.toolError("batch_download_images", err), nil
	}

	// Individual failures are reported per item; the call itself succeeds.
	reports := make([]downloadReport, len(outcomes))
	for i, out := range outcomes {
		reports[i] = reportOutcome(out)
	}
	sum := downloader.Summarize(outcomes)
	return jsonResult(batchResponse{
		Mission:   mission,
		Directory: dir,
		Results:   reports,
		Summary: batchSummary{
			Total:      sum.Total,
			Succeeded:  sum.Succeeded,
			Failed:     sum.Failed,
			TotalBytes: sum.Bytes,
			TotalSize:  humanize.Bytes(uint64(sum.Bytes)),
		},
	})
}

type searchDownloadResponse struct {
	Mission        string         `json:"mission"`
	TotalMatches   int            `json:"total_matches"`
	Candidates     []cdse.Product `json:"candidates_considered"`
	Selected       cdse.Product   `json:"selected_image"`
	SelectionScore float64        `json:"selection_score"`
	Download       downloadReport `json:"download"`
}

func (s *Server) handleSearchAndDownload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := s.searchQuery(req, "point")
	if err != nil {
		return validationError(err), nil
	}
	q.MaxResults = clampInt(req.GetInt("limit", 5), 1, 50)
	kind, err := pathutil.ParseKind(req.GetString("download_type", "quicklook"))
	if err != nil {
		return validationError(err), nil
	}
	dir := req.GetString("output_dir", s.cfg.Download.SearchDir)
	if !s.cfg.HasCredentials() {
		return s.credentialError(), nil
	}

	result, err := s.client.Search(ctx, q)
	if err != nil {
		return s.toolError("search_and_download", err), nil
	}
	if len(result.Products) == 0 {
		return mcp.NewToolResultError("not-found error: no images matched the search criteria"), nil
	}
	best, score, _ := downloader.BestMatch(result.Products, s.weights, time.Now().UTC())

	dlCtx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout())
	defer cancel()

	out, err := s.orch.RunOne(dlCtx, dir, downloader.Task{ProductID: best.ID, Mission: q.Mission, Kind: kind})
	if err != nil {
		return s.toolError("search_and_download", err), nil
	}
	if !out.Success {
		return mcp.NewToolResultError(fmt.Sprintf(
			"%s error: selected %s but download failed after %d attempts: %v",
			out.Reason, best.ID, out.Attempts, out.Err)), nil
	}
	return jsonResult(searchDownloadResponse{
		Mission:        q.Mission,
		TotalMatches:   result.Total,
		Candidates:     result.Products,
		Selected:       best,
		SelectionScore: score,
		Download:       reportOutcome(out),
	})
}

type availabilityResponse struct {
	Products    []cdse.Availability `json:"products"`
	Total       int                 `json:"total"`
	Available   int                 `json:"available"`
	Unavailable int                 `json:"unavailable"`
}

func (s *Server) handleCheckAvailability(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := req.GetStringSlice("image_ids", nil)
	if len(ids) == 0 {
		return validationError(fmt.Errorf("image_ids must contain at least one identifier")), nil
	}

	entries, err := s.client.Availability(ctx, ids)
	if err != nil {
		return s.toolError("check_download_availability", err), nil
	}
	resp := availabilityResponse{Products: entries, Total: len(entries)}
	for _, e := range entries {
		if e.Available {
			resp.Available++
		} else {
			resp.Unavailable++
		}
	}
	return jsonResult(resp)
}

type linksResponse struct {
	cdse.DownloadLinks
	Usage string `json:"usage"`
}

func (s *Server) handleDownloadLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("image_id")
	if err != nil {
		return validationError(err), nil
	}

	links, err := s.client.Links(ctx, id)
	if err != nil {
		return s.toolError("get_product_download_links", err), nil
	}
	return jsonResult(linksResponse{
		DownloadLinks: *links,
		Usage:         "Every endpoint requires an Authorization: Bearer <token> header from the Copernicus identity service.",
	})
}
