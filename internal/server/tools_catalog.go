package server

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wb1016/copernicus-mcp/internal/cdse"
	"github.com/wb1016/copernicus-mcp/internal/missions"
)

func (s *Server) registerCatalogTools() {
	s.mcp.AddTool(mcp.NewTool("search_copernicus_images",
		mcp.WithDescription("Search the Copernicus Data Space catalog for satellite images over an area of interest"),
		mcp.WithString("geometry", mcp.Required(),
			mcp.Description("Area of interest: point [lon, lat], bbox [minLon, minLat, maxLon, maxLat], or polygon [[lon, lat], ...]; GeoJSON geometry objects are accepted")),
		mcp.WithString("geometry_type",
			mcp.Description("How to interpret geometry"),
			mcp.Enum("point", "bbox", "polygon"),
			mcp.DefaultString("polygon")),
		mcp.WithString("mission",
			mcp.Description("Mission key, e.g. sentinel-1 or sentinel-2"),
			mcp.DefaultString("sentinel-2")),
		mcp.WithString("processing_level",
			mcp.Description("Filter by processing level, e.g. L1C or L2A")),
		mcp.WithString("product_type",
			mcp.Description("Filter by product type, e.g. MSIL2A or GRD")),
		mcp.WithString("satellite",
			mcp.Description("Filter by platform, e.g. S2A or Sentinel-2B")),
		mcp.WithString("start_date",
			mcp.Description("Range start, YYYY-MM-DD or RFC3339; defaults to 30 days before the end")),
		mcp.WithString("end_date",
			mcp.Description("Range end, YYYY-MM-DD or RFC3339; defaults to now")),
		mcp.WithNumber("min_cloud_cover",
			mcp.Description("Minimum cloud cover percentage (0-100)")),
		mcp.WithNumber("max_cloud_cover",
			mcp.Description("Maximum cloud cover percentage (0-100)")),
		mcp.WithNumber("max_results",
			mcp.Description("Result cap"),
			mcp.DefaultNumber(50)),
	), s.handleSearchImages)

	s.mcp.AddTool(mcp.NewTool("get_recent_images",
		mcp.WithDescription("Find the most recent satellite images over a location"),
		mcp.WithString("geometry", mcp.Required(),
			mcp.Description("Location, typically a point [lon, lat]")),
		mcp.WithString("geometry_type",
			mcp.Description("How to interpret geometry"),
			mcp.Enum("point", "bbox", "polygon"),
			mcp.DefaultString("point")),
		mcp.WithString("mission",
			mcp.Description("Mission key"),
			mcp.DefaultString("sentinel-2")),
		mcp.WithNumber("days_back",
			mcp.Description("How many days to look back (1-365)"),
			mcp.DefaultNumber(7)),
		mcp.WithNumber("max_results",
			mcp.Description("Result cap (1-100)"),
			mcp.DefaultNumber(10)),
	), s.handleRecentImages)

	s.mcp.AddTool(mcp.NewTool("get_image_details",
		mcp.WithDescription("Retrieve full metadata, assets, and download guidance for one image"),
		mcp.WithString("image_id", mcp.Required(),
			mcp.Description("Catalog product identifier")),
		mcp.WithString("mission",
			mcp.Description("Mission key"),
			mcp.DefaultString("sentinel-2")),
	), s.handleImageDetails)

	s.mcp.AddTool(mcp.NewTool("get_mission_info",
		mcp.WithDescription("Describe one Copernicus mission, or all of them"),
		mcp.WithString("mission",
			mcp.Description("Mission key; omit for every mission")),
	), s.handleMissionInfo)

	s.mcp.AddTool(mcp.NewTool("check_coverage",
		mcp.WithDescription("Analyze how often an area was imaged over a date range, bucketed by period"),
		mcp.WithString("geometry", mcp.Required(),
			mcp.Description("Area of interest")),
		mcp.WithString("geometry_type",
			mcp.Description("How to interpret geometry"),
			mcp.Enum("point", "bbox", "polygon"),
			mcp.DefaultString("polygon")),
		mcp.WithString("start_date", mcp.Required(),
			mcp.Description("Range start, YYYY-MM-DD or RFC3339")),
		mcp.WithString("end_date", mcp.Required(),
			mcp.Description("Range end, YYYY-MM-DD or RFC3339")),
		mcp.WithString("mission",
			mcp.Description("Mission key"),
			mcp.DefaultString("sentinel-2")),
		mcp.WithString("group_by",
			mcp.Description("Bucketing period"),
			mcp.Enum("day", "week", "month", "year"),
			mcp.DefaultString("month")),
	), s.handleCheckCoverage)
}

type searchResponse struct {
	Mission        string         `json:"mission"`
	Total          int            `json:"total_results"`
	Returned       int            `json:"returned_results"`
	Images         []cdse.Product `json:"images"`
	Authentication string         `json:"authentication"`
}

func (s *Server) handleSearchImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := s.searchQuery(req, "polygon")
	if err != nil {
		return validationError(err), nil
	}

	result, err := s.client.Search(ctx, q)
	if err != nil {
		return s.toolError("search_copernicus_images", err), nil
	}
	return jsonResult(searchResponse{
		Mission:        q.Mission,
		Total:          result.Total,
		Returned:       result.Returned,
		Images:         result.Products,
		Authentication: s.authNote(),
	})
}

type recentResponse struct {
	Mission        string         `json:"mission"`
	DaysBack       int            `json:"days_back"`
	Total          int            `json:"total_results"`
	Returned       int            `json:"returned_results"`
	Images         []cdse.Product `json:"images"`
	Authentication string         `json:"authentication"`
}

func (s *Server) handleRecentImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ring, err := geometryArgs(req, "point")
	if err != nil {
		return validationError(err), nil
	}
	daysBack := clampInt(req.GetInt("days_back", 7), 1, 365)
	maxResults := clampInt(req.GetInt("max_results", 10), 1, 100)

	now := time.Now().UTC()
	q := cdse.SearchQuery{
		Mission:    req.GetString("mission", "sentinel-2"),
		Geometry:   ring,
		Start:      now.AddDate(0, 0, -daysBack),
		End:        now,
		MaxResults: maxResults,
	}

	result, err := s.client.Search(ctx, q)
	if err != nil {
		return s.toolError("get_recent_images", err), nil
	}
	return jsonResult(recentResponse{
		Mission:        q.Mission,
		DaysBack:       daysBack,
		Total:          result.Total,
		Returned:       result.Returned,
		Images:         result.Products,
		Authentication: s.authNote(),
	})
}

type detailResponse struct {
	Image                cdse.Product `json:"image"`
	Assets               []cdse.Asset `json:"assets,omitempty"`
	DownloadInstructions string       `json:"download_instructions"`
}

func (s *Server) handleImageDetails(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("image_id")
	if err != nil {
		return validationError(err), nil
	}
	mission := req.GetString("mission", "sentinel-2")
	if _, err := missions.Get(mission); err != nil {
		return validationError(err), nil
	}

	detail, err := s.client.Details(ctx, id, mission)
	if err != nil {
		return s.toolError("get_image_details", err), nil
	}
	return jsonResult(detailResponse{
		Image:  detail.Product,
		Assets: detail.Assets,
		DownloadInstructions: fmt.Sprintf(
			"Use download_image with image_id=%q for the full product, or download_type=quicklook for the preview.", id),
	})
}

func (s *Server) handleMissionInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("mission", "")
	if name == "" {
		return jsonResult(map[string]any{"missions": missions.All()})
	}
	m, err := missions.Get(name)
	if err != nil {
		return validationError(err), nil
	}
	return jsonResult(m)
}

func (s *Server) handleCheckCoverage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.GetString("start_date", "") == "" || req.GetString("end_date", "") == "" {
		return validationError(fmt.Errorf("start_date and end_date are required")), nil
	}
	q, err := s.searchQuery(req, "polygon")
	if err != nil {
		return validationError(err), nil
	}
	groupBy, err := cdse.ParseGroupBy(req.GetString("group_by", "month"))
	if err != nil {
		return validationError(err), nil
	}

	report, err := s.client.Coverage(ctx, q, groupBy)
	if err != nil {
		return s.toolError("check_coverage", err), nil
	}
	return jsonResult(report)
}
