// Package server exposes the engine over the Model Context Protocol:
// one tool per public operation, served on stdio. stdout belongs to the
// protocol, so all logging goes through the stderr-backed logger.
package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/wb1016/copernicus-mcp/internal/cdse"
	"github.com/wb1016/copernicus-mcp/internal/config"
	"github.com/wb1016/copernicus-mcp/internal/downloader"
	"github.com/wb1016/copernicus-mcp/internal/library"
)

// Server wires the MCP tool surface to the engine underneath.
type Server struct {
	cfg     *config.Config
	client  *cdse.Client
	orch    *downloader.Orchestrator
	library *library.Service
	weights downloader.SelectionWeights
	logger  zerolog.Logger
	mcp     *mcpserver.MCPServer
}

// New assembles the MCP server and registers every tool.
func New(cfg *config.Config, client *cdse.Client, orch *downloader.Orchestrator, lib *library.Service, logger zerolog.Logger) *Server {
	weights := downloader.DefaultSelectionWeights()
	if cfg.Selection.RecencyWindowDays > 0 {
		weights.RecencyWindowDays = cfg.Selection.RecencyWindowDays
	}
	if cfg.Selection.CloudCoverWeight > 0 {
		weights.CloudCoverWeight = cfg.Selection.CloudCoverWeight
	}

	s := &Server{
		cfg:     cfg,
		client:  client,
		orch:    orch,
		library: lib,
		weights: weights,
		logger:  logger.With().Str("component", "server").Logger(),
	}
	s.mcp = mcpserver.NewMCPServer("copernicus-mcp", config.Version,
		mcpserver.WithToolCapabilities(false),
	)
	s.registerCatalogTools()
	s.registerDownloadTools()
	s.registerLibraryTools()
	return s
}

// Serve runs the stdio protocol loop until the client disconnects.
func (s *Server) Serve() error {
	s.logger.Info().Str("version", config.Version).Msg("Serving MCP on stdio")
	return mcpserver.ServeStdio(s.mcp)
}

// jsonResult marshals a payload into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError converts an engine failure into a tool error result carrying
// the error kind.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	kind := cdse.KindOf(err)
	s.logger.Error().Err(err).Str("tool", tool).Str("kind", kind.String()).Msg("Tool call failed")
	return mcp.NewToolResultError(fmt.Sprintf("%s error: %v", kind, err))
}

// validationError rejects bad tool arguments before any network call.
func validationError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("validation error: %v", err))
}

// geometryArgs decodes the geometry/geometry_type argument pair. JSON
// strings, coordinate arrays, and GeoJSON objects are all accepted.
func geometryArgs(req mcp.CallToolRequest, defaultType string) (cdse.Ring, error) {
	raw, ok := req.GetArguments()["geometry"]
	if !ok || raw == nil || raw == "" {
		return nil, fmt.Errorf("geometry is required")
	}
	typ, err := cdse.ParseGeometryType(req.GetString("geometry_type", defaultType))
	if err != nil {
		return nil, err
	}
	return cdse.NormalizeGeometry(raw, typ, 0)
}

// parseDate accepts YYYY-MM-DD or RFC3339. Date-only values resolve to
// the start of the day, or to its last second when endOfDay is set, so
// a plain end date keeps that day's acquisitions in range.
func parseDate(field, value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD or RFC3339, got %q", field, value)
}

// cloudBound reads an optional cloud-cover percentage argument.
func cloudBound(req mcp.CallToolRequest, name string) (*float64, error) {
	if _, present := req.GetArguments()[name]; !present {
		return nil, nil
	}
	v := req.GetFloat(name, 0)
	if v < 0 || v > 100 {
		return nil, fmt.Errorf("%s must be between 0 and 100, got %v", name, v)
	}
	return &v, nil
}

// searchQuery decodes the arguments shared by every search-shaped tool.
func (s *Server) searchQuery(req mcp.CallToolRequest, defaultGeomType string) (cdse.SearchQuery, error) {
	ring, err := geometryArgs(req, defaultGeomType)
	if err != nil {
		return cdse.SearchQuery{}, err
	}
	start, err := parseDate("start_date", req.GetString("start_date", ""), false)
	if err != nil {
		return cdse.SearchQuery{}, err
	}
	end, err := parseDate("end_date", req.GetString("end_date", ""), true)
	if err != nil {
		return cdse.SearchQuery{}, err
	}
	minCC, err := cloudBound(req, "min_cloud_cover")
	if err != nil {
		return cdse.SearchQuery{}, err
	}
	maxCC, err := cloudBound(req, "max_cloud_cover")
	if err != nil {
		return cdse.SearchQuery{}, err
	}

	return cdse.SearchQuery{
		Mission:         req.GetString("mission", "sentinel-2"),
		Geometry:        ring,
		Start:           start,
		End:             end,
		MinCloudCover:   minCC,
		MaxCloudCover:   maxCC,
		ProcessingLevel: req.GetString("processing_level", ""),
		ProductType:     req.GetString("product_type", ""),
		Platform:        req.GetString("satellite", ""),
		MaxResults:      req.GetInt("max_results", s.cfg.API.MaxResults),
	}, nil
}

// authNote reports download readiness inside search results.
func (s *Server) authNote() string {
	if s.cfg.HasCredentials() {
		return "credentials configured; downloads available"
	}
	return "no credentials configured; set COPERNICUS_USERNAME and COPERNICUS_PASSWORD to enable downloads"
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
