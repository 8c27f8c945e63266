package cdse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/wb1016/copernicus-mcp/internal/missions"
)

const (
	// DefaultCatalogURL is the CDSE OData catalog root.
	DefaultCatalogURL = "https://catalogue.dataspace.copernicus.eu/odata/v1"
	// DefaultDownloadURL is the dedicated download service root.
	DefaultDownloadURL = "https://download.dataspace.copernicus.eu/odata/v1"
	// DefaultIdentityURL is the password-grant token endpoint.
	DefaultIdentityURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"

	// maxSearchWindow bounds an explicit date range; wider ranges make the
	// catalog paginate past anything a single response can represent.
	maxSearchWindow = 90 * 24 * time.Hour
	// defaultSearchBack is the lookback applied to open-ended ranges.
	defaultSearchBack = 30 * 24 * time.Hour
)

// ClientConfig configures the catalog client.
type ClientConfig struct {
	CatalogURL  string
	DownloadURL string
	Timeout     time.Duration
	Clock       clockwork.Clock
}

// Client queries the CDSE OData catalog and normalizes its product
// records. Metadata endpoints tolerate anonymous access; a configured
// CredentialCache upgrades requests with a bearer token when one can be
// acquired.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
	creds      *CredentialCache
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// NewClient builds a catalog client, filling defaults for unset fields.
func NewClient(cfg ClientConfig, creds *CredentialCache, logger zerolog.Logger) *Client {
	if cfg.CatalogURL == "" {
		cfg.CatalogURL = DefaultCatalogURL
	}
	if cfg.DownloadURL == "" {
		cfg.DownloadURL = DefaultDownloadURL
	}
	cfg.CatalogURL = strings.TrimRight(cfg.CatalogURL, "/")
	cfg.DownloadURL = strings.TrimRight(cfg.DownloadURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		creds:      creds,
		clock:      clock,
		logger:     logger.With().Str("component", "catalog").Logger(),
	}
}

// Credentials exposes the cache so download coordination can force
// refreshes against the same token the client attaches.
func (c *Client) Credentials() *CredentialCache {
	return c.creds
}

// Raw OData payload shapes. Only the fields normalization reads.

type odataProductList struct {
	Count *int           `json:"@odata.count"`
	Value []odataProduct `json:"value"`
}

type odataProduct struct {
	ID            string           `json:"Id"`
	Name          string           `json:"Name"`
	ContentLength int64            `json:"ContentLength"`
	Online        *bool            `json:"Online"`
	QuicklookURL  string           `json:"QuicklookUrl"`
	S3Path        string           `json:"S3Path"`
	ContentDate   odataContentDate `json:"ContentDate"`
	Attributes    []odataAttribute `json:"Attributes"`
	Assets        []odataAsset     `json:"Assets"`
}

type odataContentDate struct {
	Start string `json:"Start"`
	End   string `json:"End"`
}

type odataAttribute struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

type odataAsset struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	ContentType string `json:"ContentType"`
}

// Search runs a catalog query and returns normalized products newest
// first. Cloud-cover bounds and the processing-level, product-type, and
// platform filters are applied to the normalized records; the catalog
// handles collection, date range, and footprint. Open-ended date ranges
// default to the last 30 days, and explicit ranges wider than 90 days are
// rejected.
func (c *Client) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	var err error
	q.Start, q.End, err = resolveDateRange(q.Start, q.End, c.clock.Now())
	if err != nil {
		return nil, err
	}
	return c.query(ctx, q)
}

// query is the unguarded search path. Coverage analysis calls it directly
// with ranges wider than the interactive guard allows.
func (c *Client) query(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	m, err := missions.Get(q.Mission)
	if err != nil {
		return nil, newError(ErrorValidation, "search", err)
	}

	params := buildSearchParams(q, m.Collection)
	searchURL := c.cfg.CatalogURL + "/Products?" + params.Encode()

	c.logger.Debug().
		Str("mission", m.Key).
		Str("filter", params.Get("$filter")).
		Msg("Searching catalog")

	var payload odataProductList
	if err := c.getJSON(ctx, "search", searchURL, &payload); err != nil {
		return nil, err
	}

	max := q.MaxResults
	if max <= 0 || max > maxResultsPerRequest {
		max = maxResultsPerRequest
	}

	products := make([]Product, 0, len(payload.Value))
	for _, raw := range payload.Value {
		if len(products) >= max {
			break
		}
		p := c.normalizeProduct(raw, m)
		if !matchesQuery(p, q) {
			continue
		}
		products = append(products, p)
	}

	total := len(payload.Value)
	if payload.Count != nil {
		total = *payload.Count
	}

	c.logger.Debug().
		Int("total", total).
		Int("returned", len(products)).
		Msg("Catalog search complete")

	return &SearchResult{
		Total:    total,
		Returned: len(products),
		Products: products,
	}, nil
}

// Details fetches a single product with its assets expanded. The mission
// is echoed into the record; processing level and product type come from
// the catalog attributes rather than name heuristics.
func (c *Client) Details(ctx context.Context, id, mission string) (*ProductDetail, error) {
	detailURL := fmt.Sprintf("%s/Products(%s)?$expand=Assets", c.cfg.CatalogURL, id)

	var raw odataProduct
	if err := c.getJSON(ctx, "details", detailURL, &raw); err != nil {
		return nil, err
	}

	p := Product{
		ID:              raw.ID,
		Name:            raw.Name,
		Mission:         mission,
		Collection:      collectionFromS3Path(raw.S3Path),
		Platform:        platformFromName(raw.Name),
		AcquisitionDate: parseContentDate(raw.ContentDate.Start),
		CloudCover:      attrFloat(raw.Attributes, "cloudCover"),
		ProcessingLevel: attrString(raw.Attributes, "processingLevel"),
		ProductType:     attrString(raw.Attributes, "productType"),
		SizeBytes:       raw.ContentLength,
		DownloadURL:     c.productURL(c.cfg.DownloadURL, raw.ID),
		QuicklookURL:    raw.QuicklookURL,
		S3Path:          raw.S3Path,
		Online:          raw.Online == nil || *raw.Online,
		Attributes:      attrMap(raw.Attributes),
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.ProcessingLevel == "" {
		p.ProcessingLevel = levelFromName(raw.Name)
	}
	if p.ProductType == "" {
		p.ProductType = typeFromName(raw.Name)
	}

	assets := make([]Asset, 0, len(raw.Assets))
	for _, a := range raw.Assets {
		assets = append(assets, Asset{
			ID:          a.ID,
			Name:        a.Name,
			ContentType: a.ContentType,
			DownloadURL: c.assetURL(a.ID),
		})
	}
	return &ProductDetail{Product: p, Assets: assets}, nil
}

// Availability probes each product for download readiness. A single
// unreachable product records an unavailable entry; it never aborts the
// remaining probes.
func (c *Client) Availability(ctx context.Context, ids []string) ([]Availability, error) {
	if c.creds == nil || !c.creds.Configured() {
		return nil, newError(ErrorConfiguration, "availability",
			fmt.Errorf("COPERNICUS_USERNAME and COPERNICUS_PASSWORD are not set"))
	}
	if _, err := c.creds.Token(ctx); err != nil {
		return nil, err
	}

	results := make([]Availability, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, newError(ErrorNetwork, "availability", err)
		}

		detail, err := c.Details(ctx, id, "")
		if err != nil {
			entry := Availability{ID: id, Detail: err.Error()}
			var tagged *Error
			if errors.As(err, &tagged) {
				entry.StatusCode = tagged.Status
			}
			results = append(results, entry)
			continue
		}

		_, hasQuicklook := detail.QuicklookAsset()
		results = append(results, Availability{
			ID:                 id,
			Available:          true,
			StatusCode:         http.StatusOK,
			QuicklookAvailable: hasQuicklook,
			SizeBytes:          detail.SizeBytes,
			Name:               detail.Name,
			ContentDate:        detail.AcquisitionDate,
		})
	}
	return results, nil
}

// Links assembles every known retrieval endpoint for one product: the
// ordered full-product URLs, each quicklook asset, and the compressed
// chain.
func (c *Client) Links(ctx context.Context, id string) (*DownloadLinks, error) {
	if c.creds == nil || !c.creds.Configured() {
		return nil, newError(ErrorConfiguration, "download links",
			fmt.Errorf("COPERNICUS_USERNAME and COPERNICUS_PASSWORD are not set"))
	}

	detail, err := c.Details(ctx, id, "")
	if err != nil {
		return nil, err
	}

	links := &DownloadLinks{
		ID:          id,
		Name:        detail.Name,
		SizeBytes:   detail.SizeBytes,
		ContentDate: detail.AcquisitionDate,
		FullProduct: c.ProductDownloadURLs(id),
		Compressed:  c.CompressedDownloadURLs(id),
	}
	for _, a := range detail.Assets {
		if a.ContentType == "image/jpeg" ||
			containsFold(a.Name, "quicklook") ||
			containsFold(a.Name, "preview") {
			links.Quicklooks = append(links.Quicklooks, a)
		}
	}
	return links, nil
}

// QuicklookURL resolves the asset URL of a product's preview rendering.
// Products without one yield a not-found error so callers can report the
// absence rather than retry.
func (c *Client) QuicklookURL(ctx context.Context, id string) (string, error) {
	detail, err := c.Details(ctx, id, "")
	if err != nil {
		return "", err
	}
	asset, ok := detail.QuicklookAsset()
	if !ok {
		return "", errorf(ErrorNotFound, "quicklook",
			"no quicklook or preview asset for product %s", id)
	}
	return asset.DownloadURL, nil
}

// ProductDownloadURLs returns the full-product endpoints in fallback
// order: the dedicated download service first, the catalog second.
func (c *Client) ProductDownloadURLs(id string) []string {
	return []string{
		c.productURL(c.cfg.DownloadURL, id),
		c.productURL(c.cfg.CatalogURL, id),
	}
}

// CompressedDownloadURLs returns the compressed endpoint followed by the
// full-product chain; the compressed rendition is not published for every
// product.
func (c *Client) CompressedDownloadURLs(id string) []string {
	urls := []string{fmt.Sprintf("%s/Products(%s)/Compressed/$value", c.cfg.CatalogURL, id)}
	return append(urls, c.ProductDownloadURLs(id)...)
}

func (c *Client) productURL(base, id string) string {
	return fmt.Sprintf("%s/Products(%s)/$value", base, id)
}

func (c *Client) assetURL(id string) string {
	return fmt.Sprintf("%s/Assets(%s)/$value", c.cfg.CatalogURL, id)
}

// getJSON performs a catalog GET, attaching a bearer token when one is
// available, and decodes the response.
func (c *Client) getJSON(ctx context.Context, op, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return newError(ErrorNetwork, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.creds != nil && c.creds.Configured() {
		if cred, err := c.creds.Token(ctx); err == nil {
			req.Header.Set("Authorization", "Bearer "+cred.Token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(ErrorNetwork, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(ErrorNetwork, op, fmt.Errorf("decoding catalog response: %w", err))
	}
	return nil
}

// statusError maps a non-200 catalog response onto the error taxonomy.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("catalog returned %d: %s",
		resp.StatusCode, strings.TrimSpace(string(body)))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return statusTagged(ErrorAuth, op, resp.StatusCode, err)
	case http.StatusNotFound:
		return statusTagged(ErrorNotFound, op, resp.StatusCode, err)
	default:
		return statusTagged(ErrorNetwork, op, resp.StatusCode, err)
	}
}

// resolveDateRange applies the open-ended defaults and the window guard.
func resolveDateRange(start, end, now time.Time) (time.Time, time.Time, error) {
	switch {
	case start.IsZero() && end.IsZero():
		start, end = now.Add(-defaultSearchBack), now
	case end.IsZero():
		end = now
	case start.IsZero():
		start = end.Add(-defaultSearchBack)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errorf(ErrorValidation, "search",
			"end date %s is before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	if end.Sub(start) > maxSearchWindow {
		return time.Time{}, time.Time{}, errorf(ErrorValidation, "search",
			"date range spans %d days, maximum is 90",
			int(end.Sub(start).Hours()/24))
	}
	return start, end, nil
}

// normalizeProduct maps a raw search record onto the normalized shape.
// Cloud cover is read only for optical missions; radar products carry the
// attribute name without a meaningful value.
func (c *Client) normalizeProduct(raw odataProduct, m missions.Mission) Product {
	p := Product{
		ID:              raw.ID,
		Name:            raw.Name,
		Mission:         m.Key,
		Collection:      collectionFromS3Path(raw.S3Path),
		Platform:        platformFromName(raw.Name),
		AcquisitionDate: parseContentDate(raw.ContentDate.Start),
		ProcessingLevel: levelFromName(raw.Name),
		ProductType:     typeFromName(raw.Name),
		SizeBytes:       raw.ContentLength,
		QuicklookURL:    raw.QuicklookURL,
		S3Path:          raw.S3Path,
		Online:          raw.Online == nil || *raw.Online,
		Attributes:      attrMap(raw.Attributes),
	}
	if raw.ID != "" {
		p.DownloadURL = c.productURL(c.cfg.DownloadURL, raw.ID)
	}
	if m.SupportsCloudCover() {
		p.CloudCover = attrFloat(raw.Attributes, "cloudCover")
	}
	return p
}

// matchesQuery applies the client-side filters. A missing cloud-cover
// value passes the bounds; only measured values are compared.
func matchesQuery(p Product, q SearchQuery) bool {
	if p.CloudCover != nil {
		if q.MinCloudCover != nil && *p.CloudCover < *q.MinCloudCover {
			return false
		}
		if q.MaxCloudCover != nil && *p.CloudCover > *q.MaxCloudCover {
			return false
		}
	}
	if q.ProcessingLevel != "" && !strings.EqualFold(p.ProcessingLevel, q.ProcessingLevel) {
		return false
	}
	if q.ProductType != "" && !strings.EqualFold(p.ProductType, q.ProductType) {
		return false
	}
	if q.Platform != "" && !platformMatches(p, q.Platform) {
		return false
	}
	return true
}

// platformMatches accepts both the long form (Sentinel-2A) and the name
// prefix shorthand (S2A).
func platformMatches(p Product, want string) bool {
	if strings.EqualFold(p.Platform, want) {
		return true
	}
	return strings.HasPrefix(strings.ToUpper(p.Name), strings.ToUpper(want))
}

func parseContentDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// The catalog sometimes omits the zone designator.
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func attrMap(attrs []odataAttribute) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for _, a := range attrs {
		if a.Name != "" && a.Value != nil {
			out[a.Name] = a.Value
		}
	}
	return out
}

func attrFloat(attrs []odataAttribute, name string) *float64 {
	for _, a := range attrs {
		if a.Name != name {
			continue
		}
		switch v := a.Value.(type) {
		case float64:
			return &v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return &f
			}
		}
		return nil
	}
	return nil
}

func attrString(attrs []odataAttribute, name string) string {
	for _, a := range attrs {
		if a.Name == name {
			s, _ := a.Value.(string)
			return s
		}
	}
	return ""
}

func levelFromName(name string) string {
	switch {
	case strings.Contains(name, "L1C"):
		return "L1C"
	case strings.Contains(name, "L2A"):
		return "L2A"
	case strings.Contains(name, "GRD"):
		return "GRD"
	case strings.Contains(name, "SLC"):
		return "SLC"
	}
	return ""
}

func typeFromName(name string) string {
	switch {
	case strings.Contains(name, "MSIL1C"):
		return "MSIL1C"
	case strings.Contains(name, "MSIL2A"):
		return "MSIL2A"
	case strings.Contains(name, "GRD"):
		return "GRD"
	case strings.Contains(name, "SLC"):
		return "SLC"
	}
	return ""
}

func platformFromName(name string) string {
	switch {
	case strings.HasPrefix(name, "S5P"):
		return "Sentinel-5P"
	case len(name) >= 3 && strings.HasPrefix(name, "S1"):
		return "Sentinel-1" + name[2:3]
	case len(name) >= 3 && strings.HasPrefix(name, "S2"):
		return "Sentinel-2" + name[2:3]
	case len(name) >= 3 && strings.HasPrefix(name, "S3"):
		return "Sentinel-3" + name[2:3]
	case len(name) >= 3 && strings.HasPrefix(name, "S6"):
		return "Sentinel-6" + name[2:3]
	}
	return ""
}

func collectionFromS3Path(s3 string) string {
	switch {
	case strings.Contains(s3, "Sentinel-1"):
		return "Sentinel1"
	case strings.Contains(s3, "Sentinel-2"):
		return "Sentinel2"
	case strings.Contains(s3, "Sentinel-3"):
		return "Sentinel3"
	case strings.Contains(s3, "Sentinel-5P"):
		return "Sentinel5P"
	case strings.Contains(s3, "Sentinel-6"):
		return "Sentinel6"
	}
	return ""
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
