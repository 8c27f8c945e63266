// Package cdse is the client stack for the Copernicus Data Space Ecosystem:
// credential caching against the identity service, OData catalog queries,
// and streamed product transfers to disk.
package cdse

import (
	"time"
)

// Credential is an issued access token with its validity window. It is
// owned by the CredentialCache, never persisted, and replaced wholesale on
// refresh.
type Credential struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ValidAt reports whether the credential's remaining lifetime at now
// exceeds the safety margin.
func (c Credential) ValidAt(now time.Time, margin time.Duration) bool {
	return c.Token != "" && now.Add(margin).Before(c.ExpiresAt)
}

// Product is a normalized catalog record.
type Product struct {
	ID              string         `json:"id"`
	Name            string         `json:"title"`
	Mission         string         `json:"mission"`
	Collection      string         `json:"collection"`
	Platform        string         `json:"platform"`
	AcquisitionDate time.Time      `json:"acquisition_date"`
	CloudCover      *float64       `json:"cloud_cover_percentage,omitempty"`
	ProcessingLevel string         `json:"processing_level"`
	ProductType     string         `json:"product_type,omitempty"`
	SizeBytes       int64          `json:"size_bytes,omitempty"`
	DownloadURL     string         `json:"download_url,omitempty"`
	QuicklookURL    string         `json:"thumbnail_url,omitempty"`
	S3Path          string         `json:"s3_path,omitempty"`
	Online          bool           `json:"online"`
	Attributes      map[string]any `json:"additional_metadata,omitempty"`
}

// SearchQuery is a validated catalog query. Geometry must already be
// normalized to a closed ring; zero time values leave that bound open.
type SearchQuery struct {
	Mission         string
	Geometry        Ring
	Start           time.Time
	End             time.Time
	MinCloudCover   *float64
	MaxCloudCover   *float64
	ProcessingLevel string
	ProductType     string
	Platform        string
	MaxResults      int
}

// SearchResult holds normalized search output.
type SearchResult struct {
	Total    int       `json:"total_results"`
	Returned int       `json:"returned_results"`
	Products []Product `json:"images"`
}

// Asset is a secondary artifact attached to a product, typically the
// quicklook rendering.
type Asset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	DownloadURL string `json:"url"`
}

// ProductDetail is a single product probe with its assets expanded.
type ProductDetail struct {
	Product
	Assets []Asset `json:"assets,omitempty"`
}

// QuicklookAsset returns the first asset that looks like a preview
// rendering, or false when the product has none.
func (d *ProductDetail) QuicklookAsset() (Asset, bool) {
	for _, a := range d.Assets {
		if a.ContentType == "image/jpeg" ||
			containsFold(a.Name, "quicklook") ||
			containsFold(a.Name, "preview") {
			return a, true
		}
	}
	return Asset{}, false
}

// Availability is the download readiness of one product.
type Availability struct {
	ID                 string    `json:"image_id"`
	Available          bool      `json:"available"`
	StatusCode         int       `json:"status_code,omitempty"`
	QuicklookAvailable bool      `json:"quicklook_available"`
	SizeBytes          int64     `json:"size_bytes,omitempty"`
	Name               string    `json:"name,omitempty"`
	ContentDate        time.Time `json:"content_date,omitempty"`
	Detail             string    `json:"error,omitempty"`
}

// DownloadLinks is every known retrieval endpoint for one product.
type DownloadLinks struct {
	ID          string    `json:"image_id"`
	Name        string    `json:"product_name"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentDate time.Time `json:"content_date"`
	FullProduct []string  `json:"full_product"`
	Quicklooks  []Asset   `json:"quicklooks"`
	Compressed  []string  `json:"compressed"`
}
