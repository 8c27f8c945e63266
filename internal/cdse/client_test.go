package cdse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const testDownloadBase = "https://download.test/odata/v1"

func newTestCatalog(server *httptest.Server, creds *CredentialCache) *Client {
	return NewClient(ClientConfig{
		CatalogURL:  server.URL,
		DownloadURL: testDownloadBase,
		Clock:       clockwork.NewFakeClock(),
	}, creds, zerolog.Nop())
}

func productPayload() map[string]any {
	return map[string]any{
		"@odata.count": 1,
		"value": []map[string]any{
			{
				"Id":            "prod-1",
				"Name":          "S2A_MSIL2A_20250601T101031_N0511_R022_T32UQD_20250601T135621.SAFE",
				"ContentLength": 734003200,
				"Online":        true,
				"S3Path":        "/eodata/Sentinel-2/MSI/L2A/2025/06/01",
				"ContentDate":   map[string]string{"Start": "2025-06-01T10:10:31.024Z"},
				"Attributes": []map[string]any{
					{"Name": "cloudCover", "Value": 12.5},
					{"Name": "orbitNumber", "Value": 51723.0},
				},
			},
		},
	}
}

func TestSearchNormalizesProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Products" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		filter := r.URL.Query().Get("$filter")
		if !strings.Contains(filter, "Collection/Name eq 'SENTINEL-2'") {
			t.Errorf("$filter missing collection clause: %s", filter)
		}
		if got := r.URL.Query().Get("$expand"); got != "Attributes" {
			t.Errorf("$expand = %q, want Attributes", got)
		}
		json.NewEncoder(w).Encode(productPayload())
	}))
	defer server.Close()

	client := newTestCatalog(server, nil)
	result, err := client.Search(context.Background(), SearchQuery{Mission: "sentinel-2"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if result.Total != 1 || result.Returned != 1 {
		t.Fatalf("Total = %d, Returned = %d, want 1 and 1", result.Total, result.Returned)
	}

	p := result.Products[0]
	if p.ID != "prod-1" {
		t.Errorf("ID = %q, want prod-1", p.ID)
	}
	if p.Mission != "sentinel-2" {
		t.Errorf("Mission = %q, want sentinel-2", p.Mission)
	}
	if p.Platform != "Sentinel-2A" {
		t.Errorf("Platform = %q, want Sentinel-2A", p.Platform)
	}
	if p.ProcessingLevel != "L2A" {
		t.Errorf("ProcessingLevel = %q, want L2A", p.ProcessingLevel)
	}
	if p.ProductType != "MSIL2A" {
		t.Errorf("ProductType = %q, want MSIL2A", p.ProductType)
	}
	if p.Collection != "Sentinel2" {
		t.Errorf("Collection = %q, want Sentinel2", p.Collection)
	}
	if p.CloudCover == nil || *p.CloudCover != 12.5 {
		t.Errorf("CloudCover = %v, want 12.5", p.CloudCover)
	}
	if want := time.Date(2025, 6, 1, 10, 10, 31, 24000000, time.UTC); !p.AcquisitionDate.Equal(want) {
		t.Errorf("AcquisitionDate = %v, want %v", p.AcquisitionDate, want)
	}
	if want := testDownloadBase + "/Products(prod-1)/$value"; p.DownloadURL != want {
		t.Errorf("DownloadURL = %q, want %q", p.DownloadURL, want)
	}
	if p.Attributes["orbitNumber"] != 51723.0 {
		t.Errorf("Attributes[orbitNumber] = %v, want 51723", p.Attributes["orbitNumber"])
	}
}

func TestSearchRadarSkipsCloudCover(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"Id":          "sar-1",
					"Name":        "S1A_IW_GRDH_1SDV_20250601T052300",
					"ContentDate": map[string]string{"Start": "2025-06-01T05:23:00Z"},
					"Attributes": []map[string]any{
						{"Name": "cloudCover", "Value": 3.0},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := newTestCatalog(server, nil)
	result, err := client.Search(context.Background(), SearchQuery{Mission: "sentinel-1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Products[0].CloudCover != nil {
		t.Errorf("CloudCover = %v, want nil for a radar mission", *result.Products[0].CloudCover)
	}
	if result.Products[0].ProcessingLevel != "GRD" {
		t.Errorf("ProcessingLevel = %q, want GRD", result.Products[0].ProcessingLevel)
	}
}

func TestSearchCloudCoverBounds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"Id": "clear", "Name": "S2A_MSIL2A_A",
					"ContentDate": map[string]string{"Start": "2025-06-01T00:00:00Z"},
					"Attributes":  []map[string]any{{"Name": "cloudCover", "Value": 5.0}},
				},
				{
					"Id": "cloudy", "Name": "S2A_MSIL2A_B",
					"ContentDate": map[string]string{"Start": "2025-06-02T00:00:00Z"},
					"Attributes":  []map[string]any{{"Name": "cloudCover", "Value": 80.0}},
				},
				{
					"Id": "unmeasured", "Name": "S2A_MSIL2A_C",
					"ContentDate": map[string]string{"Start": "2025-06-03T00:00:00Z"},
				},
			},
		})
	}))
	defer server.Close()

	maxCloud := 20.0
	client := newTestCatalog(server, nil)
	result, err := client.Search(context.Background(), SearchQuery{
		Mission:       "sentinel-2",
		MaxCloudCover: &maxCloud,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if result.Returned != 2 {
		t.Fatalf("Returned = %d, want 2 (bound filters only measured values)", result.Returned)
	}
	ids := []string{result.Products[0].ID, result.Products[1].ID}
	if ids[0] != "clear" || ids[1] != "unmeasured" {
		t.Errorf("kept products = %v, want [clear unmeasured]", ids)
	}
}

func TestSearchUnknownMission(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("catalog should not be contacted for an unknown mission")
	}))
	defer server.Close()

	client := newTestCatalog(server, nil)
	_, err := client.Search(context.Background(), SearchQuery{Mission: "landsat-9"})
	if !IsValidation(err) {
		t.Errorf("Search() error = %v, want validation kind", err)
	}
}

func TestSearchStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
		kind   string
	}{
		{"unauthorized", http.StatusUnauthorized, IsAuth, "auth"},
		{"forbidden", http.StatusForbidden, IsAuth, "auth"},
		{"missing", http.StatusNotFound, IsNotFound, "not found"},
		{"server error", http.StatusInternalServerError, IsNetwork, "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			client := newTestCatalog(server, nil)
			_, err := client.Search(context.Background(), SearchQuery{Mission: "sentinel-2"})
			if err == nil {
				t.Fatal("Search() expected error, got nil")
			}
			if !tt.check(err) {
				t.Errorf("Search() error = %v, want %s kind", err, tt.kind)
			}
		})
	}
}

func detailPayload(withQuicklook bool) map[string]any {
	payload := map[string]any{
		"Id":            "prod-1",
		"Name":          "S2A_MSIL2A_20250601T101031_N0511_R022_T32UQD_20250601T135621.SAFE",
		"ContentLength": 734003200,
		"Online":        true,
		"S3Path":        "/eodata/Sentinel-2/MSI/L2A/2025/06/01",
		"ContentDate":   map[string]string{"Start": "2025-06-01T10:10:31.024Z"},
		"Attributes": []map[string]any{
			{"Name": "cloudCover", "Value": 12.5},
			{"Name": "processingLevel", "Value": "S2MSI2A"},
			{"Name": "productType", "Value": "S2MSI2A"},
		},
	}
	if withQuicklook {
		payload["Assets"] = []map[string]any{
			{"Id": "ql-9", "Name": "QUICKLOOK", "ContentType": "image/jpeg"},
		}
	}
	return payload
}

func TestDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Products(prod-1)" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("$expand"); got != "Assets" {
			t.Errorf("$expand = %q, want Assets", got)
		}
		json.NewEncoder(w).Encode(detailPayload(true))
	}))
	defer server.Close()

	client := newTestCatalog(server, nil)
	detail, err := client.Details(context.Background(), "prod-1", "sentinel-2")
	if err != nil {
		t.Fatalf("Details() error = %v", err)
	}

	if detail.Mission != "sentinel-2" {
		t.Errorf("Mission = %q, want sentinel-2", detail.Mission)
	}
	// Catalog attributes win over name heuristics.
	if detail.ProcessingLevel != "S2MSI2A" {
		t.Errorf("ProcessingLevel = %q, want S2MSI2A", detail.ProcessingLevel)
	}
	if len(detail.Assets) != 1 {
		t.Fatalf("Assets = %d, want 1", len(detail.Assets))
	}
	if want := server.URL + "/Assets(ql-9)/$value"; detail.Assets[0].DownloadURL != want {
		t.Errorf("asset URL = %q, want %q", detail.Assets[0].DownloadURL, want)
	}

	asset, ok := detail.QuicklookAsset()
	if !ok || asset.ID != "ql-9" {
		t.Errorf("QuicklookAsset() = %+v, %v, want ql-9, true", asset, ok)
	}
}

func TestQuicklookURLAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(detailPayload(false))
	}))
	defer server.Close()

	client := newTestCatalog(server, nil)
	_, err := client.QuicklookURL(context.Background(), "prod-1")
	if !IsNotFound(err) {
		t.Errorf("QuicklookURL() error = %v, want not-found kind", err)
	}
}

func authedCatalog(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "cat-token",
			"expires_in":   300,
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	creds := NewCredentialCache(CredentialConfig{
		IdentityURL: server.URL + "/token",
		Username:    "user@example.com",
		Password:    "hunter2",
		Clock:       clockwork.NewFakeClock(),
	}, zerolog.Nop())
	return newTestCatalog(server, creds), server
}

func TestAvailability(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Products(ok-1)", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer cat-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		json.NewEncoder(w).Encode(detailPayload(true))
	})
	mux.HandleFunc("/Products(gone-2)", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	client, _ := authedCatalog(t, mux)
	results, err := client.Availability(context.Background(), []string{"ok-1", "gone-2"})
	if err != nil {
		t.Fatalf("Availability() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	if !results[0].Available || results[0].StatusCode != http.StatusOK {
		t.Errorf("results[0] = %+v, want available with status 200", results[0])
	}
	if !results[0].QuicklookAvailable {
		t.Error("results[0] should report quicklook availability")
	}
	if results[1].Available {
		t.Errorf("results[1] = %+v, want unavailable", results[1])
	}
	if results[1].StatusCode != http.StatusNotFound {
		t.Errorf("results[1].StatusCode = %d, want 404", results[1].StatusCode)
	}
	if results[1].Detail == "" {
		t.Error("results[1].Detail should carry the failure text")
	}
}

func TestAvailabilityUnconfigured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("catalog should not be contacted without credentials")
	}))
	defer server.Close()

	creds := NewCredentialCache(CredentialConfig{IdentityURL: server.URL}, zerolog.Nop())
	client := newTestCatalog(server, creds)
	_, err := client.Availability(context.Background(), []string{"x"})
	if !IsConfiguration(err) {
		t.Errorf("Availability() error = %v, want configuration kind", err)
	}
}

func TestLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Products(prod-1)", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(detailPayload(true))
	})

	client, server := authedCatalog(t, mux)
	links, err := client.Links(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}

	wantFull := []string{
		testDownloadBase + "/Products(prod-1)/$value",
		server.URL + "/Products(prod-1)/$value",
	}
	if len(links.FullProduct) != 2 || links.FullProduct[0] != wantFull[0] || links.FullProduct[1] != wantFull[1] {
		t.Errorf("FullProduct = %v, want %v", links.FullProduct, wantFull)
	}

	if len(links.Compressed) != 3 {
		t.Fatalf("Compressed = %d urls, want 3", len(links.Compressed))
	}
	if want := server.URL + "/Products(prod-1)/Compressed/$value"; links.Compressed[0] != want {
		t.Errorf("Compressed[0] = %q, want %q", links.Compressed[0], want)
	}

	if len(links.Quicklooks) != 1 || links.Quicklooks[0].ID != "ql-9" {
		t.Errorf("Quicklooks = %+v, want the ql-9 asset", links.Quicklooks)
	}
}
