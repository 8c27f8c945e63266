package cdse

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestNormalizeGeometryPoint(t *testing.T) {
	ring, err := NormalizeGeometry([]any{13.4, 52.5}, GeometryPoint, 1.0)
	if err != nil {
		t.Fatalf("NormalizeGeometry() error = %v", err)
	}
	if len(ring) != 5 {
		t.Fatalf("ring has %d points, want 5", len(ring))
	}
	if !ring.Closed() {
		t.Error("point ring is not closed")
	}

	delta := 1.0 / 111.0
	if got := ring[0].Lon; math.Abs(got-(13.4-delta)) > 1e-9 {
		t.Errorf("ring[0].Lon = %v, want %v", got, 13.4-delta)
	}
	if got := ring[2].Lat; math.Abs(got-(52.5+delta)) > 1e-9 {
		t.Errorf("ring[2].Lat = %v, want %v", got, 52.5+delta)
	}
}

func TestNormalizeGeometryPolygon(t *testing.T) {
	openTriangle := []any{
		[]any{13.0, 52.0},
		[]any{13.5, 52.0},
		[]any{13.5, 52.5},
	}

	tests := []struct {
		name string
		raw  any
	}{
		{"open ring", openTriangle},
		{"nested ring", []any{openTriangle}},
		{"geojson object", map[string]any{"type": "Polygon", "coordinates": []any{openTriangle}}},
		{"json string", `[[13.0,52.0],[13.5,52.0],[13.5,52.5]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring, err := NormalizeGeometry(tt.raw, GeometryPolygon, 0)
			if err != nil {
				t.Fatalf("NormalizeGeometry() error = %v", err)
			}
			if len(ring) != 4 {
				t.Fatalf("ring has %d points, want 4 (closed triangle)", len(ring))
			}
			if !ring.Closed() {
				t.Error("polygon ring is not closed")
			}
			if ring[1] != (Coordinate{Lon: 13.5, Lat: 52.0}) {
				t.Errorf("ring[1] = %+v, want {13.5 52}", ring[1])
			}
		})
	}
}

func TestNormalizeGeometryRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		typ  GeometryType
	}{
		{"longitude out of range", []any{200.0, 52.0}, GeometryPoint},
		{"latitude out of range", []any{13.0, 95.0}, GeometryPoint},
		{"point arity", []any{13.0}, GeometryPoint},
		{"bbox arity", []any{13.0, 52.0, 13.5}, GeometryBBox},
		{"bbox inverted", []any{13.5, 52.0, 13.0, 52.5}, GeometryBBox},
		{"polygon too small", []any{[]any{13.0, 52.0}, []any{13.5, 52.0}}, GeometryPolygon},
		{"garbage json string", "{not json", GeometryPolygon},
		{"wrong object type", map[string]any{"type": "LineString"}, GeometryPolygon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeGeometry(tt.raw, tt.typ, 1.0)
			if !IsValidation(err) {
				t.Errorf("NormalizeGeometry() error = %v, want validation kind", err)
			}
		})
	}
}

func TestRingWKT(t *testing.T) {
	ring := Ring{
		{Lon: 13.0, Lat: 52.0},
		{Lon: 13.5, Lat: 52.0},
		{Lon: 13.5, Lat: 52.5},
		{Lon: 13.0, Lat: 52.0},
	}
	want := "POLYGON((13 52,13.5 52,13.5 52.5,13 52))"
	if got := ring.WKT(); got != want {
		t.Errorf("WKT() = %q, want %q", got, want)
	}
}

func TestBuildSearchParams(t *testing.T) {
	q := SearchQuery{
		Mission: "sentinel-2",
		Geometry: Ring{
			{Lon: 13.0, Lat: 52.0},
			{Lon: 13.5, Lat: 52.0},
			{Lon: 13.5, Lat: 52.5},
			{Lon: 13.0, Lat: 52.0},
		},
		Start:      time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC),
		MaxResults: 10,
	}

	params := buildSearchParams(q, "SENTINEL-2")

	filter := params.Get("$filter")
	for _, part := range []string{
		"Collection/Name eq 'SENTINEL-2'",
		"ContentDate/Start ge 2025-05-01T00:00:00.000Z",
		"ContentDate/Start le 2025-05-31T00:00:00.000Z",
		"geo.intersects(Footprint, geography'POLYGON((13 52,13.5 52,13.5 52.5,13 52))')",
	} {
		if !strings.Contains(filter, part) {
			t.Errorf("$filter missing %q\nfilter: %s", part, filter)
		}
	}

	if got := params.Get("$top"); got != "10" {
		t.Errorf("$top = %q, want %q", got, "10")
	}
	if got := params.Get("$orderby"); got != "ContentDate/Start desc" {
		t.Errorf("$orderby = %q, want %q", got, "ContentDate/Start desc")
	}
	if got := params.Get("$count"); got != "true" {
		t.Errorf("$count = %q, want %q", got, "true")
	}
	if got := params.Get("$expand"); got != "Attributes" {
		t.Errorf("$expand = %q, want %q", got, "Attributes")
	}
}

func TestBuildSearchParamsCapsTop(t *testing.T) {
	for _, max := range []int{0, -5, 500} {
		params := buildSearchParams(SearchQuery{MaxResults: max}, "SENTINEL-1")
		if got := params.Get("$top"); got != "50" {
			t.Errorf("MaxResults=%d: $top = %q, want %q", max, got, "50")
		}
	}
}

func TestResolveDateRange(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("both open defaults to last 30 days", func(t *testing.T) {
		start, end, err := resolveDateRange(time.Time{}, time.Time{}, now)
		if err != nil {
			t.Fatalf("resolveDateRange() error = %v", err)
		}
		if !end.Equal(now) {
			t.Errorf("end = %v, want %v", end, now)
		}
		if want := now.Add(-30 * 24 * time.Hour); !start.Equal(want) {
			t.Errorf("start = %v, want %v", start, want)
		}
	})

	t.Run("open end closes at now", func(t *testing.T) {
		explicit := now.Add(-10 * 24 * time.Hour)
		start, end, err := resolveDateRange(explicit, time.Time{}, now)
		if err != nil {
			t.Fatalf("resolveDateRange() error = %v", err)
		}
		if !start.Equal(explicit) || !end.Equal(now) {
			t.Errorf("range = [%v, %v], want [%v, %v]", start, end, explicit, now)
		}
	})

	t.Run("open start backs off 30 days", func(t *testing.T) {
		explicit := now.Add(-5 * 24 * time.Hour)
		start, end, err := resolveDateRange(time.Time{}, explicit, now)
		if err != nil {
			t.Fatalf("resolveDateRange() error = %v", err)
		}
		if want := explicit.Add(-30 * 24 * time.Hour); !start.Equal(want) {
			t.Errorf("start = %v, want %v", start, want)
		}
		if !end.Equal(explicit) {
			t.Errorf("end = %v, want %v", end, explicit)
		}
	})

	t.Run("reversed range rejected", func(t *testing.T) {
		_, _, err := resolveDateRange(now, now.Add(-24*time.Hour), now)
		if !IsValidation(err) {
			t.Errorf("error = %v, want validation kind", err)
		}
	})

	t.Run("range wider than 90 days rejected", func(t *testing.T) {
		_, _, err := resolveDateRange(now.Add(-100*24*time.Hour), now, now)
		if !IsValidation(err) {
			t.Errorf("error = %v, want validation kind", err)
		}
	})
}
