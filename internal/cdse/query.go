package cdse

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GeometryType selects how a raw geometry argument is interpreted.
type GeometryType string

const (
	GeometryPoint   GeometryType = "point"
	GeometryBBox    GeometryType = "bbox"
	GeometryPolygon GeometryType = "polygon"
)

// ParseGeometryType validates a geometry type string.
func ParseGeometryType(s string) (GeometryType, error) {
	switch GeometryType(strings.ToLower(strings.TrimSpace(s))) {
	case GeometryPoint:
		return GeometryPoint, nil
	case GeometryBBox:
		return GeometryBBox, nil
	case GeometryPolygon:
		return GeometryPolygon, nil
	default:
		return "", errorf(ErrorValidation, "geometry",
			"geometry_type must be point, bbox, or polygon, got %q", s)
	}
}

// Coordinate is a lon/lat pair in EPSG:4326.
type Coordinate struct {
	Lon float64
	Lat float64
}

func (c Coordinate) validate(position int) error {
	if c.Lon < -180 || c.Lon > 180 {
		return errorf(ErrorValidation, "geometry",
			"longitude at position %d must be between -180 and 180, got %v", position, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return errorf(ErrorValidation, "geometry",
			"latitude at position %d must be between -90 and 90, got %v", position, c.Lat)
	}
	return nil
}

// Ring is a polygon boundary. A normalized ring is closed: its first and
// last coordinates are equal.
type Ring []Coordinate

// Closed reports whether the ring ends where it starts.
func (r Ring) Closed() bool {
	return len(r) > 0 && r[0] == r[len(r)-1]
}

// Close returns r with the first coordinate appended when the ring is
// still open.
func (r Ring) Close() Ring {
	if len(r) == 0 || r.Closed() {
		return r
	}
	return append(r, r[0])
}

// WKT renders the ring as an OData-compatible well-known-text polygon,
// coordinates in lon lat order.
func (r Ring) WKT() string {
	parts := make([]string, len(r))
	for i, c := range r {
		parts[i] = formatCoord(c.Lon) + " " + formatCoord(c.Lat)
	}
	return "POLYGON((" + strings.Join(parts, ",") + "))"
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// PointRing builds a square ring of roughly sizeKM per side centered on
// the point, using the flat-earth approximation of 111 km per degree.
func PointRing(lat, lon, sizeKM float64) Ring {
	if sizeKM <= 0 {
		sizeKM = 1.0
	}
	delta := sizeKM / 111.0
	return Ring{
		{Lon: lon - delta, Lat: lat - delta},
		{Lon: lon + delta, Lat: lat - delta},
		{Lon: lon + delta, Lat: lat + delta},
		{Lon: lon - delta, Lat: lat + delta},
		{Lon: lon - delta, Lat: lat - delta},
	}
}

// BBoxRing builds a closed ring from bounding-box edges.
func BBoxRing(minLon, minLat, maxLon, maxLat float64) (Ring, error) {
	if err := (Coordinate{Lon: minLon, Lat: minLat}).validate(0); err != nil {
		return nil, err
	}
	if err := (Coordinate{Lon: maxLon, Lat: maxLat}).validate(1); err != nil {
		return nil, err
	}
	if minLon >= maxLon {
		return nil, errorf(ErrorValidation, "geometry",
			"min longitude (%v) must be less than max longitude (%v)", minLon, maxLon)
	}
	if minLat >= maxLat {
		return nil, errorf(ErrorValidation, "geometry",
			"min latitude (%v) must be less than max latitude (%v)", minLat, maxLat)
	}
	return Ring{
		{Lon: minLon, Lat: minLat},
		{Lon: maxLon, Lat: minLat},
		{Lon: maxLon, Lat: maxLat},
		{Lon: minLon, Lat: maxLat},
		{Lon: minLon, Lat: minLat},
	}, nil
}

// NormalizeGeometry converts a raw geometry argument into a closed ring.
// Accepted shapes depend on typ: point takes [lon, lat] (buffered to a
// square of sizeKM per side), bbox takes [minLon, minLat, maxLon, maxLat],
// polygon takes a list of coordinate pairs, a GeoJSON-style nested
// coordinate array, or a GeoJSON Polygon object. A JSON string of any of
// these is decoded first.
func NormalizeGeometry(raw any, typ GeometryType, sizeKM float64) (Ring, error) {
	if s, ok := raw.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, errorf(ErrorValidation, "geometry",
				"geometry string must be valid JSON: %v", err)
		}
		raw = decoded
	}

	switch typ {
	case GeometryPoint:
		pair, ok := floatSlice(raw)
		if !ok || len(pair) != 2 {
			return nil, errorf(ErrorValidation, "geometry",
				"point geometry must be [lon, lat]")
		}
		c := Coordinate{Lon: pair[0], Lat: pair[1]}
		if err := c.validate(0); err != nil {
			return nil, err
		}
		return PointRing(c.Lat, c.Lon, sizeKM), nil

	case GeometryBBox:
		box, ok := floatSlice(raw)
		if !ok || len(box) != 4 {
			return nil, errorf(ErrorValidation, "geometry",
				"bounding box must be [min_lon, min_lat, max_lon, max_lat]")
		}
		return BBoxRing(box[0], box[1], box[2], box[3])

	case GeometryPolygon:
		return normalizePolygon(raw)

	default:
		return nil, errorf(ErrorValidation, "geometry",
			"unknown geometry type %q", typ)
	}
}

func normalizePolygon(raw any) (Ring, error) {
	// GeoJSON Polygon object: unwrap to its coordinate array.
	if obj, ok := raw.(map[string]any); ok {
		if t, _ := obj["type"].(string); !strings.EqualFold(t, "Polygon") {
			return nil, errorf(ErrorValidation, "geometry",
				"polygon object must have type Polygon")
		}
		raw = obj["coordinates"]
	}

	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, errorf(ErrorValidation, "geometry",
			"polygon must be a list of coordinate pairs")
	}

	// Nested coordinate array: take the outer ring.
	if _, isPair := floatSlice(list[0]); !isPair {
		inner, ok := list[0].([]any)
		if !ok || len(inner) == 0 {
			return nil, errorf(ErrorValidation, "geometry",
				"polygon ring cannot be empty")
		}
		list = inner
	}

	ring := make(Ring, 0, len(list)+1)
	for i, item := range list {
		pair, ok := floatSlice(item)
		if !ok || len(pair) != 2 {
			return nil, errorf(ErrorValidation, "geometry",
				"invalid coordinate pair at position %d", i)
		}
		c := Coordinate{Lon: pair[0], Lat: pair[1]}
		if err := c.validate(i); err != nil {
			return nil, err
		}
		ring = append(ring, c)
	}
	if len(ring) < 3 {
		return nil, errorf(ErrorValidation, "geometry",
			"polygon must have at least 3 points")
	}
	return ring.Close(), nil
}

// floatSlice coerces a decoded JSON array of numbers.
func floatSlice(raw any) ([]float64, bool) {
	switch v := raw.(type) {
	case []float64:
		return v, true
	case []any:
		out := make([]float64, len(v))
		for i, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

const (
	// maxResultsPerRequest caps $top per the catalog's documented limit.
	maxResultsPerRequest = 50

	odataTimeLayout = "2006-01-02T15:04:05.000Z"
)

// buildSearchParams renders a query into OData parameters for the
// Products endpoint. Attributes are expanded so cloud cover and the
// metadata map can be read from the search response itself.
func buildSearchParams(q SearchQuery, collection string) url.Values {
	filters := []string{fmt.Sprintf("Collection/Name eq '%s'", collection)}
	if !q.Start.IsZero() {
		filters = append(filters,
			"ContentDate/Start ge "+q.Start.UTC().Format(odataTimeLayout))
	}
	if !q.End.IsZero() {
		filters = append(filters,
			"ContentDate/Start le "+q.End.UTC().Format(odataTimeLayout))
	}
	if len(q.Geometry) > 0 {
		filters = append(filters,
			fmt.Sprintf("geo.intersects(Footprint, geography'%s')", q.Geometry.WKT()))
	}

	top := q.MaxResults
	if top <= 0 || top > maxResultsPerRequest {
		top = maxResultsPerRequest
	}

	params := url.Values{}
	params.Set("$filter", strings.Join(filters, " and "))
	params.Set("$top", strconv.Itoa(top))
	params.Set("$orderby", "ContentDate/Start desc")
	params.Set("$count", "true")
	params.Set("$expand", "Attributes")
	return params
}
