// Package pathutil implements the download file naming convention shared by
// the downloader and the library scanner. File names carry the mission, the
// product id, and the download timestamp, with a kind-specific suffix:
//
//	sentinel_2_{productID}_{unix}.zip              full product
//	sentinel_2_{productID}_{unix}_quicklook.jpg    preview rendering
//	sentinel_2_{productID}_{unix}_compressed.zip   compressed product
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Kind classifies a downloaded file.
type Kind string

const (
	KindFull       Kind = "full"
	KindQuicklook  Kind = "quicklook"
	KindCompressed Kind = "compressed"
	KindOther      Kind = "other"
)

// ParseKind validates a kind string from tool input. The empty string is
// not a kind; callers decide their own default.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindFull:
		return KindFull, nil
	case KindQuicklook:
		return KindQuicklook, nil
	case KindCompressed:
		return KindCompressed, nil
	}
	return "", fmt.Errorf("invalid download type %q (must be full, quicklook, or compressed)", s)
}

// NormalizePath converts all path separators to forward slashes.
// Go's os.Open/os.Stat accept forward slashes on all platforms.
func NormalizePath(p string) string {
	return filepath.ToSlash(p)
}

// SafeMissionName converts a mission key to its filename form,
// e.g. "sentinel-2" becomes "sentinel_2".
func SafeMissionName(mission string) string {
	return strings.ReplaceAll(strings.ToLower(mission), "-", "_")
}

// BaseName builds the suffix-less download name for a product.
func BaseName(mission, productID string, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%d", SafeMissionName(mission), productID, ts.Unix())
}

// FileName appends the kind suffix to a base name.
func FileName(base string, kind Kind) string {
	switch kind {
	case KindQuicklook:
		return base + "_quicklook.jpg"
	case KindCompressed:
		return base + "_compressed.zip"
	default:
		return base + ".zip"
	}
}

// KindOf derives the kind from a file name. The quicklook and compressed
// markers win over the .zip suffix so compressed archives are not counted
// as full products.
func KindOf(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "quicklook") || strings.HasSuffix(lower, ".jpg"):
		return KindQuicklook
	case strings.Contains(lower, "compressed"):
		return KindCompressed
	case strings.HasSuffix(lower, ".zip"):
		return KindFull
	default:
		return KindOther
	}
}

var missionMarkers = []string{"sentinel_1", "sentinel_2", "sentinel_3", "sentinel_5p", "sentinel_6"}

// MissionOf derives the mission key from a file name, or "unknown" when the
// name does not follow the convention.
func MissionOf(name string) string {
	lower := strings.ToLower(name)
	for _, marker := range missionMarkers {
		if strings.Contains(lower, marker) {
			return strings.ReplaceAll(marker, "_", "-")
		}
	}
	return "unknown"
}
