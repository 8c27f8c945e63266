// Package library manages the downloaded-product directory: listing,
// aggregate statistics, and policy-driven cleanup. The filesystem is the
// record; every operation rescans rather than trusting a cached index, so
// results are accurate even when files were added or removed out of band.
package library

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/wb1016/copernicus-mcp/internal/pathutil"
)

// ManagedFile is one downloaded file with metadata derived from the
// naming convention.
type ManagedFile struct {
	Path      string        `json:"path"`
	Name      string        `json:"name"`
	SizeBytes int64         `json:"size_bytes"`
	Size      string        `json:"size"`
	Kind      pathutil.Kind `json:"type"`
	Mission   string        `json:"mission"`
	ModTime   time.Time     `json:"modified"`
}

// Service provides download library management.
type Service struct {
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewService creates a new library service. A nil clock selects the real
// one.
func NewService(clock clockwork.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		clock:  clock,
		logger: logger.With().Str("component", "library").Logger(),
	}
}

// List returns managed files under root, newest modification first,
// filtered by kind when one is given and truncated to limit when
// positive.
func (s *Service) List(root string, kind pathutil.Kind, limit int) ([]ManagedFile, error) {
	files, err := s.scan(root)
	if err != nil {
		return nil, err
	}

	if kind != "" {
		kept := files[:0]
		for _, f := range files {
			if f.Kind == kind {
				kept = append(kept, f)
			}
		}
		files = kept
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

// scan walks root collecting managed files. A missing root is an empty
// library, not an error. Hidden entries are skipped, which keeps the
// downloader's in-flight .partial temp files out of every listing.
func (s *Service) scan(root string) ([]ManagedFile, error) {
	var files []ManagedFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// Deleted between the directory read and the stat.
			return nil
		}
		files = append(files, ManagedFile{
			Path:      path,
			Name:      d.Name(),
			SizeBytes: info.Size(),
			Size:      humanize.Bytes(uint64(info.Size())),
			Kind:      pathutil.KindOf(d.Name()),
			Mission:   pathutil.MissionOf(d.Name()),
			ModTime:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
