package library

import (
	"github.com/dustin/go-humanize"
)

// Stats aggregates the library in a single scan.
type Stats struct {
	Count        int            `json:"total_files"`
	TotalBytes   int64          `json:"total_size_bytes"`
	TotalSize    string         `json:"total_size"`
	AverageBytes int64          `json:"average_size_bytes"`
	ByMission    map[string]int `json:"by_mission"`
	ByKind       map[string]int `json:"by_type"`
	ByMonth      map[string]int `json:"by_month"`
	Oldest       *ManagedFile   `json:"oldest_file,omitempty"`
	Newest       *ManagedFile   `json:"newest_file,omitempty"`
}

// Statistics scans root once and produces every breakdown from that one
// pass: counts, sizes, per-mission, per-kind, and per calendar month of
// the modification time.
func (s *Service) Statistics(root string) (*Stats, error) {
	files, err := s.scan(root)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByMission: make(map[string]int),
		ByKind:    make(map[string]int),
		ByMonth:   make(map[string]int),
	}
	for i := range files {
		f := &files[i]
		stats.Count++
		stats.TotalBytes += f.SizeBytes
		stats.ByMission[f.Mission]++
		stats.ByKind[string(f.Kind)]++
		stats.ByMonth[f.ModTime.Format("2006-01")]++

		if stats.Oldest == nil || f.ModTime.Before(stats.Oldest.ModTime) {
			stats.Oldest = f
		}
		if stats.Newest == nil || f.ModTime.After(stats.Newest.ModTime) {
			stats.Newest = f
		}
	}
	if stats.Count > 0 {
		stats.AverageBytes = stats.TotalBytes / int64(stats.Count)
	}
	stats.TotalSize = humanize.Bytes(uint64(stats.TotalBytes))
	return stats, nil
}
