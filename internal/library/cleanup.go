package library

import (
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wb1016/copernicus-mcp/internal/pathutil"
)

// CleanupPolicy declares what to evict. Zero values disable a criterion:
// no max age, no size cap, no kind filter. DryRun plans without deleting.
type CleanupPolicy struct {
	MaxAge        time.Duration
	MaxTotalBytes int64
	Kind          pathutil.Kind
	DryRun        bool
}

// Plan lists the files a policy marks for deletion, oldest first.
type Plan struct {
	Entries    []ManagedFile `json:"files"`
	TotalBytes int64         `json:"bytes_reclaimed"`
}

// CleanupFailure records one file that could not be deleted.
type CleanupFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// CleanupResult reports an executed plan. A failure on one file never
// stops deletion of the rest.
type CleanupResult struct {
	Deleted        []string         `json:"deleted"`
	Failed         []CleanupFailure `json:"failed,omitempty"`
	BytesReclaimed int64            `json:"bytes_reclaimed"`
}

// PlanCleanup evaluates policy against root without side effects. Files
// older than the max age are marked, then, if what remains still exceeds
// the size cap, the oldest unmarked files are marked until the remainder
// fits. The two criteria form one deduplicated union. Re-planning against
// an unchanged directory yields an identical plan.
func (s *Service) PlanCleanup(root string, policy CleanupPolicy) (*Plan, error) {
	files, err := s.scan(root)
	if err != nil {
		return nil, err
	}

	if policy.Kind != "" {
		kept := files[:0]
		for _, f := range files {
			if f.Kind == policy.Kind {
				kept = append(kept, f)
			}
		}
		files = kept
	}

	plan := &Plan{}
	marked := make(map[string]bool)
	mark := func(f ManagedFile) {
		if marked[f.Path] {
			return
		}
		marked[f.Path] = true
		plan.Entries = append(plan.Entries, f)
		plan.TotalBytes += f.SizeBytes
	}

	if policy.MaxAge > 0 {
		cutoff := s.clock.Now().Add(-policy.MaxAge)
		for _, f := range files {
			if f.ModTime.Before(cutoff) {
				mark(f)
			}
		}
	}

	if policy.MaxTotalBytes > 0 {
		var remaining int64
		for _, f := range files {
			if !marked[f.Path] {
				remaining += f.SizeBytes
			}
		}
		if remaining > policy.MaxTotalBytes {
			oldestFirst := make([]ManagedFile, len(files))
			copy(oldestFirst, files)
			sort.Slice(oldestFirst, func(i, j int) bool {
				return oldestFirst[i].ModTime.Before(oldestFirst[j].ModTime)
			})
			for _, f := range oldestFirst {
				if remaining <= policy.MaxTotalBytes {
					break
				}
				if marked[f.Path] {
					continue
				}
				mark(f)
				remaining -= f.SizeBytes
			}
		}
	}

	sort.Slice(plan.Entries, func(i, j int) bool {
		return plan.Entries[i].ModTime.Before(plan.Entries[j].ModTime)
	})
	return plan, nil
}

// Execute deletes every planned file, collecting per-file outcomes.
func (s *Service) Execute(plan *Plan) *CleanupResult {
	result := &CleanupResult{}
	for _, f := range plan.Entries {
		if err := os.Remove(f.Path); err != nil {
			s.logger.Error().Err(err).Str("path", f.Path).Msg("Failed to delete file")
			result.Failed = append(result.Failed, CleanupFailure{
				Path:   f.Path,
				Reason: err.Error(),
			})
			continue
		}
		result.Deleted = append(result.Deleted, f.Path)
		result.BytesReclaimed += f.SizeBytes
	}
	s.logger.Info().
		Int("deleted", len(result.Deleted)).
		Int("failed", len(result.Failed)).
		Str("reclaimed", humanize.Bytes(uint64(result.BytesReclaimed))).
		Msg("Cleanup executed")
	return result
}

// Cleanup plans and, unless the policy is dry-run, executes in one call.
// The result is nil for dry runs.
func (s *Service) Cleanup(root string, policy CleanupPolicy) (*Plan, *CleanupResult, error) {
	plan, err := s.PlanCleanup(root, policy)
	if err != nil {
		return nil, nil, err
	}
	if policy.DryRun {
		return plan, nil, nil
	}
	return plan, s.Execute(plan), nil
}
