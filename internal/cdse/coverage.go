package cdse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// GroupBy selects the bucketing period for coverage analysis.
type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
	GroupByYear  GroupBy = "year"
)

// ParseGroupBy validates a grouping period string.
func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(strings.ToLower(strings.TrimSpace(s))) {
	case GroupByDay:
		return GroupByDay, nil
	case GroupByWeek:
		return GroupByWeek, nil
	case GroupByMonth:
		return GroupByMonth, nil
	case GroupByYear:
		return GroupByYear, nil
	default:
		return "", errorf(ErrorValidation, "coverage",
			"group_by must be day, week, month, or year, got %q", s)
	}
}

// periodKey renders the bucket label for t. Labels sort lexicographically
// in period order for every grouping.
func (g GroupBy) periodKey(t time.Time) string {
	switch g {
	case GroupByDay:
		return t.Format("2006-01-02")
	case GroupByWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case GroupByYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01")
	}
}

// CoverageSample is a trimmed product record carried inside a bucket.
type CoverageSample struct {
	ID              string    `json:"id"`
	Name            string    `json:"title"`
	AcquisitionDate time.Time `json:"acquisition_date"`
	CloudCover      *float64  `json:"cloud_cover_percentage,omitempty"`
	DownloadURL     string    `json:"download_url,omitempty"`
}

// CoverageBucket aggregates the acquisitions of one period.
type CoverageBucket struct {
	Period        string           `json:"period"`
	Count         int              `json:"image_count"`
	AvgCloudCover *float64         `json:"average_cloud_cover,omitempty"`
	Samples       []CoverageSample `json:"sample_images"`
}

// CoverageSummary describes the analyzed range as a whole.
type CoverageSummary struct {
	TotalImages     int       `json:"total_images"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	TotalDays       int       `json:"total_days"`
	GroupBy         GroupBy   `json:"group_by"`
	PeriodsCovered  int       `json:"periods_covered"`
	ImagesPerPeriod float64   `json:"images_per_period_avg"`
}

// CoverageReport is the temporal distribution of available products over
// a range, used to spot acquisition gaps and dense periods.
type CoverageReport struct {
	Buckets []CoverageBucket `json:"coverage_analysis"`
	Summary CoverageSummary  `json:"summary"`
}

const coverageSamplesPerBucket = 3

// Coverage buckets the products matching q by acquisition period. Both
// range bounds are required; unlike Search, the range may span years so
// yearly grouping stays useful. Products without a parseable acquisition
// date are skipped.
func (c *Client) Coverage(ctx context.Context, q SearchQuery, groupBy GroupBy) (*CoverageReport, error) {
	if q.Start.IsZero() || q.End.IsZero() {
		return nil, errorf(ErrorValidation, "coverage",
			"coverage analysis requires both start_date and end_date")
	}
	if !q.Start.Before(q.End) {
		return nil, errorf(ErrorValidation, "coverage",
			"start date must be before end date")
	}
	if _, err := ParseGroupBy(string(groupBy)); err != nil {
		return nil, err
	}

	q.MaxResults = maxResultsPerRequest
	result, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}

	type accum struct {
		bucket   CoverageBucket
		cloudSum float64
		cloudN   int
	}
	byPeriod := make(map[string]*accum)

	for _, p := range result.Products {
		if p.AcquisitionDate.IsZero() {
			continue
		}
		key := groupBy.periodKey(p.AcquisitionDate)
		a, ok := byPeriod[key]
		if !ok {
			a = &accum{bucket: CoverageBucket{Period: key}}
			byPeriod[key] = a
		}

		a.bucket.Count++
		if len(a.bucket.Samples) < coverageSamplesPerBucket {
			a.bucket.Samples = append(a.bucket.Samples, CoverageSample{
				ID:              p.ID,
				Name:            p.Name,
				AcquisitionDate: p.AcquisitionDate,
				CloudCover:      p.CloudCover,
				DownloadURL:     p.DownloadURL,
			})
		}
		if p.CloudCover != nil {
			a.cloudSum += *p.CloudCover
			a.cloudN++
		}
	}

	buckets := make([]CoverageBucket, 0, len(byPeriod))
	total := 0
	for _, a := range byPeriod {
		if a.cloudN > 0 {
			avg := a.cloudSum / float64(a.cloudN)
			a.bucket.AvgCloudCover = &avg
		}
		buckets = append(buckets, a.bucket)
		total += a.bucket.Count
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Period < buckets[j].Period
	})

	summary := CoverageSummary{
		TotalImages:    total,
		StartDate:      q.Start,
		EndDate:        q.End,
		TotalDays:      int(q.End.Sub(q.Start).Hours() / 24),
		GroupBy:        groupBy,
		PeriodsCovered: len(buckets),
	}
	if len(buckets) > 0 {
		summary.ImagesPerPeriod = float64(total) / float64(len(buckets))
	}

	return &CoverageReport{Buckets: buckets, Summary: summary}, nil
}
