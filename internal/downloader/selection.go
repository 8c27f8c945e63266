package downloader

import (
	"strings"
	"time"

	"github.com/wb1016/copernicus-mcp/internal/cdse"
)

// SelectionWeights tunes best-match scoring. The recency window grants a
// linearly decaying credit to fresh acquisitions; the cloud weight
// converts percent of clear sky into points; the level bonuses prefer
// finished processing levels over raw ones.
type SelectionWeights struct {
	RecencyWindowDays int
	CloudCoverWeight  float64
	LevelBonus        map[string]float64
}

// DefaultSelectionWeights matches the standard preference order: recent
// first, then clear, then the higher processing level.
func DefaultSelectionWeights() SelectionWeights {
	return SelectionWeights{
		RecencyWindowDays: 30,
		CloudCoverWeight:  0.5,
		LevelBonus: map[string]float64{
			"L2A": 20,
			"L1C": 10,
		},
	}
}

// Score rates one product at a reference time. Products without cloud
// measurements earn no clear-sky credit rather than being excluded.
func (w SelectionWeights) Score(p cdse.Product, now time.Time) float64 {
	var score float64

	if !p.AcquisitionDate.IsZero() {
		daysAgo := now.Sub(p.AcquisitionDate).Hours() / 24
		if credit := float64(w.RecencyWindowDays) - daysAgo; credit > 0 {
			score += credit
		}
	}

	if p.CloudCover != nil {
		score += (100 - *p.CloudCover) * w.CloudCoverWeight
	}

	var levelBonus float64
	for level, bonus := range w.LevelBonus {
		if strings.Contains(p.ProcessingLevel, level) && bonus > levelBonus {
			levelBonus = bonus
		}
	}
	return score + levelBonus
}

// BestMatch picks the highest-scoring product. Earlier candidates win
// ties, preserving the catalog's newest-first ordering as the final
// tiebreak. ok is false for an empty candidate list.
func BestMatch(products []cdse.Product, w SelectionWeights, now time.Time) (cdse.Product, float64, bool) {
	if len(products) == 0 {
		return cdse.Product{}, 0, false
	}

	best := 0
	bestScore := w.Score(products[0], now)
	for i := 1; i < len(products); i++ {
		if score := w.Score(products[i], now); score > bestScore {
			best, bestScore = i, score
		}
	}
	return products[best], bestScore, true
}
