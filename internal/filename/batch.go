package filename

// BatchStats aggregates the outcome of parsing a set of filenames.
type BatchStats struct {
	Total         int                  `json:"total"`
	Parsed        int                  `json:"parsed"`
	Failed        int                  `json:"failed"`
	SuccessRate   float64              `json:"success_rate"`
	AvgConfidence float64              `json:"avg_confidence"`
	TypeCounts    map[DocumentType]int `json:"type_counts"`
}

// ParseAll parses each filename independently and returns per-name results
// keyed by the input string plus aggregate statistics.
func (p *Parser) ParseAll(names []string) (map[string]Result, BatchStats) {
	results := make(map[string]Result, len(names))
	stats := BatchStats{TypeCounts: make(map[DocumentType]int)}

	var confidenceSum float64
	for _, name := range names {
		result := p.Parse(name)
		results[name] = result
		stats.Total++
		if result.OK() {
			stats.Parsed++
			confidenceSum += result.Identity.Confidence
			stats.TypeCounts[result.Identity.DocumentType]++
		} else {
			stats.Failed++
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Parsed) / float64(stats.Total)
	}
	if stats.Parsed > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.Parsed)
	}
	return results, stats
}
