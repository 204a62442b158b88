package trace

// RateSummary aggregates category usage from a RateLog.
type RateSummary struct {
	TotalSites int
	// CategoryCounts maps partition index -> category index -> number of sites.
	CategoryCounts map[int]map[int]int
}

// Summarize computes per-partition category counts from a RateLog.
// Safe for nil or empty logs (returns zero-value fields).
func Summarize(l *RateLog) *RateSummary {
	summary := &RateSummary{
		CategoryCounts: make(map[int]map[int]int),
	}
	if l == nil {
		return summary
	}
	summary.TotalSites = len(l.Records)
	for _, r := range l.Records {
		counts, ok := summary.CategoryCounts[r.Partition]
		if !ok {
			counts = make(map[int]int)
			summary.CategoryCounts[r.Partition] = counts
		}
		counts[r.Category]++
	}
	return summary
}

// Fraction returns the share of a partition's sites assigned to category.
func (s *RateSummary) Fraction(partition, category int) float64 {
	counts := s.CategoryCounts[partition]
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	return float64(counts[category]) / float64(total)
}
