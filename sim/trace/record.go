// Package trace records per-site rate-category assignments made during a simulation.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// SiteRateRecord captures the rate category drawn for one sequence position.
// All indices are 1-based, as written to the rate log.
type SiteRateRecord struct {
	Site      int // position in the concatenated alignment
	Partition int // partition the position belongs to
	Category  int // rate category within that partition
}
