package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// SimulationKey is the master seed of a run. Equal keys over equal partitions and
// trees give byte-identical alignments and rate logs.
type SimulationKey int64

// NewSimulationKey wraps seed.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// SubsystemFrequencies names the stream random frequency calculators draw from.
// It is seeded with the master seed itself.
const SubsystemFrequencies = "frequencies"

// SubsystemPartition names the stream for partition id (0-based). A partition's rate
// categories, root states and substitutions all come from this one stream.
func SubsystemPartition(id int) string {
	return fmt.Sprintf("partition_%d", id)
}

// PartitionedRNG hands out one independent, deterministically seeded *rand.Rand per
// named subsystem. Streams are seeded with key XOR fnv1a64(name), except
// SubsystemFrequencies which uses key unchanged.
//
// PartitionedRNG is not safe for concurrent use; the streams it returns are each
// meant for a single goroutine.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG with no streams derived yet.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream for name, creating it on first use. Later calls
// with the same name return the same stream, continuing where it left off.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if r, ok := p.streams[name]; ok {
		return r
	}
	r := rand.New(rand.NewSource(p.seedFor(name)))
	p.streams[name] = r
	return r
}

// PartitionStreams derives the streams for partitions 0..n-1.
func (p *PartitionedRNG) PartitionStreams(n int) []*rand.Rand {
	out := make([]*rand.Rand, n)
	for i := range out {
		out[i] = p.ForSubsystem(SubsystemPartition(i))
	}
	return out
}

// Key returns the master seed.
func (p *PartitionedRNG) Key() SimulationKey { return p.key }

func (p *PartitionedRNG) seedFor(name string) int64 {
	if name == SubsystemFrequencies {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
