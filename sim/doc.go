// Package sim provides the core sequence-evolution engine for phylosim.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - model.go: SubstitutionModel, a validated rate matrix Q with its stationary
//     distribution and among-site rate categories
//   - transition.go: how P(t) = exp(Q t) is evaluated (symmetric eigen, complex eigen, Padé)
//   - evolver.go: root assignment, pre-order traversal and per-site sampling
//
// # Architecture
//
// The sim package defines the state space, models, partitions and the engine;
// collaborators live in sub-packages:
//   - sim/matrix/: rate-matrix builders (nucleotide, mechanistic codon, amino acid,
//     empirical codon, mutation-selection) and exchangeability tables
//   - sim/freqs/: stationary frequency calculators
//   - sim/newick/: tree parsing with the _label_ branch-model convention
//   - sim/seqio/: FASTA and PHYLIP alignment I/O
//   - sim/trace/: site rate-category log
//   - sim/scenario/: YAML scenario files tying everything together
//
// # Determinism
//
// All randomness flows from a PartitionedRNG passed to Evolver.Simulate. Each partition
// draws from its own stream, so output depends only on the seed and the inputs, never
// on the number of workers.
package sim
