package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/phylosim/phylosim/sim"
	"github.com/phylosim/phylosim/sim/scenario"
	"github.com/phylosim/phylosim/sim/seqio"
	"github.com/phylosim/phylosim/sim/trace"
)

// applyOverrides copies explicitly-set run flags over the scenario's values.
// The scenario seed is replaced only when --seed was given.
func applyOverrides(s *scenario.Scenario, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		logrus.Infof("CLI --seed %d overrides scenario seed %d", seed, s.Seed)
		s.Seed = seed
	}
	if flags.Changed("seqfile") {
		s.Output.SeqFile = seqFile
	}
	if flags.Changed("seqfmt") {
		s.Output.SeqFormat = seqFormat
	}
	if flags.Changed("ratefile") {
		s.Output.RateFile = rateFile
	}
	if flags.Changed("write-anc") {
		s.Output.WriteAncestors = writeAncestors
	}
}

// build constructs the scenario's tree and partitions and wraps them in an Evolver.
func build(s *scenario.Scenario, rng *sim.PartitionedRNG, workers int) (*scenario.Simulation, *sim.Evolver, error) {
	built, err := s.Build(rng)
	if err != nil {
		return nil, nil, err
	}
	evolver, err := sim.NewEvolver(built.Partitions, sim.EvolverConfig{Workers: workers})
	if err != nil {
		return nil, nil, err
	}
	return built, evolver, nil
}

// validate performs every check a run would, stopping short of sampling.
func validate(s *scenario.Scenario) error {
	built, evolver, err := build(s, sim.NewPartitionedRNG(sim.NewSimulationKey(s.Seed)), 1)
	if err != nil {
		return err
	}
	if err := evolver.Validate(built.Tree); err != nil {
		return err
	}
	for i, p := range built.Partitions {
		for _, m := range p.Models() {
			logrus.Infof("partition %d: model %q (%s, %d sites, %d rate categories, %s)",
				i+1, m.Label(), m.Alphabet(), p.Size(), m.NumCategories(), m.Method())
		}
	}
	return nil
}

// simulate builds and runs s with its seed.
func simulate(s *scenario.Scenario, workers int) (*sim.Result, error) {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(s.Seed))
	built, evolver, err := build(s, rng, workers)
	if err != nil {
		return nil, err
	}
	return evolver.Simulate(built.Tree, rng)
}

// writeOutputs writes the alignment and rate log where the scenario asks.
// Both files are written only after the whole simulation succeeded.
func writeOutputs(s *scenario.Scenario, result *sim.Result) error {
	if s.Output.SeqFile != "" {
		format, err := seqio.ParseFormat(s.Output.SeqFormat)
		if err != nil {
			return err
		}
		if err := writeFile(s.Output.SeqFile, func(f *os.File) error {
			return seqio.Write(f, format, result.Alignment(s.Output.WriteAncestors))
		}); err != nil {
			return fmt.Errorf("writing alignment: %w", err)
		}
		logrus.Infof("alignment written to %s (%s)", s.Output.SeqFile, format)
	}
	if s.Output.RateFile != "" {
		if err := writeFile(s.Output.RateFile, func(f *os.File) error {
			_, err := result.RateLog.WriteTo(f)
			return err
		}); err != nil {
			return fmt.Errorf("writing rate log: %w", err)
		}
		logrus.Infof("site rates written to %s", s.Output.RateFile)
	}
	summary := trace.Summarize(result.RateLog)
	for partition, counts := range summary.CategoryCounts {
		logrus.Debugf("partition %d: rate category counts %v", partition, counts)
	}
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
