package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/phylosim/phylosim/sim/scenario"
)

var (
	// CLI flags shared by run and validate
	configPath string // Scenario YAML path
	logLevel   string // Log verbosity level

	// CLI flags for run
	seed           int64  // Seed overriding the scenario's seed
	seqFile        string // Alignment output path
	seqFormat      string // Alignment format (fasta, phylip)
	rateFile       string // Site rate-category log path
	writeAncestors bool   // Include internal nodes in the alignment
	workers        int    // Partitions simulated concurrently
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "phylosim",
	Short: "Simulate sequence evolution along phylogenies under Markov substitution models",
}

// runCmd loads a scenario, simulates it and writes the alignment and rate log
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation scenario",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		s := mustLoad()
		applyOverrides(s, cmd)

		startTime := time.Now()
		result, err := simulate(s, workers)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		if err := writeOutputs(s, result); err != nil {
			logrus.Fatalf("Writing results failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
	},
}

// validateCmd builds every model and checks tree bindings without simulating
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario: build every model and bind tree labels, without simulating",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		s := mustLoad()
		if err := validate(s); err != nil {
			logrus.Fatalf("Scenario %s is invalid: %v", configPath, err)
		}
		cmd.Printf("Scenario %s is valid.\n", configPath)
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

func mustLoad() *scenario.Scenario {
	if configPath == "" {
		logrus.Fatalf("Scenario not provided (--config). Exiting.")
	}
	s, err := scenario.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load scenario: %v", err)
	}
	return s
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// registerRunFlags attaches the run-only flags to c.
func registerRunFlags(c *cobra.Command) {
	c.Flags().Int64Var(&seed, "seed", 0, "Seed for the simulation (overrides the scenario seed when set)")
	c.Flags().StringVar(&seqFile, "seqfile", "", "Alignment output file (overrides output.seqfile)")
	c.Flags().StringVar(&seqFormat, "seqfmt", "", "Alignment format: fasta or phylip (overrides output.seqfmt)")
	c.Flags().StringVar(&rateFile, "ratefile", "", "Site rate-category log file (overrides output.ratefile)")
	c.Flags().BoolVar(&writeAncestors, "write-anc", false, "Also write internal node sequences")
	c.Flags().IntVar(&workers, "workers", 1, "Number of partitions simulated concurrently")
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Scenario YAML file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	registerRunFlags(runCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
