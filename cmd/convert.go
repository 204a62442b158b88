package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phylosim/phylosim/sim"
	"github.com/phylosim/phylosim/sim/freqs"
	"github.com/phylosim/phylosim/sim/newick"
	"github.com/phylosim/phylosim/sim/scenario"
	"github.com/phylosim/phylosim/sim/seqio"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert alignments and trees, or derive scenario snippets from them",
	Long:  "Convert FASTA alignments to PHYLIP, normalize Newick trees, or count state frequencies from an alignment into a scenario frequencies block. Output is written to stdout for piping.",
}

// --- phylosim convert alignment ---

var (
	alignmentPath   string
	alignmentFormat string
)

var convertAlignmentCmd = &cobra.Command{
	Use:   "alignment",
	Short: "Rewrite a FASTA alignment as FASTA or PHYLIP",
	Run: func(cmd *cobra.Command, args []string) {
		if err := convertAlignment(alignmentPath, alignmentFormat, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Alignment conversion failed: %v", err)
		}
	},
}

// --- phylosim convert tree ---

var treePath string

var convertTreeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Parse a Newick tree (with _label_ branch models) and print it normalized",
	Run: func(cmd *cobra.Command, args []string) {
		if err := convertTree(treePath, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Tree conversion failed: %v", err)
		}
	},
}

// --- phylosim convert frequencies ---

var (
	frequencyPath string
	frequencyBy   string
	frequencyTo   string
)

var convertFrequenciesCmd = &cobra.Command{
	Use:   "frequencies",
	Short: "Count state frequencies in a FASTA alignment and print a custom frequencies block",
	Run: func(cmd *cobra.Command, args []string) {
		spec, err := frequencyBlock(frequencyPath, frequencyBy, frequencyTo)
		if err != nil {
			logrus.Fatalf("Frequency conversion failed: %v", err)
		}
		writeYAML(cmd.OutOrStdout(), map[string]*scenario.FrequencySpec{"frequencies": spec})
	},
}

func readAlignment(path string) ([]seqio.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return seqio.ReadFASTA(f)
}

func convertAlignment(path, format string, w io.Writer) error {
	f, err := seqio.ParseFormat(format)
	if err != nil {
		return err
	}
	records, err := readAlignment(path)
	if err != nil {
		return err
	}
	logrus.Infof("read %d sequences from %s", len(records), path)
	return seqio.Write(w, f, records)
}

func convertTree(path string, w io.Writer) error {
	tree, err := newick.ReadFile(path)
	if err != nil {
		return err
	}
	if err := tree.Validate(); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, newick.Format(tree))
	return err
}

// frequencyBlock counts by-alphabet states in the alignment at path and expresses them
// over the to alphabet (by when empty). Zero frequencies are omitted.
func frequencyBlock(path, by, to string) (*scenario.FrequencySpec, error) {
	byAlphabet, err := sim.ParseAlphabet(by)
	if err != nil {
		return nil, err
	}
	target := byAlphabet
	if to != "" {
		if target, err = sim.ParseAlphabet(to); err != nil {
			return nil, err
		}
	}
	records, err := readAlignment(path)
	if err != nil {
		return nil, err
	}
	pi, err := freqs.FromSequences{By: byAlphabet, Records: records}.Calculate(target)
	if err != nil {
		return nil, err
	}
	values := make(map[string]float64)
	for i, f := range pi {
		if f > 0 {
			values[target.Symbol(i)] = f
		}
	}
	return &scenario.FrequencySpec{Type: scenario.FreqCustom, By: target.String(), Values: values}, nil
}

// writeYAML marshals v to YAML and writes it to w.
func writeYAML(w io.Writer, v any) {
	data, err := yaml.Marshal(v)
	if err != nil {
		logrus.Fatalf("YAML marshal failed: %v", err)
	}
	fmt.Fprint(w, string(data))
}

func init() {
	convertAlignmentCmd.Flags().StringVar(&alignmentPath, "file", "", "Path to a FASTA alignment")
	convertAlignmentCmd.Flags().StringVar(&alignmentFormat, "to", "phylip", "Output format: fasta or phylip")
	_ = convertAlignmentCmd.MarkFlagRequired("file")

	convertTreeCmd.Flags().StringVar(&treePath, "file", "", "Path to a Newick tree file")
	_ = convertTreeCmd.MarkFlagRequired("file")

	convertFrequenciesCmd.Flags().StringVar(&frequencyPath, "file", "", "Path to a FASTA alignment")
	convertFrequenciesCmd.Flags().StringVar(&frequencyBy, "by", "nucleotide", "Alphabet the sequences are read as")
	convertFrequenciesCmd.Flags().StringVar(&frequencyTo, "to", "", "Alphabet of the printed frequencies (defaults to --by)")
	_ = convertFrequenciesCmd.MarkFlagRequired("file")

	convertCmd.AddCommand(convertAlignmentCmd)
	convertCmd.AddCommand(convertTreeCmd)
	convertCmd.AddCommand(convertFrequenciesCmd)

	rootCmd.AddCommand(convertCmd)
}
