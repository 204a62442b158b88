// Package scenario loads YAML simulation scenarios and turns them into a tree and
// partitions ready for sim.Evolver.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/phylosim/phylosim/sim"
	"github.com/phylosim/phylosim/sim/seqio"
)

// CurrentVersion is the scenario schema version this package writes and reads.
const CurrentVersion = "1"

// Model types accepted in ModelSpec.Type.
const (
	TypeNucleotide        = "nucleotide"
	TypeMechanisticCodon  = "mechanistic_codon"
	TypeAminoAcid         = "amino_acid"
	TypeEmpiricalCodon    = "empirical_codon"
	TypeMutationSelection = "mutation_selection"
)

var validModelTypes = map[string]bool{
	TypeNucleotide:        true,
	TypeMechanisticCodon:  true,
	TypeAminoAcid:         true,
	TypeEmpiricalCodon:    true,
	TypeMutationSelection: true,
}

// Frequency calculator types accepted in FrequencySpec.Type.
const (
	FreqEqual     = "equal"
	FreqCustom    = "custom"
	FreqFile      = "file"
	FreqEmpirical = "empirical"
	FreqRandom    = "random"
)

var validFrequencyTypes = map[string]bool{
	FreqEqual: true, FreqCustom: true, FreqFile: true, FreqEmpirical: true, FreqRandom: true,
}

// Scenario is the top-level simulation configuration.
// Loaded from YAML via Load(path).
type Scenario struct {
	Version    string          `yaml:"version"`
	Seed       int64           `yaml:"seed"`
	Tree       string          `yaml:"tree,omitempty"`
	TreeFile   string          `yaml:"tree_file,omitempty"`
	Output     OutputSpec      `yaml:"output"`
	Tables     []TableSpec     `yaml:"tables,omitempty"`
	Partitions []PartitionSpec `yaml:"partitions"`

	// baseDir resolves relative file paths; empty means the working directory.
	baseDir string
}

// OutputSpec names where results go. Empty file names disable that output.
type OutputSpec struct {
	SeqFile        string `yaml:"seqfile,omitempty"`
	SeqFormat      string `yaml:"seqfmt,omitempty"`
	RateFile       string `yaml:"ratefile,omitempty"`
	WriteAncestors bool   `yaml:"write_ancestors,omitempty"`
}

// TableSpec loads a PAML-format exchangeability table under a name models can reference.
type TableSpec struct {
	Name     string `yaml:"name"`
	Alphabet string `yaml:"alphabet"`
	File     string `yaml:"file"`
}

// PartitionSpec is one run of sites. A partition with a single model and no root_model
// is homogeneous; otherwise branches select models by their tree labels.
type PartitionSpec struct {
	Size      int         `yaml:"size"`
	RootModel string      `yaml:"root_model,omitempty"`
	BaseModel string      `yaml:"base_model,omitempty"`
	Models    []ModelSpec `yaml:"models"`
}

// ModelSpec declares one substitution model. Params is decoded according to Type.
type ModelSpec struct {
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	Params      map[string]any `yaml:"params,omitempty"`
	Frequencies *FrequencySpec `yaml:"frequencies,omitempty"`
	Rates       *RateSpec      `yaml:"rates,omitempty"`
}

// FrequencySpec selects a frequency calculator. By defaults to the model's alphabet.
type FrequencySpec struct {
	Type     string             `yaml:"type"`
	By       string             `yaml:"by,omitempty"`
	Values   map[string]float64 `yaml:"values,omitempty"`
	Restrict []string           `yaml:"restrict,omitempty"`
	File     string             `yaml:"file,omitempty"`
	Columns  []int              `yaml:"columns,omitempty"`
	Table    string             `yaml:"table,omitempty"`
}

// RateSpec configures among-site rate variation: either a discrete gamma (alpha,
// num_categories) or explicit rates with probabilities, plus optional invariant sites.
type RateSpec struct {
	Alpha         *float64  `yaml:"alpha,omitempty"`
	NumCategories int       `yaml:"num_categories,omitempty"`
	Pinv          float64   `yaml:"pinv,omitempty"`
	Rates         []float64 `yaml:"rates,omitempty"`
	Probs         []float64 `yaml:"probs,omitempty"`
}

// Load reads a scenario file strictly: unknown keys are errors.
// Relative paths inside it resolve against the file's directory.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s.baseDir = filepath.Dir(path)
	return s, nil
}

// Parse decodes scenario YAML. Relative paths resolve against the working directory.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if s.Version == "" {
		s.Version = CurrentVersion
		logrus.Debugf("scenario has no version; assuming %q", CurrentVersion)
	}
	return &s, nil
}

// resolve makes p relative to the scenario file's directory.
func (s *Scenario) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || s.baseDir == "" {
		return p
	}
	return filepath.Join(s.baseDir, p)
}

// Validate checks structure without reading any referenced file or building models.
func (s *Scenario) Validate() error {
	if s.Version != CurrentVersion {
		return fmt.Errorf("%w: unsupported scenario version %q; valid: %s", sim.ErrInvalidParameter, s.Version, CurrentVersion)
	}
	if (s.Tree == "") == (s.TreeFile == "") {
		return fmt.Errorf("%w: exactly one of tree or tree_file is required", sim.ErrInvalidParameter)
	}
	if _, err := seqio.ParseFormat(s.Output.SeqFormat); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	tables := make(map[string]bool)
	for i, t := range s.Tables {
		if err := validateTable(&t, i); err != nil {
			return err
		}
		key := strings.ToLower(t.Name)
		if tables[key] {
			return fmt.Errorf("%w: table %q defined twice", sim.ErrInconsistent, t.Name)
		}
		tables[key] = true
	}
	if len(s.Partitions) == 0 {
		return fmt.Errorf("%w: at least one partition required", sim.ErrInvalidParameter)
	}
	for i := range s.Partitions {
		if err := validatePartition(&s.Partitions[i]); err != nil {
			return fmt.Errorf("partitions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateTable(t *TableSpec, idx int) error {
	prefix := fmt.Sprintf("tables[%d]", idx)
	if t.Name == "" {
		return fmt.Errorf("%w: %s: name is required", sim.ErrInvalidParameter, prefix)
	}
	if t.File == "" {
		return fmt.Errorf("%w: %s: file is required", sim.ErrInvalidParameter, prefix)
	}
	a, err := sim.ParseAlphabet(t.Alphabet)
	if err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	if a == sim.Nucleotide {
		return fmt.Errorf("%w: %s: exchangeability tables are for amino_acid or codon models", sim.ErrInvalidParameter, prefix)
	}
	return nil
}

func validatePartition(p *PartitionSpec) error {
	if p.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", sim.ErrInvalidParameter, p.Size)
	}
	if len(p.Models) == 0 {
		return fmt.Errorf("%w: at least one model required", sim.ErrInvalidParameter)
	}
	names := make(map[string]bool, len(p.Models))
	for i := range p.Models {
		m := &p.Models[i]
		if err := validateModel(m); err != nil {
			return fmt.Errorf("models[%d]: %w", i, err)
		}
		if m.Name != "" && names[m.Name] {
			return fmt.Errorf("%w: model name %q used twice", sim.ErrInconsistent, m.Name)
		}
		names[m.Name] = true
	}
	if !p.heterogeneous() {
		if p.BaseModel != "" {
			return fmt.Errorf("%w: base_model requires root_model", sim.ErrInvalidParameter)
		}
		return nil
	}
	if p.RootModel == "" {
		return fmt.Errorf("%w: a partition with %d models needs root_model", sim.ErrInvalidParameter, len(p.Models))
	}
	for i, m := range p.Models {
		if m.Name == "" {
			return fmt.Errorf("%w: models[%d]: branch-heterogeneous models need a name", sim.ErrInvalidParameter, i)
		}
	}
	if !names[p.RootModel] {
		return fmt.Errorf("%w: root_model %q is not among the partition's models", sim.ErrInconsistent, p.RootModel)
	}
	if p.BaseModel != "" && !names[p.BaseModel] {
		return fmt.Errorf("%w: base_model %q is not among the partition's models", sim.ErrInconsistent, p.BaseModel)
	}
	return nil
}

// heterogeneous reports whether branches select models by tree label.
func (p *PartitionSpec) heterogeneous() bool {
	return len(p.Models) > 1 || p.RootModel != ""
}

func validateModel(m *ModelSpec) error {
	if !validModelTypes[m.Type] {
		return fmt.Errorf("%w: unknown model type %q; valid: nucleotide, mechanistic_codon, amino_acid, empirical_codon, mutation_selection",
			sim.ErrInvalidParameter, m.Type)
	}
	if f := m.Frequencies; f != nil {
		if !validFrequencyTypes[f.Type] {
			return fmt.Errorf("%w: unknown frequencies type %q; valid: equal, custom, file, empirical, random", sim.ErrInvalidParameter, f.Type)
		}
		if f.By != "" {
			if _, err := sim.ParseAlphabet(f.By); err != nil {
				return fmt.Errorf("frequencies: %w", err)
			}
		}
		switch {
		case f.Type == FreqCustom && len(f.Values) == 0:
			return fmt.Errorf("%w: custom frequencies need values", sim.ErrInvalidParameter)
		case f.Type == FreqFile && f.File == "":
			return fmt.Errorf("%w: file frequencies need a file", sim.ErrInvalidParameter)
		}
	}
	if r := m.Rates; r != nil {
		if r.Alpha != nil && len(r.Rates) > 0 {
			return fmt.Errorf("%w: rates: set either alpha or rates, not both", sim.ErrInvalidParameter)
		}
		if r.Alpha == nil && r.NumCategories != 0 {
			return fmt.Errorf("%w: rates: num_categories requires alpha", sim.ErrInvalidParameter)
		}
		if len(r.Probs) > 0 && len(r.Rates) == 0 {
			return fmt.Errorf("%w: rates: probs requires rates", sim.ErrInvalidParameter)
		}
	}
	return nil
}
