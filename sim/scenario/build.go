package scenario

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/phylosim/phylosim/sim"
	"github.com/phylosim/phylosim/sim/freqs"
	"github.com/phylosim/phylosim/sim/matrix"
	"github.com/phylosim/phylosim/sim/newick"
	"github.com/phylosim/phylosim/sim/seqio"
)

// Simulation is a fully built scenario: every model constructed and validated.
type Simulation struct {
	Tree       *sim.Tree
	Partitions []*sim.Partition
}

// Build validates s, reads every referenced file and constructs all models.
// rng supplies the "frequencies" stream for random frequency calculators.
func (s *Scenario) Build(rng *sim.PartitionedRNG) (*Simulation, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	tree, err := s.loadTree()
	if err != nil {
		return nil, err
	}
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	b := &builder{scenario: s, rng: rng, tables: make(map[sim.Alphabet]map[string]*matrix.Exchangeabilities)}
	if err := b.loadTables(); err != nil {
		return nil, err
	}
	out := &Simulation{Tree: tree}
	for i := range s.Partitions {
		p, err := b.partition(&s.Partitions[i])
		if err != nil {
			return nil, fmt.Errorf("partitions[%d]: %w", i, err)
		}
		out.Partitions = append(out.Partitions, p)
	}
	logrus.Infof("scenario: %d partitions, %d leaves", len(out.Partitions), len(tree.Leaves()))
	return out, nil
}

func (s *Scenario) loadTree() (*sim.Tree, error) {
	if s.TreeFile != "" {
		return newick.ReadFile(s.resolve(s.TreeFile))
	}
	return newick.Parse(s.Tree)
}

type builder struct {
	scenario *Scenario
	rng      *sim.PartitionedRNG
	tables   map[sim.Alphabet]map[string]*matrix.Exchangeabilities
}

func (b *builder) loadTables() error {
	for i, t := range b.scenario.Tables {
		alphabet, err := sim.ParseAlphabet(t.Alphabet)
		if err != nil {
			return fmt.Errorf("tables[%d]: %w", i, err)
		}
		table, err := matrix.LoadPAML(b.scenario.resolve(t.File), t.Name, alphabet)
		if err != nil {
			return fmt.Errorf("tables[%d]: %w", i, err)
		}
		if b.tables[alphabet] == nil {
			b.tables[alphabet] = make(map[string]*matrix.Exchangeabilities)
		}
		b.tables[alphabet][strings.ToLower(t.Name)] = table
		logrus.Debugf("loaded %s table %q from %s", alphabet, t.Name, t.File)
	}
	return nil
}

// table resolves a name against scenario tables first, then the built-in registry.
func (b *builder) table(alphabet sim.Alphabet, name string) (*matrix.Exchangeabilities, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: params: table is required", sim.ErrInvalidParameter)
	}
	if t, ok := b.tables[alphabet][strings.ToLower(name)]; ok {
		return t, nil
	}
	return matrix.Lookup(alphabet, name)
}

func (b *builder) partition(spec *PartitionSpec) (*sim.Partition, error) {
	models := make([]*sim.SubstitutionModel, len(spec.Models))
	for i := range spec.Models {
		m, err := b.model(&spec.Models[i])
		if err != nil {
			name := spec.Models[i].Name
			if name == "" {
				name = fmt.Sprintf("models[%d]", i)
			}
			return nil, fmt.Errorf("model %q: %w", name, err)
		}
		models[i] = m
	}
	if !spec.heterogeneous() {
		return sim.NewPartition(spec.Size, models[0])
	}
	return sim.NewBranchPartition(spec.Size, models, spec.RootModel, spec.BaseModel)
}

func (b *builder) model(spec *ModelSpec) (*sim.SubstitutionModel, error) {
	alphabet, err := modelAlphabet(spec)
	if err != nil {
		return nil, err
	}
	categories, err := rateCategories(spec.Rates)
	if err != nil {
		return nil, err
	}

	var mb matrix.Builder
	switch spec.Type {
	case TypeNucleotide:
		var p nucleotideParams
		if err := decodeParams(spec.Params, &p); err != nil {
			return nil, err
		}
		pi, err := b.frequencies(spec.Frequencies, alphabet, nil, true)
		if err != nil {
			return nil, err
		}
		mb, err = matrix.NewNucleotideBuilder(matrix.NucleotideParams{Mutation: p.mutation(), Frequencies: pi})
		if err != nil {
			return nil, err
		}
	case TypeMechanisticCodon:
		var p mechanisticCodonParams
		if err := decodeParams(spec.Params, &p); err != nil {
			return nil, err
		}
		pi, err := b.frequencies(spec.Frequencies, alphabet, nil, true)
		if err != nil {
			return nil, err
		}
		mb, err = matrix.NewMechanisticCodonBuilder(matrix.MechanisticCodonParams{
			Mutation:    p.mutation(),
			Omega:       p.Omega,
			Alpha:       p.Alpha,
			Beta:        p.Beta,
			Frequencies: pi,
			Form:        matrix.CodonForm(strings.ToUpper(p.Form)),
			Scaling:     matrix.Scaling(strings.ToLower(p.Scaling)),
		})
		if err != nil {
			return nil, err
		}
	case TypeAminoAcid:
		var p aminoAcidParams
		if err := decodeParams(spec.Params, &p); err != nil {
			return nil, err
		}
		table, err := b.table(alphabet, p.Table)
		if err != nil {
			return nil, err
		}
		pi, err := b.frequencies(spec.Frequencies, alphabet, table, false)
		if err != nil {
			return nil, err
		}
		mb, err = matrix.NewAminoAcidBuilder(matrix.AminoAcidParams{Table: table, Frequencies: pi})
		if err != nil {
			return nil, err
		}
	case TypeEmpiricalCodon:
		var p empiricalCodonParams
		if err := decodeParams(spec.Params, &p); err != nil {
			return nil, err
		}
		table, err := b.table(alphabet, p.Table)
		if err != nil {
			return nil, err
		}
		pi, err := b.frequencies(spec.Frequencies, alphabet, table, false)
		if err != nil {
			return nil, err
		}
		mb, err = matrix.NewEmpiricalCodonBuilder(matrix.EmpiricalCodonParams{
			Table: table, Frequencies: pi, Omega: p.Omega, Subset: matrix.CodonSubset(strings.ToLower(p.Subset)),
		})
		if err != nil {
			return nil, err
		}
	case TypeMutationSelection:
		var p mutationSelectionParams
		if err := decodeParams(spec.Params, &p); err != nil {
			return nil, err
		}
		pi, err := b.frequencies(spec.Frequencies, alphabet, nil, false)
		if err != nil {
			return nil, err
		}
		mb, err = matrix.NewMutationSelectionBuilder(matrix.MutationSelectionParams{
			Alphabet: alphabet, Mutation: p.mutation(), Fitness: p.Fitness, Frequencies: pi,
		})
		if err != nil {
			return nil, err
		}
	}
	return matrix.NewModel(spec.Name, mb, categories)
}

// frequencies runs the configured calculator. With no spec it returns equal
// frequencies when equalByDefault is set and nil otherwise, leaving the builder
// to fall back on its table. table is the model's own table, used by "empirical".
func (b *builder) frequencies(spec *FrequencySpec, alphabet sim.Alphabet, table *matrix.Exchangeabilities, equalByDefault bool) ([]float64, error) {
	if spec == nil {
		if equalByDefault {
			return freqs.Equal{By: alphabet}.Calculate(alphabet)
		}
		return nil, nil
	}
	by := alphabet
	if spec.By != "" {
		var err error
		if by, err = sim.ParseAlphabet(spec.By); err != nil {
			return nil, err
		}
	}
	var calc freqs.Calculator
	switch spec.Type {
	case FreqEqual:
		calc = freqs.Equal{By: by, Restrict: spec.Restrict}
	case FreqRandom:
		if b.rng == nil {
			return nil, fmt.Errorf("%w: random frequencies need a seed", sim.ErrInvalidParameter)
		}
		calc = freqs.Random{By: by, Restrict: spec.Restrict, Rng: b.rng.ForSubsystem(sim.SubsystemFrequencies)}
	case FreqCustom:
		calc = freqs.Custom{By: by, Values: spec.Values}
	case FreqFile:
		records, err := b.readSequences(spec.File)
		if err != nil {
			return nil, err
		}
		calc = freqs.FromSequences{By: by, Records: records, Columns: spec.Columns}
	case FreqEmpirical:
		if spec.Table != "" {
			var err error
			if table, err = b.table(by, spec.Table); err != nil {
				return nil, err
			}
		}
		if table == nil {
			return nil, fmt.Errorf("%w: empirical frequencies need a table", sim.ErrInvalidParameter)
		}
		calc = freqs.Empirical{Table: table}
	default:
		return nil, fmt.Errorf("%w: unknown frequencies type %q", sim.ErrInvalidParameter, spec.Type)
	}
	pi, err := calc.Calculate(alphabet)
	if err != nil {
		return nil, fmt.Errorf("frequencies: %w", err)
	}
	return pi, nil
}

func (b *builder) readSequences(path string) ([]seqio.Record, error) {
	f, err := os.Open(b.scenario.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("frequencies: %w", err)
	}
	defer f.Close()
	return seqio.ReadFASTA(f)
}

// rateCategories turns a RateSpec into categories; nil means a single rate-1 class.
func rateCategories(spec *RateSpec) ([]sim.RateCategory, error) {
	if spec == nil {
		return sim.DefaultRateCategories(), nil
	}
	cats := sim.DefaultRateCategories()
	switch {
	case spec.Alpha != nil:
		n := spec.NumCategories
		if n == 0 {
			n = 4
		}
		var err error
		if cats, err = sim.GammaRateCategories(*spec.Alpha, n); err != nil {
			return nil, err
		}
	case len(spec.Rates) > 0:
		probs := spec.Probs
		if probs == nil {
			probs = make([]float64, len(spec.Rates))
			for i := range probs {
				probs[i] = 1 / float64(len(probs))
			}
		}
		var err error
		if cats, err = sim.NewRateCategories(spec.Rates, probs); err != nil {
			return nil, err
		}
	}
	return sim.WithInvariantSites(cats, spec.Pinv)
}
