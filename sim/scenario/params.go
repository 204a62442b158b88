package scenario

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/phylosim/phylosim/sim"
	"github.com/phylosim/phylosim/sim/matrix"
)

// MutationParams is the nucleotide mutation process shared by several model types.
// It is exported so mapstructure can squash it into the per-type params structs.
// Neither mu nor kappa means equal rates.
type MutationParams struct {
	Mu    map[string]float64 `mapstructure:"mu"`
	Kappa *float64           `mapstructure:"kappa"`
}

func (p MutationParams) mutation() matrix.Mutation {
	if p.Mu == nil && p.Kappa == nil {
		return matrix.EqualMutation()
	}
	return matrix.Mutation{Mu: p.Mu, Kappa: p.Kappa}
}

type nucleotideParams struct {
	MutationParams `mapstructure:",squash"`
}

type mechanisticCodonParams struct {
	MutationParams `mapstructure:",squash"`
	Omega          *float64 `mapstructure:"omega"`
	Alpha          *float64 `mapstructure:"alpha"`
	Beta           *float64 `mapstructure:"beta"`
	Form           string   `mapstructure:"form"`
	Scaling        string   `mapstructure:"scaling"`
}

type aminoAcidParams struct {
	Table string `mapstructure:"table"`
}

type empiricalCodonParams struct {
	Table  string   `mapstructure:"table"`
	Omega  *float64 `mapstructure:"omega"`
	Subset string   `mapstructure:"subset"`
}

type mutationSelectionParams struct {
	MutationParams `mapstructure:",squash"`
	Alphabet       string    `mapstructure:"alphabet"`
	Fitness        []float64 `mapstructure:"fitness"`
}

// decodeParams decodes an open params map into a typed struct, rejecting unknown keys.
func decodeParams(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("%w: params: %v", sim.ErrInvalidParameter, err)
	}
	return nil
}

// modelAlphabet is the state space a model type evolves in.
func modelAlphabet(m *ModelSpec) (sim.Alphabet, error) {
	switch m.Type {
	case TypeNucleotide:
		return sim.Nucleotide, nil
	case TypeMechanisticCodon, TypeEmpiricalCodon:
		return sim.Codon, nil
	case TypeAminoAcid:
		return sim.AminoAcid, nil
	case TypeMutationSelection:
		var p mutationSelectionParams
		if err := decodeParams(m.Params, &p); err != nil {
			return 0, err
		}
		switch {
		case p.Alphabet != "":
			return sim.ParseAlphabet(p.Alphabet)
		case len(p.Fitness) == sim.Nucleotide.Size():
			return sim.Nucleotide, nil
		}
		return sim.Codon, nil
	}
	return 0, fmt.Errorf("%w: unknown model type %q", sim.ErrInvalidParameter, m.Type)
}
