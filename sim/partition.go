package sim

import "fmt"

// Partition is a contiguous run of sequence positions evolved under one model, or under
// a set of labeled models switched per branch (branch heterogeneity).
//
// A Partition is read-only once constructed; the Evolver never mutates it.
type Partition struct {
	size      int
	models    []*SubstitutionModel
	byLabel   map[string]*SubstitutionModel
	rootModel *SubstitutionModel
	baseModel *SubstitutionModel
}

// NewPartition creates a homogeneous partition of size positions evolved under model everywhere.
func NewPartition(size int, model *SubstitutionModel) (*Partition, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: partition size must be positive, got %d", ErrInvalidParameter, size)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: partition requires a model", ErrInvalidParameter)
	}
	return &Partition{
		size:      size,
		models:    []*SubstitutionModel{model},
		rootModel: model,
		baseModel: model,
	}, nil
}

// NewBranchPartition creates a branch-heterogeneous partition. rootModel names the model
// that draws root states and per-site rate categories; baseModel names the model used
// on branches outside every labeled region and defaults to rootModel when empty.
func NewBranchPartition(size int, models []*SubstitutionModel, rootModel, baseModel string) (*Partition, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: partition size must be positive, got %d", ErrInvalidParameter, size)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: partition requires at least one model", ErrInvalidParameter)
	}
	p := &Partition{
		size:    size,
		models:  append([]*SubstitutionModel(nil), models...),
		byLabel: make(map[string]*SubstitutionModel, len(models)),
	}
	first := models[0]
	for i, m := range models {
		if m == nil {
			return nil, fmt.Errorf("%w: model %d is nil", ErrInvalidParameter, i)
		}
		if m.Label() == "" {
			return nil, fmt.Errorf("%w: model %d needs a label for branch heterogeneity", ErrInvalidParameter, i)
		}
		if _, dup := p.byLabel[m.Label()]; dup {
			return nil, fmt.Errorf("%w: duplicate model label %q", ErrInconsistent, m.Label())
		}
		if m.Alphabet() != first.Alphabet() {
			return nil, fmt.Errorf("%w: model %q uses %s but model %q uses %s", ErrInconsistent,
				m.Label(), m.Alphabet(), first.Label(), first.Alphabet())
		}
		if m.NumCategories() != first.NumCategories() {
			return nil, fmt.Errorf("%w: model %q has %d rate categories but model %q has %d", ErrInconsistent,
				m.Label(), m.NumCategories(), first.Label(), first.NumCategories())
		}
		p.byLabel[m.Label()] = m
	}
	if rootModel == "" {
		return nil, fmt.Errorf("%w: branch-heterogeneous partition requires a root model", ErrInvalidParameter)
	}
	var ok bool
	if p.rootModel, ok = p.byLabel[rootModel]; !ok {
		return nil, fmt.Errorf("%w: root model %q is not among the partition's models", ErrInconsistent, rootModel)
	}
	if baseModel == "" {
		baseModel = rootModel
	}
	if p.baseModel, ok = p.byLabel[baseModel]; !ok {
		return nil, fmt.Errorf("%w: base model %q is not among the partition's models", ErrInconsistent, baseModel)
	}
	return p, nil
}

// Size is the number of sequence positions.
func (p *Partition) Size() int { return p.size }

// Alphabet is the state space shared by every model in the partition.
func (p *Partition) Alphabet() Alphabet { return p.rootModel.Alphabet() }

// Heterogeneous reports whether branches may switch models by label.
func (p *Partition) Heterogeneous() bool { return p.byLabel != nil }

// RootModel is the model drawing root states and rate categories.
func (p *Partition) RootModel() *SubstitutionModel { return p.rootModel }

// Models returns the partition's models in declaration order.
func (p *Partition) Models() []*SubstitutionModel {
	return append([]*SubstitutionModel(nil), p.models...)
}

// bindModels resolves the model every node's branch evolves under. Homogeneous
// partitions ignore tree labels. It fails if any label on the tree has no model.
func (p *Partition) bindModels(tree *Tree) (map[*Node]*SubstitutionModel, error) {
	regions := tree.regionLabels()
	bound := make(map[*Node]*SubstitutionModel, len(regions))
	if !p.Heterogeneous() {
		for n := range regions {
			bound[n] = p.rootModel
		}
		return bound, nil
	}
	for _, label := range tree.ModelLabels() {
		if _, ok := p.byLabel[label]; !ok {
			return nil, fmt.Errorf("%w: tree labels a branch with model %q, which the partition does not define", ErrInconsistent, label)
		}
	}
	for n, label := range regions {
		switch {
		case n == tree.Root:
			bound[n] = p.rootModel
		case label == "":
			bound[n] = p.baseModel
		default:
			bound[n] = p.byLabel[label]
		}
	}
	return bound, nil
}
