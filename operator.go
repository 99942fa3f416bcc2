package noria

// FilterOperator is a minimal built-in Operator: it passes through
// records whose row satisfies Predicate unchanged, and drops the
// rest. Real operators (joins, aggregations, unions) are out of scope
// (spec.md §1 Non-goals) -- this exists only to exercise the
// Operator boundary end to end in tests.
type FilterOperator struct {
	Parent    NodeAddress
	Predicate func(Row) bool
}

func NewFilterOperator(parent NodeAddress, predicate func(Row) bool) *FilterOperator {
	return &FilterOperator{Parent: parent, Predicate: predicate}
}

func (f *FilterOperator) Ancestors() []NodeAddress { return []NodeAddress{f.Parent} }

func (f *FilterOperator) Process(input Records, from NodeAddress, _ State) (Records, error) {
	if from != f.Parent {
		assertFailed("filter received input from unexpected parent", "from=%v want=%v", from, f.Parent)
	}
	out := make(Records, 0, len(input))
	for _, r := range input {
		if f.Predicate(r.Row) {
			out = append(out, r)
		}
	}
	return out, nil
}

// IdentityOperator passes every input record through unchanged. It
// stands in for base-table ingress and for nodes whose real operator
// is out of this module's scope but whose position in the graph
// still needs to be exercised.
type IdentityOperator struct {
	Parent NodeAddress
}

func NewIdentityOperator(parent NodeAddress) *IdentityOperator {
	return &IdentityOperator{Parent: parent}
}

func (o *IdentityOperator) Ancestors() []NodeAddress { return []NodeAddress{o.Parent} }

func (o *IdentityOperator) Process(input Records, _ NodeAddress, _ State) (Records, error) {
	return input, nil
}
