package core

// StaticModule is a plain-data Module implementation. Capability modules with
// no construction logic of their own embed or return one; tests use it to
// build fixtures.
type StaticModule struct {
	ModuleName        string
	ModuleDescription string
	Context           string
	Cost              int
	Ops               []Operation
}

func (m *StaticModule) Name() string          { return m.ModuleName }
func (m *StaticModule) Description() string   { return m.ModuleDescription }
func (m *StaticModule) SystemContext() string { return m.Context }
func (m *StaticModule) Complexity() int       { return m.Cost }

// Operations returns the operations in declaration order.
func (m *StaticModule) Operations() []Operation {
	ops := make([]Operation, len(m.Ops))
	copy(ops, m.Ops)
	return ops
}

var _ Module = (*StaticModule)(nil)
