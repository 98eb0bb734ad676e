package jsast

// Scope is a lexical scope of fragment names.
type Scope struct {
	parent *Scope
	desc   string
	names  map[string]*Name
	order  []*Name
}

// Name is a declaration in a Scope.
type Name struct {
	Ident     string
	enclosing *Scope
}

// NewRootScope returns the outermost scope shared by all fragments of a
// program. Free script identifiers resolve into it.
func NewRootScope() *Scope {
	return NewScope(nil, "root")
}

// NewScope returns a child scope of parent.
func NewScope(parent *Scope, desc string) *Scope {
	return &Scope{
		parent: parent,
		desc:   desc,
		names:  make(map[string]*Name),
	}
}

// Parent returns the enclosing scope, nil for a root scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Root returns the outermost scope.
func (s *Scope) Root() *Scope {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// Declare returns the name ident declared directly in s, declaring it first
// if needed.
func (s *Scope) Declare(ident string) *Name {
	if n, ok := s.names[ident]; ok {
		return n
	}
	n := &Name{Ident: ident, enclosing: s}
	s.names[ident] = n
	s.order = append(s.order, n)
	return n
}

// Lookup finds ident in s or any enclosing scope.
func (s *Scope) Lookup(ident string) *Name {
	for ; s != nil; s = s.parent {
		if n, ok := s.names[ident]; ok {
			return n
		}
	}
	return nil
}

// Names returns the names declared directly in s in declaration order.
func (s *Scope) Names() []*Name { return s.order }

func (s *Scope) String() string { return s.desc }

// Enclosing returns the scope n is declared in.
func (n *Name) Enclosing() *Scope { return n.enclosing }
