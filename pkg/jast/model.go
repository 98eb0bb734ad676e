// Package jast is the typed program model the lowering pass operates on:
// declared classes and interfaces, their methods and bodies, and an arena
// that gives every method a stable index.
package jast

import (
	"fmt"
	"slices"
	"strings"

	"github.com/715d/defender/pkg/jsast"
)

// ClinitName is the name of a type's class initializer.
const ClinitName = "$clinit"

// Pos is a source position used for diagnostics.
type Pos struct {
	File string
	Line int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("line %d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Kind distinguishes classes from interfaces.
type Kind int

const (
	KindClass Kind = iota
	KindInterface
)

func (k Kind) String() string {
	if k == KindInterface {
		return "interface"
	}
	return "class"
}

// MethodID indexes a method in its program's arena.
type MethodID int

// NoMethod is the ID of a method not yet attached to a program.
const NoMethod MethodID = -1

// MethodKey identifies a method independently of pointer identity: the
// declaring type plus the erased signature.
type MethodKey struct {
	Type      string
	Signature string
}

func (k MethodKey) String() string { return k.Type + "." + k.Signature }

// DeclaredType is a class or an interface.
type DeclaredType struct {
	Name       string
	Kind       Kind
	Super      *DeclaredType   // superclass; nil for interfaces and roots
	Interfaces []*DeclaredType // implemented (or, for interfaces, extended) interfaces
	Abstract   bool
	Pos        Pos

	methods []*Method
	program *Program
}

// NewClass returns a class type.
func NewClass(pos Pos, name string) *DeclaredType {
	return &DeclaredType{Name: name, Kind: KindClass, Pos: pos}
}

// NewInterface returns an interface type.
func NewInterface(pos Pos, name string) *DeclaredType {
	return &DeclaredType{Name: name, Kind: KindInterface, Pos: pos}
}

func (t *DeclaredType) IsInterface() bool { return t.Kind == KindInterface }

// Type returns t as a type reference.
func (t *DeclaredType) Type() Type { return Type(t.Name) }

// Methods returns the directly declared methods in declaration order. The
// slice must not be modified.
func (t *DeclaredType) Methods() []*Method { return t.methods }

// AddMethod attaches m to t and registers it with t's program.
func (t *DeclaredType) AddMethod(m *Method) {
	if m.Enclosing != nil && m.Enclosing != t {
		Faultf("method %s already belongs to %s", m.Signature(), m.Enclosing.Name)
	}
	m.Enclosing = t
	t.methods = append(t.methods, m)
	if t.program != nil {
		t.program.register(m)
	}
}

// MethodBySignature returns the directly declared method with the given
// erased signature, or nil.
func (t *DeclaredType) MethodBySignature(sig string) *Method {
	for _, m := range t.methods {
		if m.Signature() == sig {
			return m
		}
	}
	return nil
}

// IsSubtypeOf reports whether t is, extends, or implements other, directly
// or through its supertypes.
func (t *DeclaredType) IsSubtypeOf(other *DeclaredType) bool {
	seen := make(map[*DeclaredType]bool)
	var walk func(*DeclaredType) bool
	walk = func(x *DeclaredType) bool {
		if x == nil || seen[x] {
			return false
		}
		seen[x] = true
		if x == other {
			return true
		}
		if walk(x.Super) {
			return true
		}
		return slices.ContainsFunc(x.Interfaces, walk)
	}
	return walk(t)
}

// Param is a method parameter.
type Param struct {
	Name  string
	Type  Type
	Final bool
	Pos   Pos

	method *Method
}

// NewParam returns an unattached parameter.
func NewParam(pos Pos, name string, typ Type, final bool) *Param {
	return &Param{Name: name, Type: typ, Final: final, Pos: pos}
}

// Method returns the method p belongs to.
func (p *Param) Method() *Method { return p.method }

// Method is a method or constructor-like member of a declared type.
type Method struct {
	Name      string
	Enclosing *DeclaredType
	Result    Type
	Access    string
	Static    bool
	Abstract  bool
	Native    bool
	Final     bool
	Synthetic bool // created by a compiler pass
	Thrown    []Type
	Body      Body // *MethodBody, *NativeBody or nil
	Pos       Pos

	id        MethodID
	params    []*Param
	overrides []*Method
	frozen    bool
}

// NewMethod returns an unattached method with no parameters and no body.
func NewMethod(pos Pos, name string, result Type) *Method {
	return &Method{Name: name, Result: result, Pos: pos, id: NoMethod}
}

// ID returns the arena index of m, NoMethod if unattached.
func (m *Method) ID() MethodID { return m.id }

// Params returns the parameters in order. The slice must not be modified.
func (m *Method) Params() []*Param { return m.params }

// AddParam appends p. Parameter types must not be frozen.
func (m *Method) AddParam(p *Param) {
	if m.frozen {
		Faultf("adding parameter %s to %s after its parameter types were frozen", p.Name, m)
	}
	p.method = m
	m.params = append(m.params, p)
}

// FreezeParamTypes marks the parameter list as final; later AddParam calls
// are defects.
func (m *Method) FreezeParamTypes() { m.frozen = true }

// ParamTypesFrozen reports whether FreezeParamTypes was called.
func (m *Method) ParamTypesFrozen() bool { return m.frozen }

// Overrides returns the methods m is recorded to override.
func (m *Method) Overrides() []*Method { return m.overrides }

// AddOverriddenMethod records that m overrides o.
func (m *Method) AddOverriddenMethod(o *Method) {
	if !slices.Contains(m.overrides, o) {
		m.overrides = append(m.overrides, o)
	}
}

// Signature returns the erased signature "name(T1,T2)".
func (m *Method) Signature() string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(p.Type))
	}
	b.WriteByte(')')
	return b.String()
}

// Key returns the stable identity of m.
func (m *Method) Key() MethodKey {
	var typ string
	if m.Enclosing != nil {
		typ = m.Enclosing.Name
	}
	return MethodKey{Type: typ, Signature: m.Signature()}
}

// MemberSignature returns the fragment member signature
// "Type::name(descriptors)" without the leading '@'.
func (m *Method) MemberSignature() string {
	var b strings.Builder
	if m.Enclosing != nil {
		b.WriteString(m.Enclosing.Name)
	}
	b.WriteString("::")
	b.WriteString(m.Name)
	b.WriteByte('(')
	for _, p := range m.params {
		b.WriteString(p.Type.Descriptor())
	}
	b.WriteByte(')')
	return b.String()
}

// MangledName is the flat name a static call to m is emitted under.
func (m *Method) MangledName() string {
	if m.Enclosing == nil {
		return m.Name
	}
	return m.Enclosing.Name + "$" + m.Name
}

// IsClinit reports whether m is a class initializer.
func (m *Method) IsClinit() bool { return m.Name == ClinitName }

// IsDefault reports whether m is an interface instance method carrying a
// usable body: a non-empty statement block or a script fragment. This is a
// predicate over the body shape, not a stored flag.
func (m *Method) IsDefault() bool {
	if m.Enclosing == nil || !m.Enclosing.IsInterface() || m.Static || m.IsClinit() {
		return false
	}
	switch b := m.Body.(type) {
	case *MethodBody:
		return b.Block != nil && len(b.Block.Stmts) > 0
	case *NativeBody:
		return b.Func != nil
	}
	return false
}

func (m *Method) String() string { return m.Key().String() }

// Program owns the declared types, a method arena and the table of static
// implementations created for instance methods.
type Program struct {
	// Scope is the root scope shared by every script fragment.
	Scope *jsast.Scope

	types       []*DeclaredType
	byName      map[string]*DeclaredType
	methods     []*Method
	staticImpls map[MethodKey]MethodID
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{
		Scope:       jsast.NewRootScope(),
		byName:      make(map[string]*DeclaredType),
		staticImpls: make(map[MethodKey]MethodID),
	}
}

// AddType adds t and registers its methods.
func (p *Program) AddType(t *DeclaredType) error {
	if _, ok := p.byName[t.Name]; ok {
		return fmt.Errorf("duplicate type %q", t.Name)
	}
	if t.program != nil {
		return fmt.Errorf("type %q already belongs to a program", t.Name)
	}
	t.program = p
	p.types = append(p.types, t)
	p.byName[t.Name] = t
	for _, m := range t.methods {
		p.register(m)
	}
	return nil
}

func (p *Program) register(m *Method) {
	if m.id != NoMethod {
		return
	}
	m.id = MethodID(len(p.methods))
	p.methods = append(p.methods, m)
}

// Types returns the declared types in declaration order. The slice must
// not be modified.
func (p *Program) Types() []*DeclaredType { return p.types }

// Type returns the type named name, or nil.
func (p *Program) Type(name string) *DeclaredType { return p.byName[name] }

// Method returns the method with the given arena index.
func (p *Program) Method(id MethodID) *Method {
	if id < 0 || int(id) >= len(p.methods) {
		return nil
	}
	return p.methods[id]
}

// NumMethods returns the size of the method arena.
func (p *Program) NumMethods() int { return len(p.methods) }

// StaticImpl returns the static implementation recorded for m, or nil.
func (p *Program) StaticImpl(m *Method) *Method {
	id, ok := p.staticImpls[m.Key()]
	if !ok {
		return nil
	}
	return p.methods[id]
}

// PutStaticImpl records impl as the static implementation of m. Both must
// be attached to p.
func (p *Program) PutStaticImpl(m, impl *Method) {
	if impl.id == NoMethod || p.Method(impl.id) != impl {
		Faultf("static implementation %s of %s is not attached to the program", impl, m)
	}
	key := m.Key()
	if id, ok := p.staticImpls[key]; ok && id != impl.id {
		Faultf("%s already has static implementation %s", m, p.methods[id])
	}
	p.staticImpls[key] = impl.id
}

// NumStaticImpls returns how many static implementations are recorded.
func (p *Program) NumStaticImpls() int { return len(p.staticImpls) }

// Implementors returns, in declaration order, every class that implements
// iface directly, through a superclass, or through a sub-interface.
func (p *Program) Implementors(iface *DeclaredType) []*DeclaredType {
	var out []*DeclaredType
	for _, t := range p.types {
		if t.IsInterface() {
			continue
		}
		if t.IsSubtypeOf(iface) {
			out = append(out, t)
		}
	}
	return out
}
