// Package progfile loads program descriptions written in YAML.
//
// A description lists declared types with their methods. Typed method
// bodies are written as statement lists, native bodies as script
// fragments:
//
//	version: "1.0"
//	types:
//	  - name: Greeter
//	    kind: interface
//	    methods:
//	      - name: greet
//	        returns: String
//	        body:
//	          - return: {lit: '"hello"'}
//	  - name: User
//	    methods:
//	      - name: use
//	        returns: String
//	        params: [{name: g, type: Greeter}]
//	        body:
//	          - return: {call: "Greeter.greet()", on: g}
//	      - name: capture
//	        returns: Object
//	        native: "return @Greeter::greet();"
//
// Expressions are either scalars ("this", "new T", a parameter or local
// name, or a bare number or boolean) or mappings with a "lit" key (plus an
// optional "type") or a "call" key naming the target as "Type.name(T1,T2)"
// with optional "on" receiver and "args". A call without "on" uses the
// implicit receiver for instance targets.
package progfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	yaml "gopkg.in/yaml.v3"

	"github.com/715d/defender/internal/names"
	"github.com/715d/defender/pkg/jast"
	"github.com/715d/defender/pkg/jsast"
)

// SupportedVersions is the constraint a description's version must meet.
const SupportedVersions = "^1.0"

// ErrUnsupportedVersion is returned for descriptions whose version does
// not satisfy SupportedVersions.
var ErrUnsupportedVersion = errors.New("unsupported program format version")

// Error is a problem at a position of a description.
type Error struct {
	Pos jast.Pos
	Err error
}

func (e *Error) Error() string { return e.Pos.String() + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Load reads and parses the description at path.
func Load(path string) (*jast.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	return Parse(data, path)
}

// Parse builds a program from a description. filename is used in
// positions only.
func Parse(data []byte, filename string) (*jast.Program, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	if err := checkVersion(f.Version); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	b := &builder{
		filename: filename,
		prog:     jast.NewProgram(),
		decls:    make(map[*jast.Method]*methodDecl),
	}
	// Declarations come first so bodies may refer to any type or method.
	if err := b.declare(f.Types); err != nil {
		return nil, err
	}
	if err := b.link(f.Types); err != nil {
		return nil, err
	}
	if err := b.bodies(); err != nil {
		return nil, err
	}
	return b.prog, nil
}

func checkVersion(v string) error {
	if v == "" {
		return fmt.Errorf("%w: missing version", ErrUnsupportedVersion)
	}
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedVersion, v, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedVersion, version, SupportedVersions)
	}
	return nil
}

type builder struct {
	filename string
	prog     *jast.Program
	methods  []*jast.Method // declaration order
	decls    map[*jast.Method]*methodDecl
}

func (b *builder) pos(line int) jast.Pos {
	return jast.Pos{File: b.filename, Line: line}
}

func (b *builder) errorf(line int, format string, args ...any) error {
	return &Error{Pos: b.pos(line), Err: fmt.Errorf(format, args...)}
}

// declare creates every type with its method signatures.
func (b *builder) declare(decls []typeDecl) error {
	for i := range decls {
		d := &decls[i]
		if d.Name == "" {
			return b.errorf(d.line, "type without a name")
		}
		var t *jast.DeclaredType
		switch d.Kind {
		case "", "class":
			t = jast.NewClass(b.pos(d.line), d.Name)
		case "interface":
			t = jast.NewInterface(b.pos(d.line), d.Name)
		default:
			return b.errorf(d.line, "type %s: unknown kind %q", d.Name, d.Kind)
		}
		t.Abstract = d.Abstract

		for j := range d.Methods {
			md := &d.Methods[j]
			m, err := b.method(md)
			if err != nil {
				return err
			}
			if t.MethodBySignature(m.Signature()) != nil {
				return b.errorf(md.line, "type %s: duplicate method %s", d.Name, m.Signature())
			}
			t.AddMethod(m)
			b.methods = append(b.methods, m)
			b.decls[m] = md
		}
		if err := b.prog.AddType(t); err != nil {
			return b.errorf(d.line, "%v", err)
		}
	}
	return nil
}

func (b *builder) method(d *methodDecl) (*jast.Method, error) {
	if d.Name == "" {
		return nil, b.errorf(d.line, "method without a name")
	}
	result := jast.Type(d.Returns)
	if result == "" {
		result = jast.Void
	}
	m := jast.NewMethod(b.pos(d.line), d.Name, result)
	m.Access = d.Access
	m.Static = d.Static
	m.Final = d.Final
	for _, t := range d.Throws {
		m.Thrown = append(m.Thrown, jast.Type(t))
	}

	hasBody := d.Body.Kind != 0
	switch {
	case hasBody && d.Native != nil:
		return nil, b.errorf(d.line, "method %s: both body and native fragment", d.Name)
	case d.Abstract && (hasBody || d.Native != nil):
		return nil, b.errorf(d.line, "method %s: abstract method with a body", d.Name)
	case !hasBody && d.Native == nil:
		m.Abstract = true
	}
	m.Native = d.Native != nil

	seen := make(map[string]bool, len(d.Params))
	for _, p := range d.Params {
		if p.Name == "" || p.Type == "" {
			return nil, b.errorf(p.line, "method %s: parameter needs a name and a type", d.Name)
		}
		if seen[p.Name] {
			return nil, b.errorf(p.line, "method %s: duplicate parameter %s", d.Name, p.Name)
		}
		seen[p.Name] = true
		m.AddParam(jast.NewParam(b.pos(p.line), p.Name, jast.Type(p.Type), p.Final))
	}
	m.FreezeParamTypes()
	return m, nil
}

// link resolves supertypes.
func (b *builder) link(decls []typeDecl) error {
	for i := range decls {
		d := &decls[i]
		t := b.prog.Type(d.Name)
		if t.IsInterface() {
			if len(d.Implements) > 0 {
				return b.errorf(d.line, "interface %s: interfaces extend, they do not implement", d.Name)
			}
			supers, err := b.interfaces(d, d.Extends)
			if err != nil {
				return err
			}
			t.Interfaces = supers
			continue
		}

		switch len(d.Extends) {
		case 0:
		case 1:
			super := b.prog.Type(d.Extends[0])
			if super == nil {
				return b.errorf(d.line, "class %s: unknown superclass %s", d.Name, d.Extends[0])
			}
			if super.IsInterface() {
				return b.errorf(d.line, "class %s: cannot extend interface %s", d.Name, super.Name)
			}
			t.Super = super
		default:
			return b.errorf(d.line, "class %s: more than one superclass", d.Name)
		}
		ifaces, err := b.interfaces(d, d.Implements)
		if err != nil {
			return err
		}
		t.Interfaces = ifaces
	}

	for _, t := range b.prog.Types() {
		if t.Super != nil && t.Super.IsSubtypeOf(t) {
			return b.errorf(t.Pos.Line, "class %s: cyclic inheritance", t.Name)
		}
	}
	return nil
}

func (b *builder) interfaces(d *typeDecl, names []string) ([]*jast.DeclaredType, error) {
	var out []*jast.DeclaredType
	for _, name := range names {
		iface := b.prog.Type(name)
		if iface == nil {
			return nil, b.errorf(d.line, "type %s: unknown interface %s", d.Name, name)
		}
		if !iface.IsInterface() {
			return nil, b.errorf(d.line, "type %s: %s is not an interface", d.Name, name)
		}
		out = append(out, iface)
	}
	return out, nil
}

// bodies builds method bodies once every signature is known.
func (b *builder) bodies() error {
	index := names.NewCache().Index(b.prog)
	for _, m := range b.methods {
		d := b.decls[m]
		switch {
		case d.Native != nil:
			body, err := b.fragment(m, *d.Native, index)
			if err != nil {
				return err
			}
			m.Body = body
		case d.Body.Kind != 0:
			body, err := b.typedBody(m, &d.Body)
			if err != nil {
				return err
			}
			m.Body = body
		}
	}
	return nil
}

// fragment parses a native body and links each member reference that
// names a method.
func (b *builder) fragment(m *jast.Method, src string, index map[string]*jast.Method) (*jast.NativeBody, error) {
	params := make([]string, len(m.Params()))
	for i, p := range m.Params() {
		params[i] = p.Name
	}
	fn, err := jsast.ParseFunction(src, params, b.prog.Scope)
	if err != nil {
		return nil, &Error{Pos: m.Pos, Err: fmt.Errorf("method %s: %w", m.Name, err)}
	}

	body := jast.NewNativeBody(m.Pos, fn)
	var linkErr error
	jsast.Inspect(fn, func(n jsast.Node) bool {
		ref, ok := n.(*jsast.NameRef)
		if !ok || !ref.IsMemberRef() || linkErr != nil {
			return linkErr == nil
		}
		if !isMethodRef(ref.Ident) {
			return true
		}
		target, ok := index[ref.Ident]
		if !ok {
			linkErr = &Error{Pos: m.Pos, Err: fmt.Errorf("method %s: unknown method %s", m.Name, ref.Ident)}
			return false
		}
		body.AddRef(jast.NewNativeMethodRef(m.Pos, ref.Ident, target))
		return true
	})
	if linkErr != nil {
		return nil, linkErr
	}
	return body, nil
}

// isMethodRef tells method references ("@T::m(sig)") from field
// references ("@T::f").
func isMethodRef(ident string) bool {
	n := len(ident)
	return n > 0 && ident[n-1] == ')'
}
