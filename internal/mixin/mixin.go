// Package mixin adds forwarding methods to classes that inherit default
// interface methods without declaring their own.
package mixin

import (
	"log/slog"

	"github.com/715d/defender/internal/staticimpl"
	"github.com/715d/defender/pkg/jast"
)

// Synthesizer mixes default methods into implementing classes.
type Synthesizer struct {
	prog       *jast.Program
	reg        *staticimpl.Registry
	forwarders []*jast.Method
}

// New returns a synthesizer that obtains twins from reg.
func New(prog *jast.Program, reg *staticimpl.Registry) *Synthesizer {
	return &Synthesizer{prog: prog, reg: reg}
}

// Forwarders returns the forwarding methods added so far, in the order they
// were added.
func (s *Synthesizer) Forwarders() []*jast.Method { return s.forwarders }

// Run visits every interface in declaration order. For each default method
// of an interface with at least one implementor, it ensures the twin exists
// and adds a forwarder to each implementor that lacks a method of the same
// signature.
func (s *Synthesizer) Run() {
	for _, iface := range s.prog.Types() {
		if !iface.IsInterface() {
			continue
		}
		defaults := defaultMethods(iface)
		if len(defaults) == 0 {
			continue
		}
		implementors := s.prog.Implementors(iface)
		if len(implementors) == 0 {
			slog.Debug("interface has no implementors",
				slog.String("interface", iface.Name),
				slog.Int("defaults", len(defaults)))
			continue
		}
		for _, d := range defaults {
			twin := s.reg.GetOrCreate(d)
			for _, class := range implementors {
				s.mixin(class, d, twin)
			}
		}
	}
}

// mixin adds a forwarder for d to class unless class already declares a
// method with d's signature. Only the class's own methods are consulted.
func (s *Synthesizer) mixin(class *jast.DeclaredType, d, twin *jast.Method) {
	if class.MethodBySignature(d.Signature()) != nil {
		return
	}
	fwd := forwarder(class, d, twin)
	class.AddMethod(fwd)
	s.forwarders = append(s.forwarders, fwd)
	slog.Debug("added forwarder",
		slog.String("class", class.Name),
		slog.String("method", d.Signature()))
}

// forwarder builds a method on class with d's shape whose body passes the
// receiver and every argument to twin.
func forwarder(class *jast.DeclaredType, d, twin *jast.Method) *jast.Method {
	pos := class.Pos
	fwd := jast.NewMethod(pos, d.Name, d.Result)
	fwd.Access = d.Access
	fwd.Synthetic = true
	fwd.Thrown = append([]jast.Type(nil), d.Thrown...)

	args := []jast.Expr{jast.NewThisRef(pos, class)}
	for _, p := range d.Params() {
		np := jast.NewParam(pos, p.Name, p.Type, p.Final)
		fwd.AddParam(np)
		args = append(args, jast.NewParamRef(pos, np))
	}
	call := jast.NewMethodCall(pos, nil, twin, args...)

	var stmt jast.Stmt
	if d.Result.IsVoid() {
		stmt = jast.NewExprStmt(pos, call)
	} else {
		stmt = jast.NewReturn(pos, call)
	}
	fwd.Body = jast.NewMethodBody(pos, jast.NewBlock(pos, stmt))
	fwd.FreezeParamTypes()
	fwd.AddOverriddenMethod(d)
	return fwd
}

func defaultMethods(iface *jast.DeclaredType) []*jast.Method {
	var defaults []*jast.Method
	for _, m := range iface.Methods() {
		if m.IsDefault() {
			defaults = append(defaults, m)
		}
	}
	return defaults
}
