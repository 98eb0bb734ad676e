// Package staticimpl creates and records the static twin of each default
// interface method.
//
// A twin takes the receiver as an explicit first parameter named
// "this$static" and owns the relocated body of the default method. The
// default method itself keeps a delegating body so that calls which were
// not devirtualized still behave the same.
package staticimpl

import (
	"log/slog"

	"github.com/715d/defender/pkg/jast"
	"github.com/715d/defender/pkg/jsast"
)

const (
	// TwinSuffix is appended to the default method name to name its twin.
	TwinSuffix = "$static"
	// ReceiverName is the name of the explicit receiver parameter.
	ReceiverName = "this$static"
)

// Registry hands out static twins. It reads and writes the program's static
// implementation table, so twins survive across registries and lowering
// runs over the same program.
type Registry struct {
	prog    *jast.Program
	created []*jast.Method
}

// New returns a registry over prog.
func New(prog *jast.Program) *Registry {
	return &Registry{prog: prog}
}

// Created returns the twins created by this registry, in creation order.
func (r *Registry) Created() []*jast.Method { return r.created }

// Lookup returns the twin of m if one is registered.
func (r *Registry) Lookup(m *jast.Method) (*jast.Method, bool) {
	impl := r.prog.StaticImpl(m)
	return impl, impl != nil
}

// GetOrCreate returns the twin of the default method m, creating and
// registering it on first request. m must be a default method attached to
// the program; anything else is an invariant violation.
func (r *Registry) GetOrCreate(m *jast.Method) *jast.Method {
	if impl := r.prog.StaticImpl(m); impl != nil {
		return impl
	}
	if !m.IsDefault() {
		jast.Faultf("static implementation requested for %s, which is not a default method", m)
	}
	if m.ID() == jast.NoMethod {
		jast.Faultf("static implementation requested for unattached method %s", m)
	}

	iface := m.Enclosing
	twin := jast.NewMethod(m.Pos, m.Name+TwinSuffix, m.Result)
	twin.Access = m.Access
	twin.Static = true
	twin.Synthetic = true
	twin.Thrown = append([]jast.Type(nil), m.Thrown...)

	recv := jast.NewParam(m.Pos, ReceiverName, iface.Type(), false)
	twin.AddParam(recv)
	params := make(map[*jast.Param]*jast.Param, len(m.Params()))
	for _, p := range m.Params() {
		np := jast.NewParam(p.Pos, p.Name, p.Type, p.Final)
		twin.AddParam(np)
		params[p] = np
	}

	switch body := m.Body.(type) {
	case *jast.MethodBody:
		twin.Body = relocate(body, recv, params)
	case *jast.NativeBody:
		twin.Body = relocateNative(body)
		twin.Native = true
	}

	twin.FreezeParamTypes()
	iface.AddMethod(twin)
	r.prog.PutStaticImpl(m, twin)
	r.created = append(r.created, twin)

	m.Body = delegation(m, twin)
	m.Native = false

	slog.Debug("created static implementation",
		slog.String("method", m.String()),
		slog.String("twin", twin.Name),
		slog.Bool("native", twin.Native))
	return twin
}

// relocate moves body into the twin, redirecting receiver uses to recv and
// parameter uses to the twin's copies.
func relocate(body *jast.MethodBody, recv *jast.Param, params map[*jast.Param]*jast.Param) *jast.MethodBody {
	block := jast.Rewrite(body.Block, func(c *jast.Cursor) {
		switch x := c.Node().(type) {
		case *jast.ThisRef:
			c.Replace(jast.NewParamRef(x.Pos(), recv))
		case *jast.ImplicitInstance:
			c.Replace(jast.NewParamRef(x.Pos(), recv))
		case *jast.ParamRef:
			if np, ok := params[x.Param]; ok {
				c.Replace(jast.NewParamRef(x.Pos(), np))
			}
		}
	}).(*jast.Block)
	return jast.NewMethodBody(body.Pos(), block)
}

// relocateNative moves a fragment into the twin. The fragment gains a
// leading receiver parameter and its top-level uses of "this" read that
// parameter instead. Nested function literals keep their own "this". The
// body itself, including its linkage entries, is shared with the twin.
func relocateNative(body *jast.NativeBody) *jast.NativeBody {
	fn := body.Func
	recv := fn.Scope.Declare(ReceiverName)
	fn.Params = append([]*jsast.Name{recv}, fn.Params...)
	jsast.Apply(fn.Body, func(c *jsast.Cursor) bool {
		_, nested := c.Node().(*jsast.FuncExpr)
		return !nested
	}, func(c *jsast.Cursor) bool {
		if _, ok := c.Node().(*jsast.This); ok {
			c.Replace(jsast.NewRef(recv))
		}
		return true
	})
	return body
}

// delegation builds the body left behind in m: a call to twin passing the
// receiver and every parameter.
func delegation(m, twin *jast.Method) *jast.MethodBody {
	args := make([]jast.Expr, 0, len(m.Params())+1)
	args = append(args, jast.NewThisRef(m.Pos, m.Enclosing))
	for _, p := range m.Params() {
		args = append(args, jast.NewParamRef(m.Pos, p))
	}
	call := jast.NewMethodCall(m.Pos, nil, twin, args...)

	var stmt jast.Stmt
	if m.Result.IsVoid() {
		stmt = jast.NewExprStmt(m.Pos, call)
	} else {
		stmt = jast.NewReturn(m.Pos, call)
	}
	return jast.NewMethodBody(m.Pos, jast.NewBlock(m.Pos, stmt))
}
