package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/defender/internal/names"
	"github.com/715d/defender/internal/staticimpl"
	"github.com/715d/defender/pkg/jast"
	"github.com/715d/defender/pkg/jsast"
)

var pos = jast.Pos{File: "test.yaml", Line: 1}

const (
	greetIdent = "@Greeter::greet()"
	twinIdent  = "@Greeter::greet$static(LGreeter;)"
)

type fixture struct {
	prog    *jast.Program
	greeter *jast.DeclaredType
	greet   *jast.Method
	user    *jast.DeclaredType
}

// newFixture declares interface Greeter with default greet() and an
// implementing class User.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	p := jast.NewProgram()
	greeter := jast.NewInterface(pos, "Greeter")
	greet := jast.NewMethod(pos, "greet", "String")
	greet.Body = jast.NewMethodBody(pos, jast.NewBlock(pos,
		jast.NewReturn(pos, jast.NewLiteral(pos, `"hello"`, "String"))))
	greeter.AddMethod(greet)
	user := jast.NewClass(pos, "User")
	user.Interfaces = []*jast.DeclaredType{greeter}
	require.NoError(t, p.AddType(greeter))
	require.NoError(t, p.AddType(user))
	return &fixture{prog: p, greeter: greeter, greet: greet, user: user}
}

// native adds a native method to User whose fragment is src. Every member
// reference to greet() gets a linkage entry.
func (f *fixture) native(t *testing.T, name string, src string, params ...*jast.Param) *jast.Method {
	t.Helper()
	m := jast.NewMethod(pos, name, "Object")
	m.Native = true
	var idents []string
	for _, p := range params {
		m.AddParam(p)
		idents = append(idents, p.Name)
	}
	fn, err := jsast.ParseFunction(src, idents, f.prog.Scope)
	require.NoError(t, err)
	body := jast.NewNativeBody(pos, fn)
	body.AddRef(jast.NewNativeMethodRef(pos, greetIdent, f.greet))
	m.Body = body
	f.user.AddMethod(m)
	return m
}

func (f *fixture) run() *Rewriter {
	rw := New(staticimpl.New(f.prog), names.NewCache())
	jast.RewriteProgram(f.prog, rw.Post)
	return rw
}

func fragment(m *jast.Method) string {
	return jsast.String(m.Body.(*jast.NativeBody).Func)
}

func TestPost_TypedCalls(t *testing.T) {
	f := newFixture(t)

	g := jast.NewParam(pos, "g", f.greeter.Type(), false)
	use := jast.NewMethod(pos, "use", "String")
	use.AddParam(g)
	use.Body = jast.NewMethodBody(pos, jast.NewBlock(pos,
		jast.NewReturn(pos, jast.NewMethodCall(pos, jast.NewParamRef(pos, g), f.greet))))
	f.user.AddMethod(use)

	hi := jast.NewMethod(pos, "hi", "String")
	hi.Body = jast.NewMethodBody(pos, jast.NewBlock(pos,
		jast.NewReturn(pos, jast.NewMethodCall(pos, jast.NewImplicitInstance(pos), f.greet))))
	f.user.AddMethod(hi)

	rw := f.run()

	assert.Equal(t, "String use(Greeter g) {\n  return Greeter$greet$static(g);\n}", jast.DumpMethod(use))
	assert.Equal(t, "String hi() {\n  return Greeter$greet$static(this);\n}", jast.DumpMethod(hi))

	call := hi.Body.(*jast.MethodBody).Block.Stmts[0].(*jast.ReturnStmt).Expr.(*jast.MethodCall)
	assert.True(t, call.IsStatic())
	require.Len(t, call.Args, 1)
	this, ok := call.Args[0].(*jast.ThisRef)
	require.True(t, ok)
	assert.Same(t, f.user, this.Class)

	assert.Equal(t, 2, rw.Stats().CallsRewritten)
	assert.Same(t, call.Target, f.prog.StaticImpl(f.greet))
}

func TestPost_CallArguments(t *testing.T) {
	f := newFixture(t)
	say := jast.NewMethod(pos, "say", jast.Void)
	say.AddParam(jast.NewParam(pos, "what", "String", false))
	say.AddParam(jast.NewParam(pos, "times", jast.Int, false))
	say.Body = jast.NewMethodBody(pos, jast.NewBlock(pos, jast.NewReturn(pos, nil)))
	f.greeter.AddMethod(say)

	run := jast.NewMethod(pos, "run", jast.Void)
	run.Body = jast.NewMethodBody(pos, jast.NewBlock(pos,
		jast.NewExprStmt(pos, jast.NewMethodCall(pos, jast.NewNewInstance(pos, f.user), say,
			jast.NewLiteral(pos, `"hi"`, "String"),
			jast.NewLiteral(pos, "3", jast.Int)))))
	f.user.AddMethod(run)

	f.run()

	assert.Equal(t,
		"void run() {\n  Greeter$say$static(new User(), \"hi\", 3);\n}",
		jast.DumpMethod(run))
}

func TestPost_Fragments(t *testing.T) {
	tests := []struct {
		name        string
		src         string
		params      []string
		want        string
		refs        int
		invocations int
	}{
		{
			name: "bare reference",
			src:  "var f = @Greeter::greet(); return f;",
			want: "function() { var f = " + twinIdent + "; return f; }",
			refs: 1,
		},
		{
			name:        "invocation",
			src:         "return instance.@Greeter::greet()();",
			params:      []string{"instance"},
			want:        "function(instance) { return " + twinIdent + "(instance); }",
			invocations: 1,
		},
		{
			name:        "invocation through this",
			src:         "return this.@Greeter::greet()();",
			want:        "function() { return " + twinIdent + "(this); }",
			invocations: 1,
		},
		{
			name:        "qualified reference as argument",
			src:         "return instance.@Greeter::greet()(a.@Greeter::greet());",
			params:      []string{"instance", "a"},
			want:        "function(instance, a) { return " + twinIdent + "(instance, " + twinIdent + "); }",
			refs:        1,
			invocations: 1,
		},
		{
			name:        "nested qualifier",
			src:         "return instance.inner.@Greeter::greet()(1, 2);",
			params:      []string{"instance"},
			want:        "function(instance) { return " + twinIdent + "(instance.inner, 1, 2); }",
			invocations: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var params []*jast.Param
			for _, name := range tt.params {
				params = append(params, jast.NewParam(pos, name, f.greeter.Type(), false))
			}
			m := f.native(t, "call", tt.src, params...)

			rw := f.run()

			assert.Equal(t, tt.want, fragment(m))
			stats := rw.Stats()
			assert.Equal(t, 1, stats.Fragments)
			assert.Equal(t, tt.refs, stats.FragmentRefs)
			assert.Equal(t, tt.invocations, stats.FragmentInvocations)

			refs := m.Body.(*jast.NativeBody).Refs
			require.Len(t, refs, 1)
			assert.Equal(t, twinIdent, refs[0].Ident)
			assert.Same(t, f.prog.StaticImpl(f.greet), refs[0].Target)
		})
	}
}

func TestPost_InvocationDeclaresName(t *testing.T) {
	f := newFixture(t)
	m := f.native(t, "call", "return instance.@Greeter::greet()();",
		jast.NewParam(pos, "instance", f.greeter.Type(), false))

	f.run()

	fn := m.Body.(*jast.NativeBody).Func
	ret := fn.Body.Stmts[0].(*jsast.Return)
	callee := ret.X.(*jsast.Invocation).Callee.(*jsast.NameRef)
	require.NotNil(t, callee.Name)
	assert.Same(t, fn.Scope, callee.Name.Enclosing())
	assert.Same(t, callee.Name, fn.Scope.Lookup(twinIdent))
	assert.Nil(t, callee.Qualifier)
}

func TestPost_UnresolvableQualifier(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no qualifier", "return @Greeter::greet()();"},
		{"call qualifier", "return make().@Greeter::greet()();"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.native(t, "call", tt.src)

			var fault any
			func() {
				defer func() { fault = recover() }()
				f.run()
			}()
			_, ok := fault.(*jast.InvariantError)
			assert.True(t, ok, "expected an invariant violation, got %v", fault)
		})
	}
}

func TestPost_SkipsUnrelatedFragments(t *testing.T) {
	f := newFixture(t)
	m := jast.NewMethod(pos, "plain", "Object")
	m.Native = true
	fn, err := jsast.ParseFunction("return window.document;", nil, f.prog.Scope)
	require.NoError(t, err)
	m.Body = jast.NewNativeBody(pos, fn)
	f.user.AddMethod(m)

	rw := f.run()

	assert.Zero(t, rw.Stats().Fragments)
	assert.Equal(t, "function() { return window.document; }", fragment(m))
	assert.Nil(t, f.prog.StaticImpl(f.greet))
}

func TestPost_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.native(t, "call", "return instance.@Greeter::greet()(@Greeter::greet());",
		jast.NewParam(pos, "instance", f.greeter.Type(), false))
	g := jast.NewParam(pos, "g", f.greeter.Type(), false)
	use := jast.NewMethod(pos, "use", "String")
	use.AddParam(g)
	use.Body = jast.NewMethodBody(pos, jast.NewBlock(pos,
		jast.NewReturn(pos, jast.NewMethodCall(pos, jast.NewParamRef(pos, g), f.greet))))
	f.user.AddMethod(use)

	f.run()
	before := jast.DumpString(f.prog)

	rw := f.run()
	assert.Equal(t, Stats{}, rw.Stats())
	assert.Equal(t, before, jast.DumpString(f.prog))
}
