package staticimpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/defender/pkg/jast"
	"github.com/715d/defender/pkg/jsast"
)

var pos = jast.Pos{File: "test.yaml", Line: 1}

// greeterProgram declares
//
//	interface Greeter {
//	  String greet(String who) { return this.prefix(who); }
//	  abstract String prefix(String who);
//	}
func greeterProgram(t *testing.T) (*jast.Program, *jast.DeclaredType, *jast.Method) {
	t.Helper()
	p := jast.NewProgram()
	iface := jast.NewInterface(pos, "Greeter")

	prefix := jast.NewMethod(pos, "prefix", "String")
	prefix.Abstract = true
	prefix.AddParam(jast.NewParam(pos, "who", "String", false))

	greet := jast.NewMethod(pos, "greet", "String")
	greet.Access = "public"
	greet.Thrown = []jast.Type{"IOException"}
	who := jast.NewParam(pos, "who", "String", true)
	greet.AddParam(who)
	greet.Body = jast.NewMethodBody(pos, jast.NewBlock(pos,
		jast.NewReturn(pos, jast.NewMethodCall(pos, jast.NewThisRef(pos, iface), prefix, jast.NewParamRef(pos, who))),
	))

	iface.AddMethod(greet)
	iface.AddMethod(prefix)
	require.NoError(t, p.AddType(iface))
	return p, iface, greet
}

func TestGetOrCreate_TypedBody(t *testing.T) {
	p, iface, greet := greeterProgram(t)
	r := New(p)

	twin := r.GetOrCreate(greet)

	assert.Equal(t, "greet$static", twin.Name)
	assert.True(t, twin.Static)
	assert.True(t, twin.Synthetic)
	assert.False(t, twin.Native)
	assert.Equal(t, "public", twin.Access)
	assert.Equal(t, []jast.Type{"IOException"}, twin.Thrown)
	assert.Same(t, iface, twin.Enclosing)
	assert.True(t, twin.ParamTypesFrozen())
	assert.Equal(t, "greet$static(Greeter,String)", twin.Signature())

	params := twin.Params()
	require.Len(t, params, 2)
	assert.Equal(t, ReceiverName, params[0].Name)
	assert.Equal(t, "who", params[1].Name)
	assert.True(t, params[1].Final)

	assert.Equal(t,
		"public static String greet$static(Greeter this$static, final String who) throws IOException {\n"+
			"  return this$static.prefix(who);\n"+
			"}",
		jast.DumpMethod(twin))

	// The relocated body refers to the twin's parameters only.
	jast.Inspect(twin.Body, func(n jast.Node) bool {
		if ref, ok := n.(*jast.ParamRef); ok {
			assert.Same(t, twin, ref.Param.Method())
		}
		return true
	})

	assert.Equal(t,
		"public String greet(final String who) throws IOException {\n"+
			"  return Greeter$greet$static(this, who);\n"+
			"}",
		jast.DumpMethod(greet))
	assert.True(t, greet.IsDefault())
	assert.Same(t, twin, p.StaticImpl(greet))
	assert.Equal(t, []*jast.Method{twin}, r.Created())
}

func TestGetOrCreate_Memoized(t *testing.T) {
	p, _, greet := greeterProgram(t)
	r := New(p)

	first := r.GetOrCreate(greet)
	second := r.GetOrCreate(greet)
	assert.Same(t, first, second)

	// A fresh registry over the same program sees the recorded twin.
	again := New(p).GetOrCreate(greet)
	assert.Same(t, first, again)
	assert.Equal(t, 1, p.NumStaticImpls())

	got, ok := r.Lookup(greet)
	assert.True(t, ok)
	assert.Same(t, first, got)
}

func TestGetOrCreate_ImplicitInstance(t *testing.T) {
	p := jast.NewProgram()
	iface := jast.NewInterface(pos, "Named")
	name := jast.NewMethod(pos, "name", "String")
	name.Abstract = true
	shout := jast.NewMethod(pos, "shout", jast.Void)
	shout.Body = jast.NewMethodBody(pos, jast.NewBlock(pos,
		jast.NewExprStmt(pos, jast.NewMethodCall(pos, jast.NewImplicitInstance(pos), name)),
	))
	iface.AddMethod(name)
	iface.AddMethod(shout)
	require.NoError(t, p.AddType(iface))

	twin := New(p).GetOrCreate(shout)

	assert.Equal(t,
		"static void shout$static(Named this$static) {\n"+
			"  this$static.name();\n"+
			"}",
		jast.DumpMethod(twin))
	assert.Equal(t,
		"void shout() {\n"+
			"  Named$shout$static(this);\n"+
			"}",
		jast.DumpMethod(shout))
}

func TestGetOrCreate_NativeBody(t *testing.T) {
	p := jast.NewProgram()
	iface := jast.NewInterface(pos, "Greeter")
	greet := jast.NewMethod(pos, "greet", "String")
	greet.Native = true
	greet.AddParam(jast.NewParam(pos, "who", "String", false))
	iface.AddMethod(greet)
	require.NoError(t, p.AddType(iface))

	fn, err := jsast.ParseFunction(
		"return this.prefix + who + (function() { return this; })();",
		[]string{"who"}, p.Scope)
	require.NoError(t, err)
	body := jast.NewNativeBody(pos, fn)
	body.AddRef(jast.NewNativeMethodRef(pos, "@Greeter::greet(LString;)", greet))
	greet.Body = body

	twin := New(p).GetOrCreate(greet)

	assert.True(t, twin.Native)
	nb, ok := twin.Body.(*jast.NativeBody)
	require.True(t, ok)
	require.Len(t, nb.Func.Params, 2)
	assert.Equal(t, ReceiverName, nb.Func.Params[0].Ident)
	assert.Same(t, nb.Func.Scope, nb.Func.Params[0].Enclosing())
	assert.Equal(t,
		"function(this$static, who) { return this$static.prefix + who + (function() { return this; })(); }",
		jsast.String(nb.Func))
	assert.Same(t, body, nb)
	assert.Len(t, nb.Refs, 1)

	assert.False(t, greet.Native)
	assert.Equal(t,
		"String greet(String who) {\n"+
			"  return Greeter$greet$static(this, who);\n"+
			"}",
		jast.DumpMethod(greet))
}

func TestGetOrCreate_NotDefault(t *testing.T) {
	p, iface, _ := greeterProgram(t)
	r := New(p)

	abstract := iface.MethodBySignature("prefix(String)")
	require.NotNil(t, abstract)

	clinit := jast.NewMethod(pos, jast.ClinitName, jast.Void)
	clinit.Static = true
	clinit.Body = jast.NewMethodBody(pos, jast.NewBlock(pos, jast.NewReturn(pos, nil)))
	iface.AddMethod(clinit)

	tests := []struct {
		name   string
		method *jast.Method
	}{
		{"abstract", abstract},
		{"class initializer", clinit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PanicsWithError(t,
				"invariant violation: static implementation requested for "+tt.method.String()+", which is not a default method",
				func() { r.GetOrCreate(tt.method) })
		})
	}
	assert.Zero(t, p.NumStaticImpls())
}
