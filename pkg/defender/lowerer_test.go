package defender

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/defender/internal/names"
	"github.com/715d/defender/pkg/jast"
	"github.com/715d/defender/pkg/jsast"
	"github.com/715d/defender/pkg/progfile"
)

const greeterProgram = `version: "1.0"
types:
  - name: Greeter
    kind: interface
    methods:
      - name: greet
        returns: String
        body:
          - return: {lit: '"hello"'}
  - name: A
    implements: [Greeter]
  - name: B
    implements: [Greeter]
    methods:
      - name: greet
        returns: String
        body:
          - return: {lit: '"b"'}
  - name: User
    methods:
      - name: use
        returns: String
        params: [{name: g, type: Greeter}]
        body:
          - return: {call: "Greeter.greet()", on: g}
      - name: capture
        returns: Object
        native: "return @Greeter::greet();"
      - name: invoke
        returns: Object
        params: [{name: instance, type: Greeter}]
        native: "return instance.@Greeter::greet()();"
`

func parse(t *testing.T, src string) *jast.Program {
	t.Helper()
	p, err := progfile.Parse([]byte(src), "test.yaml")
	require.NoError(t, err)
	return p
}

func native(t *testing.T, m *jast.Method) string {
	t.Helper()
	nb, ok := m.Body.(*jast.NativeBody)
	require.True(t, ok, "%s has no native body", m)
	return jsast.String(nb.Func)
}

func TestLower_Greeter(t *testing.T) {
	p := parse(t, greeterProgram)
	greeter, a, b, user := p.Type("Greeter"), p.Type("A"), p.Type("B"), p.Type("User")
	greet := greeter.MethodBySignature("greet()")

	res, err := NewLowerer(Options{Verify: true}).Lower(p)
	require.NoError(t, err)

	assert.Equal(t, 1, res.TwinsCreated)
	assert.Equal(t, 1, res.ForwardersAdded)
	assert.Equal(t, 1, res.CallsRewritten)
	assert.Equal(t, 1, res.FragmentRefsRewritten)
	assert.Equal(t, 1, res.FragmentInvocationsRewritten)
	assert.Equal(t, 2, res.FragmentsRewritten)
	assert.True(t, res.Changed())

	twin := p.StaticImpl(greet)
	require.NotNil(t, twin)
	assert.Equal(t, []*jast.Method{twin}, res.Twins)
	assert.Equal(t,
		"static String greet$static(Greeter this$static) {\n  return \"hello\";\n}",
		jast.DumpMethod(twin))

	fwd := a.MethodBySignature("greet()")
	require.NotNil(t, fwd)
	assert.Equal(t, []*jast.Method{fwd}, res.Forwarders)
	assert.Equal(t, "String greet() {\n  return Greeter$greet$static(this);\n}", jast.DumpMethod(fwd))
	assert.Len(t, b.Methods(), 1)
	assert.Equal(t, "String greet() {\n  return \"b\";\n}", jast.DumpMethod(b.Methods()[0]))

	assert.Equal(t,
		"String use(Greeter g) {\n  return Greeter$greet$static(g);\n}",
		jast.DumpMethod(user.MethodBySignature("use(Greeter)")))
	assert.Equal(t,
		"function() { return @Greeter::greet$static(LGreeter;); }",
		native(t, user.MethodBySignature("capture()")))
	assert.Equal(t,
		"function(instance) { return @Greeter::greet$static(LGreeter;)(instance); }",
		native(t, user.MethodBySignature("invoke(Greeter)")))
}

func TestLower_Idempotent(t *testing.T) {
	p := parse(t, greeterProgram)
	l := NewLowerer(Options{Verify: true})

	_, err := l.Lower(p)
	require.NoError(t, err)
	before := jast.DumpString(p)
	methods := p.NumMethods()

	res, err := l.Lower(p)
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Zero(t, res.FragmentRefsRewritten)
	assert.Zero(t, res.FragmentInvocationsRewritten)
	assert.Equal(t, before, jast.DumpString(p))
	assert.Equal(t, methods, p.NumMethods())
	assert.Equal(t, 1, p.NumStaticImpls())
}

func TestLower_SingleTwin(t *testing.T) {
	p := parse(t, `version: "1.0"
types:
  - name: Greeter
    kind: interface
    methods:
      - name: greet
        returns: String
        body:
          - return: {lit: '"hello"'}
  - {name: A, implements: [Greeter]}
  - {name: B, implements: [Greeter]}
  - {name: C, extends: A}
  - name: User
    methods:
      - name: one
        params: [{name: g, type: Greeter}]
        body:
          - expr: {call: "Greeter.greet()", on: g}
          - expr: {call: "Greeter.greet()", on: new B}
      - name: two
        native: "var a = @Greeter::greet(); var b = @Greeter::greet();"
`)
	res, err := NewLowerer(Options{Verify: true}).Lower(p)
	require.NoError(t, err)

	assert.Equal(t, 1, res.TwinsCreated)
	assert.Equal(t, 3, res.ForwardersAdded)
	assert.Equal(t, 2, res.CallsRewritten)
	assert.Equal(t, 2, res.FragmentRefsRewritten)

	twin := p.StaticImpl(p.Type("Greeter").MethodBySignature("greet()"))
	jast.Inspect(p.Type("User").MethodBySignature("one(Greeter)").Body, func(n jast.Node) bool {
		if call, ok := n.(*jast.MethodCall); ok {
			assert.Same(t, twin, call.Target)
			assert.Len(t, call.Args, 1)
		}
		return true
	})
}

func TestLower_ImplicitCallInDefault(t *testing.T) {
	p := parse(t, `version: "1.0"
types:
  - name: Greeter
    kind: interface
    methods:
      - name: name
        returns: String
        body:
          - return: {lit: '"anon"'}
      - name: greet
        returns: String
        body:
          - return: {call: "Greeter.name()"}
  - name: Lonely
    kind: interface
    methods:
      - name: hello
        returns: String
        body:
          - return: {lit: '"hi"'}
  - name: A
    implements: [Greeter]
    methods:
      - name: shout
        returns: String
        body:
          - return: {call: "Greeter.greet()"}
      - name: lonely
        returns: String
        params: [{name: l, type: Lonely}]
        body:
          - return: {call: "Lonely.hello()", on: l}
`)
	res, err := NewLowerer(Options{Verify: true}).Lower(p)
	require.NoError(t, err)

	greeter := p.Type("Greeter")
	greetTwin := greeter.MethodBySignature("greet$static(Greeter)")
	require.NotNil(t, greetTwin)
	assert.Equal(t,
		"static String greet$static(Greeter this$static) {\n  return Greeter$name$static(this$static);\n}",
		jast.DumpMethod(greetTwin))

	shout := p.Type("A").MethodBySignature("shout()")
	assert.Equal(t, "String shout() {\n  return Greeter$greet$static(this);\n}", jast.DumpMethod(shout))
	call := shout.Body.(*jast.MethodBody).Block.Stmts[0].(*jast.ReturnStmt).Expr.(*jast.MethodCall)
	assert.Same(t, p.Type("A"), call.Args[0].(*jast.ThisRef).Class)

	// A default of an interface without implementors still gets a twin
	// once a call needs it.
	lonely := p.Type("Lonely").MethodBySignature("hello()")
	require.NotNil(t, p.StaticImpl(lonely))
	assert.Equal(t, 3, res.TwinsCreated)
}

func TestLower_TwinCreatedMidWalk(t *testing.T) {
	// Chain has no implementors, so its twins only appear while the walk
	// reaches first() and must still have their moved bodies rewritten.
	p := parse(t, `version: "1.0"
types:
  - name: Chain
    kind: interface
    methods:
      - name: first
        returns: String
        body:
          - return: {call: "Chain.second()"}
      - name: second
        returns: String
        body:
          - return: {call: "Chain.third()"}
      - name: third
        returns: String
        body:
          - return: {lit: '"end"'}
`)
	res, err := NewLowerer(Options{Verify: true}).Lower(p)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TwinsCreated)

	second := p.Type("Chain").MethodBySignature("second$static(Chain)")
	require.NotNil(t, second)
	assert.Equal(t,
		"static String second$static(Chain this$static) {\n  return Chain$third$static(this$static);\n}",
		jast.DumpMethod(second))
}

func TestLower_Invariant(t *testing.T) {
	p := parse(t, `version: "1.0"
types:
  - name: Greeter
    kind: interface
    methods:
      - name: greet
        returns: String
        body:
          - return: {lit: '"hello"'}
  - name: User
    methods:
      - name: broken
        returns: Object
        native: "return @Greeter::greet()();"
`)
	res, err := NewLowerer(Options{}).Lower(p)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrInvariant), "got %v", err)
	assert.Contains(t, err.Error(), "@Greeter::greet()")
}

func TestVerify(t *testing.T) {
	p := parse(t, greeterProgram)

	err := Verify(p, names.NewCache())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVerify))

	var verr *VerifyError
	require.True(t, errors.As(err, &verr))
	var messages []string
	for _, problem := range verr.Problems {
		messages = append(messages, problem.Message)
	}
	assert.ElementsMatch(t, []string{
		"call still targets default method Greeter.greet()",
		"fragment linkage still targets default method Greeter.greet()",
		"fragment still references default method Greeter.greet()",
		"fragment linkage still targets default method Greeter.greet()",
		"fragment still references default method Greeter.greet()",
		"implementor A has no method greet()",
	}, messages)

	_, err = NewLowerer(Options{}).Lower(p)
	require.NoError(t, err)
	assert.NoError(t, Verify(p, names.NewCache()))
}
