package progfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/defender/pkg/jast"
	"github.com/715d/defender/pkg/jsast"
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
      - name: name
        returns: String
  - name: A
    implements: [Greeter]
  - name: B
    implements: Greeter
    methods:
      - name: greet
        returns: String
        body:
          - return: {lit: '"b"'}
      - name: name
        returns: String
        body:
          - return: {lit: '"B"'}
  - name: User
    methods:
      - name: use
        returns: String
        params: [{name: g, type: Greeter, final: true}]
        body:
          - local: {name: s, type: String, init: {call: "Greeter.greet()", on: g}}
          - expr: {call: "User.log(String,int)", args: [s, 3]}
          - return: s
      - name: log
        params:
          - {name: msg, type: String}
          - {name: n, type: int}
        body:
          - return:
      - name: capture
        returns: Object
        params: [{name: instance, type: Greeter}]
        native: |
          var f = @Greeter::greet();
          return instance.@Greeter::greet()() + f;
`

func TestParse_Greeter(t *testing.T) {
	p, err := Parse([]byte(greeterProgram), "greeter.yaml")
	require.NoError(t, err)

	greeter := p.Type("Greeter")
	require.NotNil(t, greeter)
	assert.True(t, greeter.IsInterface())

	greet := greeter.MethodBySignature("greet()")
	require.NotNil(t, greet)
	assert.True(t, greet.IsDefault())
	assert.Equal(t, jast.Pos{File: "greeter.yaml", Line: 6}, greet.Pos)

	name := greeter.MethodBySignature("name()")
	require.NotNil(t, name)
	assert.True(t, name.Abstract)
	assert.False(t, name.IsDefault())

	a, b := p.Type("A"), p.Type("B")
	assert.Equal(t, []*jast.DeclaredType{greeter}, a.Interfaces)
	assert.Equal(t, []*jast.DeclaredType{greeter}, b.Interfaces)
	assert.Equal(t, []*jast.DeclaredType{a, b}, p.Implementors(greeter))

	user := p.Type("User")
	use := user.MethodBySignature("use(Greeter)")
	require.NotNil(t, use)
	assert.True(t, use.ParamTypesFrozen())
	assert.Equal(t,
		"String use(final Greeter g) {\n"+
			"  String s = g.greet();\n"+
			"  log(s, 3);\n"+
			"  return s;\n"+
			"}",
		jast.DumpMethod(use))

	capture := user.MethodBySignature("capture(Greeter)")
	require.NotNil(t, capture)
	assert.True(t, capture.Native)
	nb, ok := capture.Body.(*jast.NativeBody)
	require.True(t, ok)
	assert.Equal(t,
		"function(instance) { var f = @Greeter::greet(); return instance.@Greeter::greet()() + f; }",
		jsast.String(nb.Func))
	require.Len(t, nb.Refs, 1)
	assert.Equal(t, "@Greeter::greet()", nb.Refs[0].Ident)
	assert.Same(t, greet, nb.Refs[0].Target)
}

func TestParse_Hierarchy(t *testing.T) {
	p, err := Parse([]byte(`version: "1.2.0"
types:
  - {name: Named, kind: interface}
  - {name: Greeter, kind: interface, extends: [Named]}
  - {name: Base, abstract: true, implements: [Greeter]}
  - {name: Leaf, extends: Base}
`), "h.yaml")
	require.NoError(t, err)

	named, leaf := p.Type("Named"), p.Type("Leaf")
	assert.Same(t, p.Type("Base"), leaf.Super)
	assert.True(t, p.Type("Base").Abstract)
	assert.True(t, leaf.IsSubtypeOf(named))
	assert.Len(t, p.Implementors(named), 2)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			src:     "version: [",
			wantErr: "parse bad.yaml",
		},
		{
			name:    "duplicate type",
			src:     "version: \"1.0\"\ntypes:\n  - {name: A}\n  - {name: A}\n",
			wantErr: `bad.yaml:4: duplicate type "A"`,
		},
		{
			name:    "unknown kind",
			src:     "version: \"1.0\"\ntypes:\n  - {name: A, kind: enum}\n",
			wantErr: `bad.yaml:3: type A: unknown kind "enum"`,
		},
		{
			name:    "unknown interface",
			src:     "version: \"1.0\"\ntypes:\n  - {name: A, implements: [Missing]}\n",
			wantErr: "bad.yaml:3: type A: unknown interface Missing",
		},
		{
			name:    "extends interface",
			src:     "version: \"1.0\"\ntypes:\n  - {name: I, kind: interface}\n  - {name: A, extends: I}\n",
			wantErr: "bad.yaml:4: class A: cannot extend interface I",
		},
		{
			name: "unknown call target",
			src: `version: "1.0"
types:
  - name: A
    methods:
      - name: run
        body:
          - expr: {call: "A.missing()"}
`,
			wantErr: "bad.yaml:7: method run: type A has no method missing()",
		},
		{
			name: "unknown name",
			src: `version: "1.0"
types:
  - name: A
    methods:
      - name: run
        returns: int
        body:
          - return: x
`,
			wantErr: "bad.yaml:8: method run: unknown name x",
		},
		{
			name: "argument count",
			src: `version: "1.0"
types:
  - name: A
    methods:
      - name: run
        params: [{name: n, type: int}]
        body:
          - expr: {call: "A.run(int)"}
`,
			wantErr: "bad.yaml:8: method run: A.run(int) takes 1 argument(s), got 0",
		},
		{
			name: "fragment syntax",
			src: `version: "1.0"
types:
  - name: A
    methods:
      - name: run
        native: "return (;"
`,
			wantErr: "bad.yaml:5: method run:",
		},
		{
			name: "unknown fragment method",
			src: `version: "1.0"
types:
  - name: A
    methods:
      - name: run
        native: "return @A::gone()();"
`,
			wantErr: "bad.yaml:5: method run: unknown method @A::gone()",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_Version(t *testing.T) {
	tests := []struct {
		version string
		wantErr bool
	}{
		{`"1.0"`, false},
		{`"1.4.2"`, false},
		{`"2.0"`, true},
		{`"0.9"`, true},
		{`"banana"`, true},
		{`""`, true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			_, err := Parse([]byte("version: "+tt.version+"\n"), "v.yaml")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnsupportedVersion), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.yaml")
	require.NoError(t, os.WriteFile(path, []byte(greeterProgram), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, p.Types(), 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
