package progfile

import (
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/defender/pkg/jast"
)

// bodyScope resolves names inside one typed body.
type bodyScope struct {
	b      *builder
	method *jast.Method
	params map[string]*jast.Param
	locals map[string]*jast.Local
}

func (b *builder) typedBody(m *jast.Method, n *yaml.Node) (*jast.MethodBody, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, b.errorf(n.Line, "method %s: body must be a list of statements", m.Name)
	}
	s := &bodyScope{
		b:      b,
		method: m,
		params: make(map[string]*jast.Param, len(m.Params())),
		locals: make(map[string]*jast.Local),
	}
	for _, p := range m.Params() {
		s.params[p.Name] = p
	}

	block := jast.NewBlock(b.pos(n.Line))
	for _, sn := range n.Content {
		stmt, err := s.stmt(sn)
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)
	}
	return jast.NewMethodBody(b.pos(n.Line), block), nil
}

func (s *bodyScope) errorf(n *yaml.Node, format string, args ...any) error {
	return s.b.errorf(n.Line, "method %s: "+format, append([]any{s.method.Name}, args...)...)
}

func (s *bodyScope) stmt(n *yaml.Node) (jast.Stmt, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return nil, s.errorf(n, "statement must be a single-key mapping")
	}
	key, val := n.Content[0].Value, n.Content[1]
	pos := s.b.pos(n.Line)

	switch key {
	case "return":
		if isNull(val) {
			if !s.method.Result.IsVoid() {
				return nil, s.errorf(n, "missing return value")
			}
			return jast.NewReturn(pos, nil), nil
		}
		x, err := s.expr(val)
		if err != nil {
			return nil, err
		}
		return jast.NewReturn(pos, x), nil
	case "expr":
		x, err := s.expr(val)
		if err != nil {
			return nil, err
		}
		return jast.NewExprStmt(pos, x), nil
	case "local":
		var d localDecl
		if err := val.Decode(&d); err != nil {
			return nil, s.errorf(val, "%v", err)
		}
		if d.Name == "" || d.Type == "" {
			return nil, s.errorf(val, "local needs a name and a type")
		}
		if s.params[d.Name] != nil || s.locals[d.Name] != nil {
			return nil, s.errorf(val, "%s is already declared", d.Name)
		}
		var init jast.Expr
		if d.Init.Kind != 0 {
			x, err := s.expr(&d.Init)
			if err != nil {
				return nil, err
			}
			init = x
		}
		l := &jast.Local{Name: d.Name, Type: jast.Type(d.Type)}
		s.locals[d.Name] = l
		return jast.NewLocalDecl(pos, l, init), nil
	}
	return nil, s.errorf(n, "unknown statement %q", key)
}

func (s *bodyScope) expr(n *yaml.Node) (jast.Expr, error) {
	pos := s.b.pos(n.Line)
	switch n.Kind {
	case yaml.ScalarNode:
		return s.scalar(n)
	case yaml.MappingNode:
	default:
		return nil, s.errorf(n, "expression must be a scalar or a mapping")
	}

	var d exprDecl
	if err := n.Decode(&d); err != nil {
		return nil, s.errorf(n, "%v", err)
	}
	switch {
	case d.Lit != nil && d.Call != "":
		return nil, s.errorf(n, "expression is both a literal and a call")
	case d.Lit != nil:
		typ := jast.Type(d.Type)
		if typ == "" {
			if !strings.HasPrefix(*d.Lit, `"`) {
				return nil, s.errorf(n, "literal %s needs a type", *d.Lit)
			}
			typ = "String"
		}
		return jast.NewLiteral(pos, *d.Lit, typ), nil
	case d.Call != "":
		return s.call(n, &d)
	}
	return nil, s.errorf(n, "expression mapping needs a lit or call key")
}

func (s *bodyScope) scalar(n *yaml.Node) (jast.Expr, error) {
	pos := s.b.pos(n.Line)
	switch n.Tag {
	case "!!int":
		return jast.NewLiteral(pos, n.Value, jast.Int), nil
	case "!!float":
		return jast.NewLiteral(pos, n.Value, jast.Double), nil
	case "!!bool":
		return jast.NewLiteral(pos, n.Value, jast.Boolean), nil
	case "!!null":
		return nil, s.errorf(n, "missing expression")
	}

	v := strings.TrimSpace(n.Value)
	switch {
	case v == "this":
		if s.method.Static {
			return nil, s.errorf(n, "this in static method")
		}
		return jast.NewThisRef(pos, s.method.Enclosing), nil
	case strings.HasPrefix(v, "new "):
		name := strings.TrimSpace(strings.TrimPrefix(v, "new "))
		t := s.b.prog.Type(name)
		if t == nil {
			return nil, s.errorf(n, "unknown type %s", name)
		}
		if t.IsInterface() || t.Abstract {
			return nil, s.errorf(n, "cannot instantiate %s", name)
		}
		return jast.NewNewInstance(pos, t), nil
	}
	if l, ok := s.locals[v]; ok {
		return jast.NewLocalRef(pos, l), nil
	}
	if p, ok := s.params[v]; ok {
		return jast.NewParamRef(pos, p), nil
	}
	return nil, s.errorf(n, "unknown name %s", v)
}

func (s *bodyScope) call(n *yaml.Node, d *exprDecl) (jast.Expr, error) {
	target, err := s.lookup(n, d.Call)
	if err != nil {
		return nil, err
	}

	var instance jast.Expr
	switch {
	case d.On.Kind != 0 && target.Static:
		return nil, s.errorf(n, "static method %s called on a receiver", target)
	case d.On.Kind != 0:
		x, err := s.expr(&d.On)
		if err != nil {
			return nil, err
		}
		instance = x
	case !target.Static:
		if s.method.Static {
			return nil, s.errorf(n, "instance method %s called without a receiver from a static method", target)
		}
		instance = jast.NewImplicitInstance(s.b.pos(n.Line))
	}

	if len(d.Args) != len(target.Params()) {
		return nil, s.errorf(n, "%s takes %d argument(s), got %d", target, len(target.Params()), len(d.Args))
	}
	args := make([]jast.Expr, len(d.Args))
	for i := range d.Args {
		x, err := s.expr(&d.Args[i])
		if err != nil {
			return nil, err
		}
		args[i] = x
	}
	return jast.NewMethodCall(s.b.pos(n.Line), instance, target, args...), nil
}

// lookup resolves "Type.name(T1,T2)".
func (s *bodyScope) lookup(n *yaml.Node, ref string) (*jast.Method, error) {
	ref = strings.ReplaceAll(ref, " ", "")
	open := strings.IndexByte(ref, '(')
	if open < 0 || !strings.HasSuffix(ref, ")") {
		return nil, s.errorf(n, "call target %q is not of the form Type.name(params)", ref)
	}
	dot := strings.LastIndexByte(ref[:open], '.')
	if dot <= 0 {
		return nil, s.errorf(n, "call target %q has no type", ref)
	}
	typeName, sig := ref[:dot], ref[dot+1:]
	t := s.b.prog.Type(typeName)
	if t == nil {
		return nil, s.errorf(n, "unknown type %s", typeName)
	}
	m := t.MethodBySignature(sig)
	if m == nil {
		return nil, s.errorf(n, "type %s has no method %s", typeName, sig)
	}
	return m, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
