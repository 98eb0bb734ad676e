package jsast

import "fmt"

// binaryPrec is the binding power of binary operators; assignment is
// handled separately and binds loosest.
var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3, "===": 3, "!==": 3,
	"<": 4, ">": 4, "<=": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

type parser struct {
	toks    []token
	pos     int
	root    *Scope
	scope   *Scope
	pending []pendingRef
}

type pendingRef struct {
	ref   *NameRef
	scope *Scope
}

// ParseFunction parses src as the body of a function taking params. Free
// identifiers resolve into the root of parent, which may be nil.
func ParseFunction(src string, params []string, parent *Scope) (*Function, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		parent = NewRootScope()
	}
	p := &parser{toks: toks, root: parent.Root(), scope: parent}

	fn := p.openFunction("", params)
	body, err := p.stmtsUntil(tEOF, "")
	if err != nil {
		return nil, err
	}
	fn.Body = body
	p.closeFunction(fn)
	p.resolve()
	return fn, nil
}

func (p *parser) openFunction(name string, params []string) *Function {
	fn := &Function{Name: name, Scope: NewScope(p.scope, "function "+name)}
	for _, param := range params {
		fn.Params = append(fn.Params, fn.Scope.Declare(param))
	}
	p.scope = fn.Scope
	return fn
}

func (p *parser) closeFunction(fn *Function) {
	p.scope = fn.Scope.Parent()
}

// resolve binds unqualified script identifiers once every declaration is
// known, so that hoisted vars are found.
func (p *parser) resolve() {
	for _, pr := range p.pending {
		if n := pr.scope.Lookup(pr.ref.Ident); n != nil {
			pr.ref.Name = n
			continue
		}
		pr.ref.Name = p.root.Declare(pr.ref.Ident)
	}
	p.pending = nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

func (p *parser) is(text string) bool {
	t := p.peek()
	return (t.kind == tPunct || t.kind == tIdent) && t.text == text
}

func (p *parser) accept(text string) bool {
	if p.is(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		return p.errorf("expected %q, found %q", text, p.peek().text)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.peek().off, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) stmtsUntil(end tokKind, closer string) (*Block, error) {
	b := &Block{}
	for {
		t := p.peek()
		if t.kind == end && (closer == "" || t.text == closer) {
			return b, nil
		}
		if t.kind == tEOF {
			return nil, p.errorf("unexpected end of fragment")
		}
		s, err := p.stmt()
		if err != nil {
			return nil, err
		}
		if s != nil {
			b.Stmts = append(b.Stmts, s)
		}
	}
}

func (p *parser) block() (*Block, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	b, err := p.stmtsUntil(tPunct, "}")
	if err != nil {
		return nil, err
	}
	p.next()
	return b, nil
}

// semi consumes an optional statement terminator.
func (p *parser) semi() {
	p.accept(";")
}

func (p *parser) stmt() (Stmt, error) {
	switch {
	case p.accept(";"):
		return nil, nil
	case p.is("{"):
		b, err := p.block()
		if err != nil {
			return nil, err
		}
		return b, nil
	case p.accept("var"):
		return p.varStmt()
	case p.accept("return"):
		if p.is(";") || p.is("}") || p.peek().kind == tEOF {
			p.semi()
			return &Return{}, nil
		}
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		p.semi()
		return &Return{X: x}, nil
	case p.accept("if"):
		return p.ifStmt()
	}
	x, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.semi()
	return &ExprStmt{X: x}, nil
}

func (p *parser) varStmt() (Stmt, error) {
	v := &Var{}
	for {
		t := p.next()
		if t.kind != tIdent {
			return nil, &SyntaxError{Offset: t.off, Msg: fmt.Sprintf("expected variable name, found %q", t.text)}
		}
		d := &VarDecl{Name: p.scope.Declare(t.text)}
		if p.accept("=") {
			init, err := p.assign()
			if err != nil {
				return nil, err
			}
			d.Init = init
		}
		v.Decls = append(v.Decls, d)
		if !p.accept(",") {
			break
		}
	}
	p.semi()
	return v, nil
}

func (p *parser) ifStmt() (Stmt, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	then, err := p.stmt()
	if err != nil {
		return nil, err
	}
	s := &If{Cond: cond, Then: then}
	if p.accept("else") {
		if s.Else, err = p.stmt(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *parser) expr() (Expr, error) {
	return p.assign()
}

func (p *parser) assign() (Expr, error) {
	x, err := p.binary(1)
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tPunct && p.accept("=") {
		y, err := p.assign()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "=", X: x, Y: y}, nil
	}
	return x, nil
}

func (p *parser) binary(minPrec int) (Expr, error) {
	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		prec, ok := binaryPrec[t.text]
		if t.kind != tPunct || !ok || prec < minPrec {
			return x, nil
		}
		p.next()
		y, err := p.binary(prec + 1)
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: t.text, X: x, Y: y}
	}
}

func (p *parser) unary() (Expr, error) {
	t := p.peek()
	if t.kind == tPunct && (t.text == "!" || t.text == "-" || t.text == "+") || t.kind == tIdent && t.text == "typeof" {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: t.text, X: x}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (Expr, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.peek().kind == tPunct && p.accept("."):
			t := p.next()
			if t.kind != tIdent && t.kind != tMember {
				return nil, &SyntaxError{Offset: t.off, Msg: fmt.Sprintf("expected property name, found %q", t.text)}
			}
			x = &NameRef{Ident: t.text, Qualifier: x}
		case p.peek().kind == tPunct && p.accept("("):
			args, err := p.args()
			if err != nil {
				return nil, err
			}
			x = &Invocation{Callee: x, Args: args}
		default:
			return x, nil
		}
	}
}

func (p *parser) args() ([]Expr, error) {
	var args []Expr
	if p.accept(")") {
		return args, nil
	}
	for {
		a, err := p.assign()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.accept(")") {
			return args, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) primary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tNumber, tString:
		return &Literal{Text: t.text}, nil
	case tMember:
		return &NameRef{Ident: t.text}, nil
	case tIdent:
		switch t.text {
		case "this":
			return &This{}, nil
		case "true", "false", "null", "undefined":
			return &Literal{Text: t.text}, nil
		case "function":
			return p.funcExpr()
		}
		ref := &NameRef{Ident: t.text}
		p.pending = append(p.pending, pendingRef{ref: ref, scope: p.scope})
		return ref, nil
	case tPunct:
		if t.text == "(" {
			x, err := p.expr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		}
	}
	if t.kind == tEOF {
		return nil, &SyntaxError{Offset: t.off, Msg: "unexpected end of fragment"}
	}
	return nil, &SyntaxError{Offset: t.off, Msg: fmt.Sprintf("unexpected %q", t.text)}
}

func (p *parser) funcExpr() (Expr, error) {
	var name string
	if t := p.peek(); t.kind == tIdent {
		name = t.text
		p.next()
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var params []string
	for !p.accept(")") {
		t := p.next()
		if t.kind != tIdent {
			return nil, &SyntaxError{Offset: t.off, Msg: fmt.Sprintf("expected parameter name, found %q", t.text)}
		}
		params = append(params, t.text)
		if !p.is(")") {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
	}
	fn := p.openFunction(name, params)
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	p.closeFunction(fn)
	return &FuncExpr{Func: fn}, nil
}
