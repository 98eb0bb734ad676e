package jsast

import (
	"fmt"
	"strings"
)

const (
	precAssign  = 0
	precUnary   = 7
	precPostfix = 8
)

// String renders n as compact single-line script text.
func String(n Node) string {
	var b strings.Builder
	p := printer{b: &b}
	p.node(n)
	return b.String()
}

type printer struct {
	b *strings.Builder
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.b, format, args...)
}

func (p *printer) node(n Node) {
	switch n := n.(type) {
	case *Function:
		p.function(n)
	case *VarDecl:
		p.varDecl(n)
	case Stmt:
		p.stmt(n)
	case Expr:
		p.expr(n, precAssign)
	default:
		panic(fmt.Sprintf("jsast: cannot print %T", n))
	}
}

func (p *printer) function(fn *Function) {
	p.b.WriteString("function")
	if fn.Name != "" {
		p.printf(" %s", fn.Name)
	}
	p.b.WriteByte('(')
	for i, param := range fn.Params {
		if i > 0 {
			p.b.WriteString(", ")
		}
		p.b.WriteString(param.Ident)
	}
	p.b.WriteString(") ")
	p.block(fn.Body)
}

func (p *printer) block(b *Block) {
	if b == nil || len(b.Stmts) == 0 {
		p.b.WriteString("{}")
		return
	}
	p.b.WriteString("{ ")
	for i, s := range b.Stmts {
		if i > 0 {
			p.b.WriteByte(' ')
		}
		p.stmt(s)
	}
	p.b.WriteString(" }")
}

func (p *printer) varDecl(d *VarDecl) {
	p.b.WriteString(d.Name.Ident)
	if d.Init != nil {
		p.b.WriteString(" = ")
		p.expr(d.Init, precAssign+1)
	}
}

func (p *printer) stmt(s Stmt) {
	switch s := s.(type) {
	case nil:
		p.b.WriteByte(';')
	case *Block:
		p.block(s)
	case *ExprStmt:
		p.expr(s.X, precAssign)
		p.b.WriteByte(';')
	case *Return:
		if s.X == nil {
			p.b.WriteString("return;")
			return
		}
		p.b.WriteString("return ")
		p.expr(s.X, precAssign)
		p.b.WriteByte(';')
	case *Var:
		p.b.WriteString("var ")
		for i, d := range s.Decls {
			if i > 0 {
				p.b.WriteString(", ")
			}
			p.varDecl(d)
		}
		p.b.WriteByte(';')
	case *If:
		p.b.WriteString("if (")
		p.expr(s.Cond, precAssign)
		p.b.WriteString(") ")
		p.stmt(s.Then)
		if s.Else != nil {
			p.b.WriteString(" else ")
			p.stmt(s.Else)
		}
	default:
		panic(fmt.Sprintf("jsast: cannot print statement %T", s))
	}
}

// prec returns the binding power of x as an operand.
func prec(x Expr) int {
	switch x := x.(type) {
	case *Binary:
		if x.Op == "=" {
			return precAssign
		}
		return binaryPrec[x.Op]
	case *Unary:
		return precUnary
	case *FuncExpr:
		// Function literals need parentheses in callee position.
		return precUnary
	}
	return precPostfix
}

// expr prints x, parenthesizing it when it binds looser than min.
func (p *printer) expr(x Expr, min int) {
	if prec(x) < min {
		p.b.WriteByte('(')
		defer p.b.WriteByte(')')
	}
	switch x := x.(type) {
	case *NameRef:
		if x.Qualifier != nil {
			p.expr(x.Qualifier, precPostfix)
			p.b.WriteByte('.')
		}
		p.b.WriteString(x.Ident)
	case *Invocation:
		p.expr(x.Callee, precPostfix)
		p.b.WriteByte('(')
		for i, a := range x.Args {
			if i > 0 {
				p.b.WriteString(", ")
			}
			p.expr(a, precAssign+1)
		}
		p.b.WriteByte(')')
	case *This:
		p.b.WriteString("this")
	case *Literal:
		p.b.WriteString(x.Text)
	case *Binary:
		if x.Op == "=" {
			p.expr(x.X, precAssign+1)
			p.b.WriteString(" = ")
			p.expr(x.Y, precAssign)
			return
		}
		bp := binaryPrec[x.Op]
		p.expr(x.X, bp)
		p.printf(" %s ", x.Op)
		p.expr(x.Y, bp+1)
	case *Unary:
		p.b.WriteString(x.Op)
		if x.Op == "typeof" {
			p.b.WriteByte(' ')
		}
		p.expr(x.X, precUnary)
	case *FuncExpr:
		p.function(x.Func)
	default:
		panic(fmt.Sprintf("jsast: cannot print expression %T", x))
	}
}
