package jast

import (
	"fmt"
	"io"
	"strings"

	"github.com/715d/defender/pkg/jsast"
)

// Dump writes a deterministic source-like rendering of p to w.
func Dump(w io.Writer, p *Program) error {
	_, err := io.WriteString(w, DumpString(p))
	return err
}

// DumpString renders p as text. Types appear in declaration order,
// separated by blank lines; methods appear in declaration order.
func DumpString(p *Program) string {
	var b strings.Builder
	for i, t := range p.types {
		if i > 0 {
			b.WriteByte('\n')
		}
		dumpType(&b, t)
	}
	return b.String()
}

// DumpMethod renders a single method without indentation.
func DumpMethod(m *Method) string {
	var b strings.Builder
	dumpMethod(&b, m, "")
	return strings.TrimSuffix(b.String(), "\n")
}

func dumpType(b *strings.Builder, t *DeclaredType) {
	if t.IsInterface() {
		b.WriteString("interface ")
		b.WriteString(t.Name)
		if len(t.Interfaces) > 0 {
			b.WriteString(" extends ")
			b.WriteString(typeNames(t.Interfaces))
		}
	} else {
		if t.Abstract {
			b.WriteString("abstract ")
		}
		b.WriteString("class ")
		b.WriteString(t.Name)
		if t.Super != nil {
			b.WriteString(" extends ")
			b.WriteString(t.Super.Name)
		}
		if len(t.Interfaces) > 0 {
			b.WriteString(" implements ")
			b.WriteString(typeNames(t.Interfaces))
		}
	}
	b.WriteString(" {\n")
	for _, m := range t.methods {
		dumpMethod(b, m, "  ")
	}
	b.WriteString("}\n")
}

func typeNames(ts []*DeclaredType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

func dumpMethod(b *strings.Builder, m *Method, indent string) {
	b.WriteString(indent)
	if m.Access != "" {
		b.WriteString(m.Access)
		b.WriteByte(' ')
	}
	if m.Static {
		b.WriteString("static ")
	}
	if m.Abstract {
		b.WriteString("abstract ")
	}
	if m.Native {
		b.WriteString("native ")
	}
	fmt.Fprintf(b, "%s %s(", m.Result, m.Name)
	for i, p := range m.params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Final {
			b.WriteString("final ")
		}
		fmt.Fprintf(b, "%s %s", p.Type, p.Name)
	}
	b.WriteByte(')')
	if len(m.Thrown) > 0 {
		b.WriteString(" throws ")
		for i, t := range m.Thrown {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(string(t))
		}
	}

	switch body := m.Body.(type) {
	case *MethodBody:
		if body.Block == nil || len(body.Block.Stmts) == 0 {
			b.WriteString(" {}\n")
			return
		}
		b.WriteString(" {\n")
		for _, s := range body.Block.Stmts {
			dumpStmt(b, s, indent+"  ")
		}
		b.WriteString(indent)
		b.WriteString("}\n")
	case *NativeBody:
		b.WriteString(" /*-")
		if body.Func != nil {
			b.WriteString(jsast.String(body.Func.Body))
		}
		b.WriteString("-*/;\n")
	default:
		b.WriteString(";\n")
	}
}

func dumpStmt(b *strings.Builder, s Stmt, indent string) {
	b.WriteString(indent)
	switch s := s.(type) {
	case *ReturnStmt:
		if s.Expr == nil {
			b.WriteString("return;\n")
			return
		}
		fmt.Fprintf(b, "return %s;\n", ExprString(s.Expr))
	case *ExprStmt:
		fmt.Fprintf(b, "%s;\n", ExprString(s.Expr))
	case *LocalDecl:
		fmt.Fprintf(b, "%s %s", s.Local.Type, s.Local.Name)
		if s.Init != nil {
			fmt.Fprintf(b, " = %s", ExprString(s.Init))
		}
		b.WriteString(";\n")
	case *Block:
		b.WriteString("{\n")
		for _, inner := range s.Stmts {
			dumpStmt(b, inner, indent+"  ")
		}
		b.WriteString(indent)
		b.WriteString("}\n")
	default:
		fmt.Fprintf(b, "/* %T */\n", s)
	}
}

// ExprString renders x as source text. Static calls use the target's
// mangled name.
func ExprString(x Expr) string {
	switch x := x.(type) {
	case *MethodCall:
		var b strings.Builder
		switch inst := x.Instance.(type) {
		case nil:
			b.WriteString(x.Target.MangledName())
		case *ImplicitInstance:
			b.WriteString(x.Target.Name)
		default:
			b.WriteString(ExprString(inst))
			b.WriteByte('.')
			b.WriteString(x.Target.Name)
		}
		b.WriteByte('(')
		for i, a := range x.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ExprString(a))
		}
		b.WriteByte(')')
		return b.String()
	case *ImplicitInstance, *ThisRef:
		return "this"
	case *ParamRef:
		return x.Param.Name
	case *LocalRef:
		return x.Local.Name
	case *NewInstance:
		return "new " + x.Class.Name + "()"
	case *Literal:
		return x.Value
	case nil:
		return "<nil>"
	}
	return fmt.Sprintf("<%T>", x)
}
