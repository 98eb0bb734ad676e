package jast

import (
	"fmt"
	"slices"
)

// Cursor describes the node being visited by Rewrite.
type Cursor struct {
	node   Node
	method *Method
}

// Node returns the current node.
func (c *Cursor) Node() Node { return c.node }

// Method returns the method whose body is being walked, nil when walking a
// detached tree.
func (c *Cursor) Method() *Method { return c.method }

// Replace swaps the current node for n in its parent slot. Expressions may
// only be replaced by expressions and statements by statements.
func (c *Cursor) Replace(n Node) {
	switch c.node.(type) {
	case Expr:
		if _, ok := n.(Expr); !ok {
			Faultf("cannot replace expression %T with %T", c.node, n)
		}
	case Stmt:
		if _, ok := n.(Stmt); !ok {
			Faultf("cannot replace statement %T with %T", c.node, n)
		}
	case Body:
		if _, ok := n.(Body); !ok {
			Faultf("cannot replace body %T with %T", c.node, n)
		}
	default:
		Faultf("cannot replace %T", c.node)
	}
	c.node = n
}

// Rewrite walks root bottom-up, calling post once per node after its
// children, and returns the possibly replaced root.
func Rewrite(root Node, post func(*Cursor)) Node {
	w := &walker{post: post}
	return w.visit(root)
}

// RewriteProgram walks every method body of p in declaration order, once
// per method. Methods added by post are walked too, in a later round when
// they land on an already walked type.
func RewriteProgram(p *Program, post func(*Cursor)) {
	w := &walker{post: post}
	walked := make(map[*Method]bool)
	for more := true; more; {
		more = false
		for _, t := range slices.Clone(p.types) {
			for i := 0; i < len(t.methods); i++ {
				m := t.methods[i]
				if walked[m] {
					continue
				}
				walked[m], more = true, true
				if m.Body == nil {
					continue
				}
				w.method = m
				// The body may move to another method while it is walked, so
				// only write back an actual replacement.
				body := m.Body
				if nb := w.visit(body).(Body); nb != body {
					m.Body = nb
				}
			}
		}
	}
}

// Inspect calls f for every node of root in pre-order; returning false
// prunes the subtree.
func Inspect(root Node, f func(Node) bool) {
	if root == nil || !f(root) {
		return
	}
	switch n := root.(type) {
	case *MethodBody:
		if n.Block != nil {
			Inspect(n.Block, f)
		}
	case *NativeBody:
		for _, r := range n.Refs {
			Inspect(r, f)
		}
	case *Block:
		for _, s := range n.Stmts {
			Inspect(s, f)
		}
	case *ReturnStmt:
		inspectExpr(n.Expr, f)
	case *ExprStmt:
		inspectExpr(n.Expr, f)
	case *LocalDecl:
		inspectExpr(n.Init, f)
	case *MethodCall:
		inspectExpr(n.Instance, f)
		for _, a := range n.Args {
			inspectExpr(a, f)
		}
	}
}

func inspectExpr(x Expr, f func(Node) bool) {
	if x != nil {
		Inspect(x, f)
	}
}

type walker struct {
	post   func(*Cursor)
	method *Method
}

func (w *walker) visit(n Node) Node {
	switch n := n.(type) {
	case *MethodBody:
		if n.Block != nil {
			n.Block = w.visit(n.Block).(*Block)
		}
	case *NativeBody:
	case *Block:
		for i, s := range n.Stmts {
			n.Stmts[i] = w.visit(s).(Stmt)
		}
	case *ReturnStmt:
		n.Expr = w.expr(n.Expr)
	case *ExprStmt:
		n.Expr = w.expr(n.Expr)
	case *LocalDecl:
		n.Init = w.expr(n.Init)
	case *MethodCall:
		n.Instance = w.expr(n.Instance)
		for i, a := range n.Args {
			n.Args[i] = w.expr(a)
		}
	case *ImplicitInstance, *ThisRef, *ParamRef, *LocalRef, *NewInstance, *Literal, *NativeMethodRef:
	default:
		panic(fmt.Sprintf("jast: unexpected node %T", n))
	}

	c := Cursor{node: n, method: w.method}
	w.post(&c)
	return c.node
}

func (w *walker) expr(x Expr) Expr {
	if x == nil {
		return nil
	}
	return w.visit(x).(Expr)
}
