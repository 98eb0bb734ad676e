package jsast

import "fmt"

// ApplyFunc is called for each node during Apply. A pre function returning
// false skips the node's children and its post call.
type ApplyFunc func(*Cursor) bool

// Cursor describes a node encountered during Apply.
type Cursor struct {
	parent Node
	name   string
	index  int
	node   Node
}

// Node returns the current node.
func (c *Cursor) Node() Node { return c.node }

// Parent returns the parent of the current node, nil at the root.
func (c *Cursor) Parent() Node { return c.parent }

// Name returns the name of the parent field holding the current node
// (e.g. "Callee", "Args").
func (c *Cursor) Name() string { return c.name }

// Index returns the index of the current node in its parent's list field,
// or -1 when the field is not a list.
func (c *Cursor) Index() int { return c.index }

// Replace replaces the current node with n in its parent slot. Expressions
// may only be replaced by expressions and statements by statements.
func (c *Cursor) Replace(n Node) {
	switch c.node.(type) {
	case Expr:
		if _, ok := n.(Expr); !ok {
			panic(fmt.Sprintf("jsast: cannot replace expression %T with %T", c.node, n))
		}
	case Stmt:
		if _, ok := n.(Stmt); !ok {
			panic(fmt.Sprintf("jsast: cannot replace statement %T with %T", c.node, n))
		}
	default:
		panic(fmt.Sprintf("jsast: cannot replace %T", c.node))
	}
	c.node = n
}

// Apply traverses root depth-first, calling pre before and post after a
// node's children. Either function may be nil. Apply returns the possibly
// replaced root.
func Apply(root Node, pre, post ApplyFunc) Node {
	a := &application{pre: pre, post: post}
	return a.apply(nil, "", -1, root)
}

// Inspect calls f for each node in pre-order; f returning false prunes the
// subtree.
func Inspect(root Node, f func(Node) bool) {
	Apply(root, func(c *Cursor) bool { return f(c.Node()) }, nil)
}

type application struct {
	pre, post ApplyFunc
	cursor    Cursor
}

func (a *application) apply(parent Node, name string, index int, n Node) Node {
	saved := a.cursor
	defer func() { a.cursor = saved }()

	a.cursor = Cursor{parent: parent, name: name, index: index, node: n}
	if a.pre != nil && !a.pre(&a.cursor) {
		return a.cursor.node
	}

	switch n := a.cursor.node.(type) {
	case *Function:
		if n.Body != nil {
			n.Body = a.apply(n, "Body", -1, n.Body).(*Block)
		}
	case *Block:
		for i, s := range n.Stmts {
			n.Stmts[i] = a.stmt(n, "Stmts", i, s)
		}
	case *ExprStmt:
		n.X = a.expr(n, "X", -1, n.X)
	case *Return:
		n.X = a.expr(n, "X", -1, n.X)
	case *Var:
		for i, d := range n.Decls {
			a.apply(n, "Decls", i, d)
		}
	case *VarDecl:
		n.Init = a.expr(n, "Init", -1, n.Init)
	case *If:
		n.Cond = a.expr(n, "Cond", -1, n.Cond)
		n.Then = a.stmt(n, "Then", -1, n.Then)
		n.Else = a.stmt(n, "Else", -1, n.Else)
	case *NameRef:
		n.Qualifier = a.expr(n, "Qualifier", -1, n.Qualifier)
	case *Invocation:
		n.Callee = a.expr(n, "Callee", -1, n.Callee)
		for i, arg := range n.Args {
			n.Args[i] = a.expr(n, "Args", i, arg)
		}
	case *Binary:
		n.X = a.expr(n, "X", -1, n.X)
		n.Y = a.expr(n, "Y", -1, n.Y)
	case *Unary:
		n.X = a.expr(n, "X", -1, n.X)
	case *FuncExpr:
		if n.Func != nil {
			a.apply(n, "Func", -1, n.Func)
		}
	case *This, *Literal:
	default:
		panic(fmt.Sprintf("jsast: unexpected node %T", n))
	}

	if a.post != nil {
		a.post(&a.cursor)
	}
	return a.cursor.node
}

func (a *application) expr(parent Node, name string, index int, x Expr) Expr {
	if x == nil {
		return nil
	}
	return a.apply(parent, name, index, x).(Expr)
}

func (a *application) stmt(parent Node, name string, index int, s Stmt) Stmt {
	if s == nil {
		return nil
	}
	return a.apply(parent, name, index, s).(Stmt)
}
