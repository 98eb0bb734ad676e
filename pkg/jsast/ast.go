// Package jsast models the foreign script fragments attached to native
// method bodies: a small expression/statement tree plus lexical scopes.
//
// Member references into the typed program are written as
// "@Type::member(descriptors)" and surface in the tree as NameRef nodes
// whose identifier starts with '@'.
package jsast

import "strings"

// Node is any fragment tree node.
type Node interface {
	aNode()
}

// Expr is a fragment expression.
type Expr interface {
	Node
	aExpr()
}

// Stmt is a fragment statement.
type Stmt interface {
	Node
	aStmt()
}

type (
	// Function is a function with its own scope. The body of a native
	// method is always a Function.
	Function struct {
		Name   string // empty for anonymous functions
		Params []*Name
		Body   *Block
		Scope  *Scope
	}

	// VarDecl is a single declarator of a var statement.
	VarDecl struct {
		Name *Name
		Init Expr // nil means no initializer
	}
)

type (
	// Block is a brace-delimited statement list.
	Block struct {
		Stmts []Stmt
	}

	// ExprStmt evaluates X for its side effects.
	ExprStmt struct {
		X Expr
	}

	// Return returns X; X is nil for a bare return.
	Return struct {
		X Expr
	}

	// Var declares one or more variables in the enclosing function scope.
	Var struct {
		Decls []*VarDecl
	}

	// If is a conditional statement; Else may be nil.
	If struct {
		Cond Expr
		Then Stmt
		Else Stmt
	}
)

type (
	// NameRef is an identifier, optionally qualified: Qualifier.Ident.
	// Name is the resolved declaration for unqualified script identifiers
	// and nil for properties and member references.
	NameRef struct {
		Ident     string
		Qualifier Expr
		Name      *Name
	}

	// Invocation calls Callee with Args.
	Invocation struct {
		Callee Expr
		Args   []Expr
	}

	// This is the script receiver.
	This struct{}

	// Literal is a number, string, boolean, null or undefined literal kept
	// in source form.
	Literal struct {
		Text string
	}

	// Binary is X Op Y, including assignment.
	Binary struct {
		Op string
		X  Expr
		Y  Expr
	}

	// Unary is Op X.
	Unary struct {
		Op string
		X  Expr
	}

	// FuncExpr is a function literal used as a value.
	FuncExpr struct {
		Func *Function
	}
)

func (*Function) aNode() {}
func (*VarDecl) aNode()  {}
func (*Block) aNode()    {}
func (*ExprStmt) aNode() {}
func (*Return) aNode()   {}
func (*Var) aNode()      {}
func (*If) aNode()       {}

func (*NameRef) aNode()    {}
func (*Invocation) aNode() {}
func (*This) aNode()       {}
func (*Literal) aNode()    {}
func (*Binary) aNode()     {}
func (*Unary) aNode()      {}
func (*FuncExpr) aNode()   {}

func (*Block) aStmt()    {}
func (*ExprStmt) aStmt() {}
func (*Return) aStmt()   {}
func (*Var) aStmt()      {}
func (*If) aStmt()       {}

func (*NameRef) aExpr()    {}
func (*Invocation) aExpr() {}
func (*This) aExpr()       {}
func (*Literal) aExpr()    {}
func (*Binary) aExpr()     {}
func (*Unary) aExpr()      {}
func (*FuncExpr) aExpr()   {}

// IsMemberRef reports whether the identifier names a program member
// ("@Type::member...") rather than a script variable or property.
func (x *NameRef) IsMemberRef() bool {
	return strings.HasPrefix(x.Ident, "@")
}

// NewRef returns a reference to the declared name n.
func NewRef(n *Name) *NameRef {
	return &NameRef{Ident: n.Ident, Name: n}
}
