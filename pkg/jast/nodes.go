package jast

import "github.com/715d/defender/pkg/jsast"

// Node is any node of a method body tree.
type Node interface {
	Pos() Pos
	aNode()
}

// Stmt is a statement.
type Stmt interface {
	Node
	aStmt()
}

// Expr is a typed expression.
type Expr interface {
	Node
	Type() Type
	aExpr()
}

// Body is a method body.
type Body interface {
	Node
	aBody()
}

type node struct {
	pos Pos
}

func (n *node) Pos() Pos { return n.pos }
func (*node) aNode()     {}

// ----------------------------------------------------------------------------
// Bodies

type (
	// MethodBody is a typed statement block.
	MethodBody struct {
		Block *Block
		node
	}

	// NativeBody is a script fragment. Refs lists the typed linkage of the
	// member references appearing in the fragment, one entry per distinct
	// identifier.
	NativeBody struct {
		Func *jsast.Function
		Refs []*NativeMethodRef
		node
	}

	// NativeMethodRef links a fragment member identifier to its method.
	NativeMethodRef struct {
		Ident  string // "@Type::name(descriptors)"
		Target *Method
		node
	}
)

func NewMethodBody(pos Pos, block *Block) *MethodBody {
	return &MethodBody{Block: block, node: node{pos}}
}

func NewNativeBody(pos Pos, fn *jsast.Function) *NativeBody {
	return &NativeBody{Func: fn, node: node{pos}}
}

func NewNativeMethodRef(pos Pos, ident string, target *Method) *NativeMethodRef {
	return &NativeMethodRef{Ident: ident, Target: target, node: node{pos}}
}

// Ref returns the linkage entry for ident, or nil.
func (b *NativeBody) Ref(ident string) *NativeMethodRef {
	for _, r := range b.Refs {
		if r.Ident == ident {
			return r
		}
	}
	return nil
}

// AddRef appends r unless an entry with the same identifier exists.
func (b *NativeBody) AddRef(r *NativeMethodRef) {
	if b.Ref(r.Ident) == nil {
		b.Refs = append(b.Refs, r)
	}
}

func (*MethodBody) aBody() {}
func (*NativeBody) aBody() {}

// ----------------------------------------------------------------------------
// Statements

type (
	// Block is a statement list.
	Block struct {
		Stmts []Stmt
		node
	}

	// ReturnStmt returns Expr; Expr is nil for a bare return.
	ReturnStmt struct {
		Expr Expr
		node
	}

	// ExprStmt evaluates Expr for its effects.
	ExprStmt struct {
		Expr Expr
		node
	}

	// LocalDecl declares a local variable with an optional initializer.
	LocalDecl struct {
		Local *Local
		Init  Expr
		node
	}
)

// Local is a local variable.
type Local struct {
	Name string
	Type Type
}

func NewBlock(pos Pos, stmts ...Stmt) *Block {
	return &Block{Stmts: stmts, node: node{pos}}
}

func NewReturn(pos Pos, x Expr) *ReturnStmt {
	return &ReturnStmt{Expr: x, node: node{pos}}
}

func NewExprStmt(pos Pos, x Expr) *ExprStmt {
	return &ExprStmt{Expr: x, node: node{pos}}
}

func NewLocalDecl(pos Pos, l *Local, init Expr) *LocalDecl {
	return &LocalDecl{Local: l, Init: init, node: node{pos}}
}

func (*Block) aStmt()      {}
func (*ReturnStmt) aStmt() {}
func (*ExprStmt) aStmt()   {}
func (*LocalDecl) aStmt()  {}

// ----------------------------------------------------------------------------
// Expressions

type (
	// MethodCall invokes Target. Instance is nil for static dispatch and
	// an *ImplicitInstance for an unqualified instance call.
	MethodCall struct {
		Instance Expr
		Target   *Method
		Args     []Expr
		node
	}

	// ImplicitInstance stands for the receiver of an unqualified instance
	// call made within the receiver's own type.
	ImplicitInstance struct {
		node
	}

	// ThisRef is an explicit reference to the receiver.
	ThisRef struct {
		Class *DeclaredType
		node
	}

	// ParamRef reads a parameter.
	ParamRef struct {
		Param *Param
		node
	}

	// LocalRef reads a local variable.
	LocalRef struct {
		Local *Local
		node
	}

	// NewInstance allocates Class with its default constructor.
	NewInstance struct {
		Class *DeclaredType
		node
	}

	// Literal is a constant kept in source form.
	Literal struct {
		Value   string
		LitType Type
		node
	}
)

func NewMethodCall(pos Pos, instance Expr, target *Method, args ...Expr) *MethodCall {
	return &MethodCall{Instance: instance, Target: target, Args: args, node: node{pos}}
}

func NewImplicitInstance(pos Pos) *ImplicitInstance {
	return &ImplicitInstance{node: node{pos}}
}

func NewThisRef(pos Pos, class *DeclaredType) *ThisRef {
	return &ThisRef{Class: class, node: node{pos}}
}

func NewParamRef(pos Pos, p *Param) *ParamRef {
	return &ParamRef{Param: p, node: node{pos}}
}

func NewLocalRef(pos Pos, l *Local) *LocalRef {
	return &LocalRef{Local: l, node: node{pos}}
}

func NewNewInstance(pos Pos, class *DeclaredType) *NewInstance {
	return &NewInstance{Class: class, node: node{pos}}
}

func NewLiteral(pos Pos, value string, typ Type) *Literal {
	return &Literal{Value: value, LitType: typ, node: node{pos}}
}

func (x *MethodCall) Type() Type     { return x.Target.Result }
func (*ImplicitInstance) Type() Type { return "" }
func (x *ThisRef) Type() Type        { return x.Class.Type() }
func (x *ParamRef) Type() Type       { return x.Param.Type }
func (x *LocalRef) Type() Type       { return x.Local.Type }
func (x *NewInstance) Type() Type    { return x.Class.Type() }
func (x *Literal) Type() Type        { return x.LitType }

func (*MethodCall) aExpr()       {}
func (*ImplicitInstance) aExpr() {}
func (*ThisRef) aExpr()          {}
func (*ParamRef) aExpr()         {}
func (*LocalRef) aExpr()         {}
func (*NewInstance) aExpr()      {}
func (*Literal) aExpr()          {}

// IsStatic reports whether the call uses static dispatch.
func (x *MethodCall) IsStatic() bool { return x.Instance == nil }
