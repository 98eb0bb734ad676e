package rewrite

import "github.com/715d/defender/pkg/jast"

// rewriteCall returns a static call of the twin of call.Target. The
// receiver becomes the first argument: an implicit receiver is spelled out
// as "this" of the enclosing class, any other is moved verbatim.
func (r *Rewriter) rewriteCall(c *jast.Cursor, call *jast.MethodCall) *jast.MethodCall {
	twin := r.reg.GetOrCreate(call.Target)

	recv := call.Instance
	switch recv.(type) {
	case nil, *jast.ImplicitInstance:
		class := call.Target.Enclosing
		if m := c.Method(); m != nil {
			class = m.Enclosing
		}
		recv = jast.NewThisRef(call.Pos(), class)
	}

	args := make([]jast.Expr, 0, len(call.Args)+1)
	args = append(args, recv)
	args = append(args, call.Args...)
	return jast.NewMethodCall(call.Pos(), nil, twin, args...)
}
