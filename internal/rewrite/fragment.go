package rewrite

import (
	"log/slog"

	"github.com/715d/defender/pkg/jast"
	"github.com/715d/defender/pkg/jsast"
)

// mode tells whether a member reference may be renamed on its own.
type mode int

const (
	// normal references are renamed in place.
	normal mode = iota
	// suppressed references are invocation callees; the enclosing
	// invocation renames them and splices in the receiver.
	suppressed
)

// modeOf derives the mode of the node under c from its position: only the
// callee slot of an invocation is suppressed. A callee's qualifier and the
// invocation's arguments are back in normal mode.
func modeOf(c *jsast.Cursor) mode {
	if _, ok := c.Parent().(*jsast.Invocation); ok && c.Name() == "Callee" {
		return suppressed
	}
	return normal
}

// rewriteFragment retargets the linkage entries of body that name default
// methods, then rewrites the fragment with the resulting rename table.
func (r *Rewriter) rewriteFragment(body *jast.NativeBody) {
	renames := make(map[string]string)
	for _, ref := range body.Refs {
		if ref.Target == nil || !ref.Target.IsDefault() {
			continue
		}
		twin := r.reg.GetOrCreate(ref.Target)
		ident := r.names.MemberIdent(twin)
		renames[ref.Ident] = ident
		ref.Ident = ident
		ref.Target = twin
	}
	if len(renames) == 0 {
		return
	}
	dedupRefs(body)

	if body.Func == nil {
		return
	}
	fr := &fragmentRewriter{fn: body.Func, renames: renames}
	jsast.Apply(body.Func, nil, fr.post)

	r.stats.Fragments++
	r.stats.FragmentRefs += fr.refs
	r.stats.FragmentInvocations += fr.invocations
	slog.Debug("rewrote fragment",
		slog.Int("renames", len(renames)),
		slog.Int("refs", fr.refs),
		slog.Int("invocations", fr.invocations))
}

// dedupRefs drops linkage entries whose identifier repeats an earlier one,
// which happens when a fragment named both a default and its twin.
func dedupRefs(body *jast.NativeBody) {
	seen := make(map[string]bool, len(body.Refs))
	refs := body.Refs[:0]
	for _, ref := range body.Refs {
		if seen[ref.Ident] {
			continue
		}
		seen[ref.Ident] = true
		refs = append(refs, ref)
	}
	body.Refs = refs
}

// fragmentRewriter holds the state of one fragment traversal.
type fragmentRewriter struct {
	fn      *jsast.Function
	renames map[string]string

	refs        int
	invocations int
}

func (fr *fragmentRewriter) post(c *jsast.Cursor) bool {
	switch n := c.Node().(type) {
	case *jsast.NameRef:
		if modeOf(c) == suppressed {
			break
		}
		if ident, ok := fr.renames[n.Ident]; ok {
			c.Replace(&jsast.NameRef{Ident: ident})
			fr.refs++
		}
	case *jsast.Invocation:
		callee, ok := n.Callee.(*jsast.NameRef)
		if !ok {
			break
		}
		ident, ok := fr.renames[callee.Ident]
		if !ok {
			break
		}
		scope := fr.findScope(callee)
		args := make([]jsast.Expr, 0, len(n.Args)+1)
		args = append(args, callee.Qualifier)
		args = append(args, n.Args...)
		c.Replace(&jsast.Invocation{
			Callee: jsast.NewRef(scope.Declare(ident)),
			Args:   args,
		})
		fr.invocations++
	}
	return true
}

// findScope returns the scope of the first declared name met while walking
// the qualifier chain of ref. A "this" qualifier resolves to the fragment's
// own scope. Anything else is an invariant violation.
func (fr *fragmentRewriter) findScope(ref *jsast.NameRef) *jsast.Scope {
	q := ref.Qualifier
	for {
		switch x := q.(type) {
		case *jsast.NameRef:
			if x.Name != nil {
				return x.Name.Enclosing()
			}
			q = x.Qualifier
		case *jsast.This:
			return fr.fn.Scope
		case nil:
			jast.Faultf("invocation of %s has no qualifier resolving to a declared name", ref.Ident)
		default:
			jast.Faultf("cannot resolve a scope for %s through a %T qualifier", ref.Ident, x)
		}
	}
}
