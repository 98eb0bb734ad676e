// Package rewrite retargets every use of a default interface method to its
// static twin: typed calls in method bodies and member references inside
// script fragments.
package rewrite

import (
	"github.com/715d/defender/internal/names"
	"github.com/715d/defender/internal/staticimpl"
	"github.com/715d/defender/pkg/jast"
)

// Stats counts what a Rewriter changed.
type Stats struct {
	// CallsRewritten is the number of typed calls retargeted.
	CallsRewritten int
	// FragmentRefs is the number of bare member references renamed.
	FragmentRefs int
	// FragmentInvocations is the number of member invocations rewritten.
	FragmentInvocations int
	// Fragments is the number of fragments that had a non-empty rename
	// table and were traversed.
	Fragments int
}

// Rewriter is a post-order visitor for jast.RewriteProgram.
type Rewriter struct {
	reg   *staticimpl.Registry
	names *names.Cache
	stats Stats
}

// New returns a rewriter obtaining twins from reg and fragment identifiers
// from names.
func New(reg *staticimpl.Registry, names *names.Cache) *Rewriter {
	return &Rewriter{reg: reg, names: names}
}

// Stats returns the counts accumulated so far.
func (r *Rewriter) Stats() Stats { return r.stats }

// Post rewrites the node under c. Typed calls are handled as they are met;
// a fragment is handled once its body node is reached, after the rest of
// the method.
func (r *Rewriter) Post(c *jast.Cursor) {
	switch n := c.Node().(type) {
	case *jast.MethodCall:
		if n.Target.IsDefault() {
			c.Replace(r.rewriteCall(c, n))
			r.stats.CallsRewritten++
		}
	case *jast.NativeBody:
		r.rewriteFragment(n)
	}
}
