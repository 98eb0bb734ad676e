// Package defender lowers default interface methods into static functions
// and retargets every use of them.
package defender

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/715d/defender/internal/mixin"
	"github.com/715d/defender/internal/names"
	"github.com/715d/defender/internal/rewrite"
	"github.com/715d/defender/internal/staticimpl"
	"github.com/715d/defender/pkg/jast"
)

var (
	// ErrInvariant reports a tree that violates a precondition of the pass.
	ErrInvariant = errors.New("invariant violation")
	// ErrVerify reports a lowered program that still uses default methods.
	ErrVerify = errors.New("verification failed")
)

// Options holds configuration options for the lowerer.
type Options struct {
	Verify bool // Check the post-conditions after lowering.
}

// Result summarizes one lowering run.
type Result struct {
	TwinsCreated                 int `json:"twins_created"`
	ForwardersAdded              int `json:"forwarders_added"`
	CallsRewritten               int `json:"calls_rewritten"`
	FragmentRefsRewritten        int `json:"fragment_refs_rewritten"`
	FragmentInvocationsRewritten int `json:"fragment_invocations_rewritten"`
	FragmentsRewritten           int `json:"fragments_rewritten"`

	// Twins and Forwarders list the methods created, in creation order.
	Twins      []*jast.Method `json:"-"`
	Forwarders []*jast.Method `json:"-"`
}

// Changed reports whether the run modified the program.
func (r *Result) Changed() bool {
	return r.TwinsCreated > 0 || r.ForwardersAdded > 0 || r.CallsRewritten > 0 ||
		r.FragmentsRewritten > 0
}

// Lowerer runs the pass. A Lowerer may lower several programs, also
// concurrently; each program must only be lowered by one goroutine at a
// time.
type Lowerer struct {
	names *names.Cache
	opts  Options
}

// NewLowerer creates a new lowerer with the given options.
func NewLowerer(opts Options) *Lowerer {
	return &Lowerer{
		names: names.NewCache(),
		opts:  opts,
	}
}

// Lower rewrites prog in place. An invariant violation met while rewriting
// aborts the run with an error wrapping ErrInvariant; the program is then
// partially rewritten and must be discarded.
func (l *Lowerer) Lower(prog *jast.Program) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*jast.InvariantError)
			if !ok {
				panic(r)
			}
			res, err = nil, fmt.Errorf("%w: %s", ErrInvariant, ie.Msg)
		}
	}()

	// Step 1: One registry serves every step so all agree on the twins.
	reg := staticimpl.New(prog)

	// Step 2: Give implementors forwarders. The class shapes are final
	// before any call site is looked at.
	synth := mixin.New(prog, reg)
	synth.Run()

	// Step 3: Retarget typed calls and fragment references in one walk.
	rw := rewrite.New(reg, l.names)
	jast.RewriteProgram(prog, rw.Post)

	stats := rw.Stats()
	res = &Result{
		TwinsCreated:                 len(reg.Created()),
		ForwardersAdded:              len(synth.Forwarders()),
		CallsRewritten:               stats.CallsRewritten,
		FragmentRefsRewritten:        stats.FragmentRefs,
		FragmentInvocationsRewritten: stats.FragmentInvocations,
		FragmentsRewritten:           stats.Fragments,
		Twins:                        reg.Created(),
		Forwarders:                   synth.Forwarders(),
	}
	slog.Info("lowered default methods",
		slog.Int("twins", res.TwinsCreated),
		slog.Int("forwarders", res.ForwardersAdded),
		slog.Int("calls", res.CallsRewritten),
		slog.Int("fragments", res.FragmentsRewritten))

	// Step 4: Optionally check that nothing still targets a default.
	if l.opts.Verify {
		if err := Verify(prog, l.names); err != nil {
			return res, err
		}
	}
	return res, nil
}
