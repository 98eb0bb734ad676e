package defender

import (
	"fmt"
	goruntime "runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/715d/defender/internal/names"
	"github.com/715d/defender/pkg/jast"
	"github.com/715d/defender/pkg/jsast"
)

// Problem is one post-condition violation found by Verify.
type Problem struct {
	Pos     jast.Pos
	Method  string
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s: %s", p.Pos, p.Method, p.Message)
}

// VerifyError lists every violation found by Verify. It wraps ErrVerify.
type VerifyError struct {
	Problems []Problem
}

func (e *VerifyError) Error() string {
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = p.String()
	}
	return fmt.Sprintf("%s: %d problem(s)\n%s", ErrVerify, len(e.Problems), strings.Join(lines, "\n"))
}

func (e *VerifyError) Unwrap() error { return ErrVerify }

// Verify checks a lowered program:
//   - no typed call targets a default method,
//   - no fragment linkage entry or member reference names a default method,
//   - every implementor of an interface declares its own method for each of
//     the interface's default methods.
//
// Types are checked concurrently; the program is only read.
func Verify(prog *jast.Program, nc *names.Cache) error {
	defaults := make(map[string]*jast.Method)
	for ident, m := range nc.Index(prog) {
		if m.IsDefault() {
			defaults[ident] = m
		}
	}

	types := prog.Types()
	results := make([][]Problem, len(types))

	var wg errgroup.Group
	wg.SetLimit(goruntime.NumCPU())
	for idx, t := range types {
		wg.Go(func() error {
			var problems []Problem
			for _, m := range t.Methods() {
				problems = append(problems, verifyBody(m, defaults)...)
			}
			if t.IsInterface() {
				problems = append(problems, verifyImplementors(prog, t)...)
			}
			results[idx] = problems
			return nil
		})
	}
	_ = wg.Wait()

	var all []Problem
	for _, problems := range results {
		all = append(all, problems...)
	}
	if len(all) > 0 {
		return &VerifyError{Problems: all}
	}
	return nil
}

func verifyBody(m *jast.Method, defaults map[string]*jast.Method) []Problem {
	var problems []Problem
	report := func(pos jast.Pos, format string, args ...any) {
		problems = append(problems, Problem{Pos: pos, Method: m.String(), Message: fmt.Sprintf(format, args...)})
	}

	if m.Body == nil {
		return nil
	}
	jast.Inspect(m.Body, func(n jast.Node) bool {
		switch n := n.(type) {
		case *jast.MethodCall:
			if n.Target.IsDefault() {
				report(n.Pos(), "call still targets default method %s", n.Target)
			}
		case *jast.NativeMethodRef:
			if n.Target != nil && n.Target.IsDefault() {
				report(n.Pos(), "fragment linkage still targets default method %s", n.Target)
			}
		}
		return true
	})

	if nb, ok := m.Body.(*jast.NativeBody); ok && nb.Func != nil {
		jsast.Inspect(nb.Func, func(n jsast.Node) bool {
			if ref, ok := n.(*jsast.NameRef); ok && ref.IsMemberRef() {
				if d, ok := defaults[ref.Ident]; ok {
					report(nb.Pos(), "fragment still references default method %s", d)
				}
			}
			return true
		})
	}
	return problems
}

func verifyImplementors(prog *jast.Program, iface *jast.DeclaredType) []Problem {
	var problems []Problem
	var implementors []*jast.DeclaredType
	for _, d := range iface.Methods() {
		if !d.IsDefault() {
			continue
		}
		if implementors == nil {
			implementors = prog.Implementors(iface)
		}
		for _, class := range implementors {
			if class.MethodBySignature(d.Signature()) == nil {
				problems = append(problems, Problem{
					Pos:     class.Pos,
					Method:  d.String(),
					Message: fmt.Sprintf("implementor %s has no method %s", class.Name, d.Signature()),
				})
			}
		}
	}
	return problems
}
