// Package harness provides testing utilities for the default method
// lowering pass.
package harness

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/defender/pkg/defender"
	"github.com/715d/defender/pkg/jast"
	"github.com/715d/defender/pkg/progfile"
)

// Expectation describes the outcome expected from lowering a program.
type Expectation struct {
	// Twins lists the static implementations expected to be created, as
	// "Type.name(T1,T2)" keys.
	Twins []string `yaml:"twins"`

	// Forwarders lists the forwarding methods expected to be added, as
	// "Class.name(T1,T2)" keys.
	Forwarders []string `yaml:"forwarders"`

	// Contains lists text the dump of the lowered program must contain.
	Contains []string `yaml:"contains"`

	// NotContains lists text the dump of the lowered program must not
	// contain.
	NotContains []string `yaml:"not_contains"`

	// Error is a substring of the error lowering is expected to fail with.
	Error string `yaml:"error,omitempty"`
}

// TestCase represents a single test scenario.
type TestCase struct {
	// Name is the archive name without extension.
	Name string `yaml:"-"`

	// Comment is the free text at the top of the archive.
	Comment string `yaml:"-"`

	// Program is the program description to lower.
	Program []byte `yaml:"-"`

	Expected Expectation `yaml:",inline"`
}

// TestResult represents the result of running a test case.
type TestResult struct {
	// TestCase is the test case that was run.
	TestCase *TestCase

	// Result is the outcome of lowering, nil when lowering failed.
	Result *defender.Result

	// Dump is the lowered program text.
	Dump string

	// Success indicates if the test passed.
	Success bool

	// Message provides a summary of the result.
	Message string

	// Details provides detailed information about failures.
	Details []string
}

// TestHarness manages test execution.
type TestHarness struct {
	lowerer *defender.Lowerer
}

// NewHarness creates a new test harness.
func NewHarness() *TestHarness {
	return &TestHarness{
		lowerer: defender.NewLowerer(defender.Options{Verify: true}),
	}
}

// Run loads, lowers and checks a test case.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.Program, "test case has no program")

	tr := &TestResult{TestCase: tc}

	prog, err := progfile.Parse(tc.Program, tc.Name+"/program.yaml")
	if err == nil {
		tr.Result, err = h.lowerer.Lower(prog)
	}
	if err != nil {
		switch {
		case tc.Expected.Error == "":
			tr.fail("Unexpected error", err.Error())
		case strings.Contains(err.Error(), tc.Expected.Error):
			tr.Success = true
			tr.Message = fmt.Sprintf("Got expected error: %v", err)
		default:
			tr.fail("Wrong error", fmt.Sprintf("expected error containing %q, got %v", tc.Expected.Error, err))
		}
		return tr
	}
	if tc.Expected.Error != "" {
		tr.fail("Missing error", fmt.Sprintf("expected error containing %q", tc.Expected.Error))
		return tr
	}

	tr.Dump = jast.DumpString(prog)
	validateResults(tr, tc.Expected)
	return tr
}

func (tr *TestResult) fail(message string, details ...string) {
	tr.Success = false
	tr.Message = message
	tr.Details = append(tr.Details, details...)
}

func validateResults(tr *TestResult, exp Expectation) {
	var details []string

	details = append(details, compareKeys("twin", exp.Twins, keys(tr.Result.Twins))...)
	details = append(details, compareKeys("forwarder", exp.Forwarders, keys(tr.Result.Forwarders))...)

	for _, s := range exp.Contains {
		if !strings.Contains(tr.Dump, s) {
			details = append(details, fmt.Sprintf("Dump should contain %q", s))
		}
	}
	for _, s := range exp.NotContains {
		if strings.Contains(tr.Dump, s) {
			details = append(details, fmt.Sprintf("Dump should not contain %q", s))
		}
	}

	if len(details) > 0 {
		tr.fail(fmt.Sprintf("Test failed: %d problem(s)", len(details)), details...)
		tr.Details = append(tr.Details, "Lowered program:\n"+tr.Dump)
		return
	}
	tr.Success = true
	tr.Message = fmt.Sprintf("%d twin(s), %d forwarder(s) as expected", len(exp.Twins), len(exp.Forwarders))
}

func keys(methods []*jast.Method) []string {
	out := make([]string, len(methods))
	for i, m := range methods {
		out[i] = m.String()
	}
	return out
}

// compareKeys reports missing and unexpected entries. Creation order is
// part of the output contract, so it is compared too.
func compareKeys(what string, expected, actual []string) []string {
	var details []string

	var missing, unexpected []string
	for _, e := range expected {
		if !slices.Contains(actual, e) {
			missing = append(missing, e)
		}
	}
	for _, a := range actual {
		if !slices.Contains(expected, a) {
			unexpected = append(unexpected, a)
		}
	}

	// Sort for consistent output.
	slices.Sort(missing)
	slices.Sort(unexpected)

	for _, m := range missing {
		details = append(details, fmt.Sprintf("Missing %s: %s", what, m))
	}
	for _, u := range unexpected {
		details = append(details, fmt.Sprintf("Unexpected %s: %s", what, u))
	}
	if len(details) == 0 && !slices.Equal(expected, actual) {
		details = append(details, fmt.Sprintf("%s order: expected %v, got %v", what, expected, actual))
	}
	return details
}
