// Package grader orchestrates code-question runs against the sandbox and
// aggregates per-test-case outcomes into a score.
package grader

import (
	"context"
	"errors"
	"strings"

	"github.com/acadio/assess-backend/internal/model"
	"github.com/acadio/assess-backend/internal/sandbox"
	"github.com/rs/zerolog"
)

// ErrNoTestCases marks a misconfigured code question. It must surface as a
// configuration error, never as a silent zero score.
var ErrNoTestCases = errors.New("code question has no test cases")

// Validator grades code answers. Test cases always run one at a time so a
// sandbox fault on one case cannot corrupt the accounting of the others.
type Validator struct {
	runner sandbox.Runner
	log    zerolog.Logger
}

// NewValidator creates a Validator on top of a sandbox runner.
func NewValidator(runner sandbox.Runner, log zerolog.Logger) *Validator {
	return &Validator{
		runner: runner,
		log:    log.With().Str("component", "code_validator").Logger(),
	}
}

// RunSample executes code once against arbitrary stdin and returns the raw
// sandbox output. Used for quick iteration; never affects the score.
func (v *Validator) RunSample(ctx context.Context, source, language, stdin string) (*sandbox.ExecResult, error) {
	return v.runner.Execute(ctx, sandbox.ExecRequest{
		Language: language,
		Source:   source,
		Stdin:    stdin,
	})
}

// ValidateAll runs the code against every test case, sample and hidden, in
// order. A sandbox error on an individual case is recorded as WRONG for that
// case and does not abort the rest. This is the only path that produces a
// TestRunSummary.
func (v *Validator) ValidateAll(ctx context.Context, source, language string, cases []model.TestCase) (*model.TestRunSummary, error) {
	if len(cases) == 0 {
		return nil, ErrNoTestCases
	}

	summary := &model.TestRunSummary{
		Cases: make([]model.CaseResult, 0, len(cases)),
	}

	for i := range cases {
		tc := cases[i]
		summary.MaxScore += tc.Points

		result := v.runCase(ctx, source, language, tc)
		summary.TotalScore += result.Score

		switch result.Status {
		case model.CaseStatusCorrect:
			summary.PassedCount++
		case model.CaseStatusPartial:
			summary.PartialCount++
		case model.CaseStatusWrong:
			summary.FailedCount++
		}

		summary.Cases = append(summary.Cases, result)
	}

	return summary, nil
}

// runCase executes one test case and applies the scoring rule:
//   - output mismatch → WRONG, 0 points, regardless of time
//   - output match over the time ceiling → PARTIAL, half points
//   - output match within the ceiling → CORRECT, full points
func (v *Validator) runCase(ctx context.Context, source, language string, tc model.TestCase) model.CaseResult {
	result := model.CaseResult{
		Points:   tc.Points,
		IsSample: tc.IsSample,
	}
	if tc.IsSample {
		result.Input = tc.Input
		result.Expected = tc.Expected
	}

	exec, err := v.runner.Execute(ctx, sandbox.ExecRequest{
		Language: language,
		Source:   source,
		Stdin:    tc.Input,
	})
	if err != nil {
		v.log.Warn().Err(err).Msg("Sandbox error on test case")
		result.Status = model.CaseStatusWrong
		result.Error = err.Error()
		return result
	}

	result.TimeMS = exec.ExecutionTimeMS
	if tc.IsSample {
		result.Actual = exec.Stdout
	}

	if exec.ExitCode != 0 {
		result.Status = model.CaseStatusWrong
		result.Error = strings.TrimSpace(exec.Stderr)
		return result
	}

	if !outputMatches(exec.Stdout, tc.Expected) {
		result.Status = model.CaseStatusWrong
		return result
	}

	if tc.MaxTimeMS != nil && exec.ExecutionTimeMS > *tc.MaxTimeMS {
		result.Status = model.CaseStatusPartial
		result.Score = tc.Points / 2
		return result
	}

	result.Status = model.CaseStatusCorrect
	result.Score = tc.Points
	return result
}

// outputMatches compares actual and expected output ignoring leading and
// trailing whitespace.
func outputMatches(actual, expected string) bool {
	return strings.TrimSpace(actual) == strings.TrimSpace(expected)
}
