package grader

import (
	"context"
	"errors"
	"testing"

	"github.com/acadio/assess-backend/internal/model"
	"github.com/acadio/assess-backend/internal/sandbox"
	"github.com/rs/zerolog"
)

// fakeRunner answers each execution from a queue, recording call order.
type fakeRunner struct {
	results []runnerStep
	calls   []string // stdin of each call, in order
}

type runnerStep struct {
	res *sandbox.ExecResult
	err error
}

func (f *fakeRunner) Execute(_ context.Context, req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
	f.calls = append(f.calls, req.Stdin)
	if len(f.results) == 0 {
		return &sandbox.ExecResult{}, nil
	}
	step := f.results[0]
	f.results = f.results[1:]
	return step.res, step.err
}

func msPtr(v int64) *int64 { return &v }

func TestValidateAllNoTestCases(t *testing.T) {
	v := NewValidator(&fakeRunner{}, zerolog.Nop())
	if _, err := v.ValidateAll(context.Background(), "code", "python", nil); !errors.Is(err, ErrNoTestCases) {
		t.Fatalf("err = %v, want ErrNoTestCases", err)
	}
}

func TestPartialCreditScenario(t *testing.T) {
	// Three cases worth 1, 1, 2. Cases 1-2 pass, case 3 matches output but
	// exceeds its time ceiling: total 3.0 of 4, passed=2, partial=1, failed=0.
	cases := []model.TestCase{
		{Input: "1", Expected: "1", Points: 1, IsSample: true},
		{Input: "2", Expected: "4", Points: 1},
		{Input: "3", Expected: "9", Points: 2, MaxTimeMS: msPtr(100)},
	}
	runner := &fakeRunner{results: []runnerStep{
		{res: &sandbox.ExecResult{Stdout: "1\n", ExecutionTimeMS: 10}},
		{res: &sandbox.ExecResult{Stdout: "4\n", ExecutionTimeMS: 12}},
		{res: &sandbox.ExecResult{Stdout: "9\n", ExecutionTimeMS: 350}},
	}}

	v := NewValidator(runner, zerolog.Nop())
	summary, err := v.ValidateAll(context.Background(), "code", "python", cases)
	if err != nil {
		t.Fatalf("ValidateAll: %v", err)
	}

	if summary.TotalScore != 3 || summary.MaxScore != 4 {
		t.Errorf("score = %v/%v, want 3/4", summary.TotalScore, summary.MaxScore)
	}
	if summary.PassedCount != 2 || summary.PartialCount != 1 || summary.FailedCount != 0 {
		t.Errorf("tally = %d/%d/%d, want 2/1/0", summary.PassedCount, summary.PartialCount, summary.FailedCount)
	}
	if summary.Cases[2].Status != model.CaseStatusPartial || summary.Cases[2].Score != 1 {
		t.Errorf("case 3 = %+v, want PARTIAL at half points", summary.Cases[2])
	}
}

func TestMismatchIsWrongRegardlessOfTime(t *testing.T) {
	cases := []model.TestCase{{Input: "1", Expected: "2", Points: 1, MaxTimeMS: msPtr(1000)}}
	runner := &fakeRunner{results: []runnerStep{
		{res: &sandbox.ExecResult{Stdout: "3\n", ExecutionTimeMS: 5}},
	}}

	v := NewValidator(runner, zerolog.Nop())
	summary, err := v.ValidateAll(context.Background(), "code", "go", cases)
	if err != nil {
		t.Fatalf("ValidateAll: %v", err)
	}
	if summary.Cases[0].Status != model.CaseStatusWrong || summary.TotalScore != 0 {
		t.Errorf("got %+v, want WRONG with 0 points", summary.Cases[0])
	}
}

func TestSandboxFaultIsIsolatedPerCase(t *testing.T) {
	cases := []model.TestCase{
		{Input: "a", Expected: "1", Points: 1},
		{Input: "b", Expected: "2", Points: 1},
		{Input: "c", Expected: "3", Points: 1},
	}
	runner := &fakeRunner{results: []runnerStep{
		{res: &sandbox.ExecResult{Stdout: "1", ExecutionTimeMS: 3}},
		{err: errors.New("sandbox timeout")},
		{res: &sandbox.ExecResult{Stdout: "3", ExecutionTimeMS: 4}},
	}}

	v := NewValidator(runner, zerolog.Nop())
	summary, err := v.ValidateAll(context.Background(), "code", "python", cases)
	if err != nil {
		t.Fatalf("ValidateAll must absorb per-case faults, got: %v", err)
	}

	if summary.PassedCount != 2 || summary.FailedCount != 1 {
		t.Errorf("tally = %d passed / %d failed, want 2/1", summary.PassedCount, summary.FailedCount)
	}
	if summary.Cases[1].Error == "" {
		t.Error("faulted case is missing its error text")
	}
	// Cases must run strictly sequentially, in test-case order.
	if len(runner.calls) != 3 || runner.calls[0] != "a" || runner.calls[1] != "b" || runner.calls[2] != "c" {
		t.Errorf("call order = %v, want [a b c]", runner.calls)
	}
}

func TestNonZeroExitIsWrong(t *testing.T) {
	cases := []model.TestCase{{Input: "x", Expected: "1", Points: 2}}
	runner := &fakeRunner{results: []runnerStep{
		{res: &sandbox.ExecResult{Stdout: "", Stderr: "IndexError: list index out of range\n", ExitCode: 1}},
	}}

	v := NewValidator(runner, zerolog.Nop())
	summary, _ := v.ValidateAll(context.Background(), "code", "python", cases)
	if summary.Cases[0].Status != model.CaseStatusWrong {
		t.Errorf("status = %s, want WRONG", summary.Cases[0].Status)
	}
	if summary.Cases[0].Error != "IndexError: list index out of range" {
		t.Errorf("error = %q", summary.Cases[0].Error)
	}
}

func TestHiddenCasesHideIO(t *testing.T) {
	cases := []model.TestCase{
		{Input: "secret-in", Expected: "secret-out", Points: 1, IsSample: false},
	}
	runner := &fakeRunner{results: []runnerStep{
		{res: &sandbox.ExecResult{Stdout: "secret-out", ExecutionTimeMS: 1}},
	}}

	v := NewValidator(runner, zerolog.Nop())
	summary, _ := v.ValidateAll(context.Background(), "code", "python", cases)

	c := summary.Cases[0]
	if c.Input != "" || c.Expected != "" || c.Actual != "" {
		t.Errorf("hidden case leaked IO: %+v", c)
	}
	if c.Status != model.CaseStatusCorrect {
		t.Errorf("status = %s, want CORRECT", c.Status)
	}
}
