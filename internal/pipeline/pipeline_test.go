package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, state *State) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, state *State) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, state)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestState() *State {
	return NewState("run-test", []model.QuerySpec{{Name: "london"}}, time.Now())
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.Logger() == nil {
			t.Error("expected a default logger")
		}
	})

	t.Run("applies WithLogger option", func(t *testing.T) {
		t.Parallel()

		logger := quietLogger()
		p := New(WithLogger(logger))

		if p.Logger() != logger {
			t.Error("expected custom logger to be set")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	t.Run("adds single step", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddStep(&mockStep{name: "test-step"})

		if p.StepCount() != 1 {
			t.Errorf("expected 1 step, got %d", p.StepCount())
		}
	})

	t.Run("maintains step order", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddSteps(&mockStep{name: "first"}, &mockStep{name: "second"})
		p.AddStep(&mockStep{name: "third"})

		names := p.StepNames()
		expected := []string{"first", "second", "third"}
		if len(names) != len(expected) {
			t.Fatalf("expected %d names, got %d", len(expected), len(names))
		}
		for i, name := range names {
			if name != expected[i] {
				t.Errorf("step %d: got %q, expected %q", i, name, expected[i])
			}
		}
	})
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		executionOrder := make([]string, 0)
		record := func(name string) func(context.Context, *State) error {
			return func(context.Context, *State) error {
				executionOrder = append(executionOrder, name)
				return nil
			}
		}

		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{name: "step-1", doFunc: record("step-1")})
		p.AddStep(&mockStep{name: "step-2", doFunc: record("step-2")})

		state := newTestState()
		if err := p.Execute(context.Background(), state); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(executionOrder) != 2 || executionOrder[0] != "step-1" || executionOrder[1] != "step-2" {
			t.Errorf("wrong execution order: %v", executionOrder)
		}
		if len(state.Steps) != 2 {
			t.Errorf("expected 2 performed steps, got %v", state.Steps)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("step failed")
		next := &mockStep{name: "should-not-run"}

		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{
			name: "failing-step",
			doFunc: func(context.Context, *State) error {
				return expectedErr
			},
		})
		p.AddStep(next)

		state := newTestState()
		err := p.Execute(context.Background(), state)

		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if next.callCount != 0 {
			t.Error("second step should not have been called")
		}
		if state.Summary.Status != model.RunStatusFailed || state.Summary.Error != expectedErr.Error() {
			t.Errorf("summary = %s %q, want failed with the step error", state.Summary.Status, state.Summary.Error)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "should-not-run"}
		p := New(WithLogger(quietLogger()))
		p.AddStep(step)

		state := newTestState()
		err := p.Execute(ctx, state)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("step should not have been called")
		}
		if state.Summary.Status != model.RunStatusCancelled {
			t.Errorf("Status = %s, want cancelled", state.Summary.Status)
		}
	})

	t.Run("marks cancellation inside a step", func(t *testing.T) {
		t.Parallel()

		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{
			name: "interrupted",
			doFunc: func(context.Context, *State) error {
				return context.DeadlineExceeded
			},
		})

		state := newTestState()
		_ = p.Execute(context.Background(), state)
		if state.Summary.Status != model.RunStatusCancelled {
			t.Errorf("Status = %s, want cancelled", state.Summary.Status)
		}
	})
}

func TestNewState(t *testing.T) {
	t.Parallel()

	searches := []model.QuerySpec{{Name: "london"}, {Name: "leeds"}}
	state := NewState("run-1", searches, time.Now())

	if state.RunID() != "run-1" {
		t.Errorf("RunID() = %q", state.RunID())
	}
	if len(state.Summary.Searches) != 2 || state.Summary.Searches[1] != "leeds" {
		t.Errorf("Summary.Searches = %v", state.Summary.Searches)
	}
	if state.Records == nil || state.Records.Len() != 0 {
		t.Error("expected an empty deduplicator")
	}
	if state.Summary.Succeeded() {
		t.Error("a new run should not count as succeeded")
	}
}
