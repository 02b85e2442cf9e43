package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quic-interop/quic-interop-runner/internal/measurement"
	"github.com/quic-interop/quic-interop-runner/internal/registry"
	"github.com/quic-interop/quic-interop-runner/internal/result"
	"github.com/quic-interop/quic-interop-runner/internal/testcase"
)

type fakeRunner struct {
	concurrent int32
	maxSeen    int32
}

func (f *fakeRunner) RunTest(ctx context.Context, server, client registry.Implementation, factory testcase.Factory) (result.Verdict, *float64, error) {
	n := atomic.AddInt32(&f.concurrent, 1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&f.concurrent, -1)
	return result.Succeeded, nil, nil
}

type fakeMeasurer struct {
	calls int
}

func (f *fakeMeasurer) Run(ctx context.Context, server, client registry.Implementation, factory testcase.MeasurementFactory) measurement.Outcome {
	f.calls++
	return measurement.Outcome{Verdict: result.Succeeded, Details: "1 (± 0) kbps"}
}

func factories(n int) []testcase.Factory {
	fs := make([]testcase.Factory, n)
	for i := range fs {
		fs[i] = func() testcase.TestCase { return testcase.NewHandshake() }
	}
	return fs
}

func TestRunPairBoundsConcurrency(t *testing.T) {
	old := staggerDelay
	staggerDelay = time.Millisecond
	defer func() { staggerDelay = old }()

	runner := &fakeRunner{}
	measurer := &fakeMeasurer{}
	s := NewScheduler(2)

	out := s.RunPair(context.Background(), runner, measurer,
		registry.Implementation{Name: "s"}, registry.Implementation{Name: "c"},
		factories(10), nil)

	if len(out.Tests) != 10 {
		t.Fatalf("expected 10 test outcomes, got %d", len(out.Tests))
	}
	if runner.maxSeen > 2 {
		t.Fatalf("expected concurrency bounded to 2, observed %d", runner.maxSeen)
	}
}

func TestRunPairRunsMeasurementsAfterTests(t *testing.T) {
	runner := &fakeRunner{}
	measurer := &fakeMeasurer{}
	s := NewScheduler(4)

	measurements := []testcase.MeasurementFactory{
		func() testcase.Measurement { return nil },
	}
	// Use a factory that doesn't dereference Name() via nil: wrap with NewGoodput.
	measurements[0] = func() testcase.Measurement { return testcase.NewGoodput() }

	out := s.RunPair(context.Background(), runner, measurer,
		registry.Implementation{Name: "s"}, registry.Implementation{Name: "c"},
		factories(2), measurements)

	if len(out.Measurements) != 1 {
		t.Fatalf("expected 1 measurement outcome, got %d", len(out.Measurements))
	}
	if measurer.calls != 1 {
		t.Fatalf("expected measurer invoked once, got %d", measurer.calls)
	}
	if out.Measurements[0].Outcome.Verdict != result.Succeeded {
		t.Fatalf("expected succeeded, got %v", out.Measurements[0].Outcome.Verdict)
	}
}
