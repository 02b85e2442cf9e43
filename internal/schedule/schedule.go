// Package schedule implements the Parallel Scheduler (spec §4.H): for one
// (client, server) pair, it submits every test case to a bounded worker
// pool with a small staggered delay between submissions, then runs every
// measurement serially afterward so bandwidth-sensitive numbers aren't
// distorted by co-scheduled neighbors.
//
// The channel-fed worker pool shape is grounded on the teacher's
// runScenariosParallel (internal/testing/test_runner.go): a buffered job
// channel, N workers draining it, and a results channel closed once every
// worker finishes. The bound itself is enforced with
// golang.org/x/sync/semaphore.Weighted (SPEC_FULL §2 domain-stack wiring),
// replacing the teacher's fixed-worker-count channel with an explicit
// semaphore so the same Scheduler value can be reused across pairs without
// re-spinning goroutines per pair.
package schedule

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/quic-interop/quic-interop-runner/internal/measurement"
	"github.com/quic-interop/quic-interop-runner/internal/registry"
	"github.com/quic-interop/quic-interop-runner/internal/result"
	"github.com/quic-interop/quic-interop-runner/internal/testcase"
	"github.com/quic-interop/quic-interop-runner/pkg/logging"
)

const subsystem = "Scheduler"

// staggerDelay is the minimum spacing between successive test submissions
// within a pair, avoiding a thundering herd against the container runtime.
// A package variable, not a constant, so tests can shrink it.
var staggerDelay = 200 * time.Millisecond

// TestRunner executes a single test case and reports its verdict.
type TestRunner interface {
	RunTest(ctx context.Context, server, client registry.Implementation, factory testcase.Factory) (result.Verdict, *float64, error)
}

// MeasurementRunner executes a single measurement to completion.
type MeasurementRunner interface {
	Run(ctx context.Context, server, client registry.Implementation, factory testcase.MeasurementFactory) measurement.Outcome
}

// TestOutcome pairs a test case's name with its verdict for PairOutcome.
type TestOutcome struct {
	Name    string
	Verdict result.Verdict
}

// MeasurementResult pairs a measurement's name with its outcome.
type MeasurementResult struct {
	Name    string
	Outcome measurement.Outcome
}

// PairOutcome is every test and measurement verdict collected for one
// (server, client) pair.
type PairOutcome struct {
	Tests        []TestOutcome
	Measurements []MeasurementResult
}

// Scheduler bounds concurrent test executions to a configured worker count.
type Scheduler struct {
	sem *semaphore.Weighted
}

// NewScheduler returns a Scheduler bounded to parallelism concurrent
// executions. parallelism <= 0 means "unbounded" (as many as submitted).
func NewScheduler(parallelism int) *Scheduler {
	if parallelism <= 0 {
		parallelism = 1 << 20 // effectively unbounded, matches "all cores" sentinel resolved upstream
	}
	return &Scheduler{sem: semaphore.NewWeighted(int64(parallelism))}
}

// RunPair submits every test in tests to the worker pool with a staggered
// delay between submissions, waits for the whole batch to complete, then
// runs every measurement in measurements serially.
func (s *Scheduler) RunPair(ctx context.Context, runner TestRunner, measurer MeasurementRunner, server, client registry.Implementation, tests []testcase.Factory, measurements []testcase.MeasurementFactory) PairOutcome {
	outcome := PairOutcome{
		Tests:        make([]TestOutcome, len(tests)),
		Measurements: make([]MeasurementResult, len(measurements)),
	}

	var wg sync.WaitGroup
	for i, factory := range tests {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			logging.Warn(subsystem, "acquiring worker slot: %v", err)
			outcome.Tests[i] = TestOutcome{Name: factory().Name(), Verdict: result.Failed}
			continue
		}

		wg.Add(1)
		go func(i int, factory testcase.Factory) {
			defer wg.Done()
			defer s.sem.Release(1)

			var name string
			defer func() {
				if r := recover(); r != nil {
					logging.Warn(subsystem, "test %s panicked: %v", name, r)
					outcome.Tests[i] = TestOutcome{Name: name, Verdict: result.Failed}
				}
			}()

			name = factory().Name()
			verdict, _, err := runner.RunTest(ctx, server, client, factory)
			if err != nil {
				logging.Warn(subsystem, "test %s errored: %v", name, err)
				verdict = result.Failed
			}
			outcome.Tests[i] = TestOutcome{Name: name, Verdict: verdict}
		}(i, factory)

		if i < len(tests)-1 {
			time.Sleep(staggerDelay)
		}
	}
	wg.Wait()

	for i, factory := range measurements {
		name := factory().Name()
		mo := measurer.Run(ctx, server, client, factory)
		outcome.Measurements[i] = MeasurementResult{Name: name, Outcome: mo}
	}

	return outcome
}
