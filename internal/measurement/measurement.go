// Package measurement implements the Measurement Driver (spec §4.G): it
// invokes the Test Executor repetitions() times for a single measurement,
// short-circuiting on the first non-succeeded outcome, and otherwise
// aggregates the collected numeric samples into a mean/stdev summary.
//
// The short-circuit-on-failure and "<mean> (± <stdev>) <unit>" formatting
// are grounded on the original implementation's interop.py measurement loop
// and MeasurementResult, which carries exactly those two fields.
package measurement

import (
	"context"
	"fmt"
	"math"

	"github.com/quic-interop/quic-interop-runner/internal/harness"
	"github.com/quic-interop/quic-interop-runner/internal/registry"
	"github.com/quic-interop/quic-interop-runner/internal/result"
	"github.com/quic-interop/quic-interop-runner/internal/testcase"
)

// Executor is the subset of harness.Executor the driver depends on, kept as
// an interface so the driver can be tested without a real container runtime.
type Executor interface {
	RunTest(ctx context.Context, server, client registry.Implementation, factory testcase.Factory) (result.Verdict, *float64, error)
}

// Outcome is the result of driving one measurement to completion.
type Outcome struct {
	Verdict result.Verdict
	Details string // "<mean> (± <stdev>) <unit>", empty unless Verdict == Succeeded
}

// Driver adapts Run into a method value so it can satisfy an interface
// (schedule.MeasurementRunner) expecting a Run method rather than a free
// function.
type Driver struct {
	Executor Executor
}

// Run satisfies schedule.MeasurementRunner by delegating to the package
// function Run with the Driver's bound Executor.
func (d Driver) Run(ctx context.Context, server, client registry.Implementation, factory testcase.MeasurementFactory) Outcome {
	return Run(ctx, d.Executor, server, client, factory)
}

// Run executes factory() repetitions() times via executor, short-circuiting
// on the first non-succeeded outcome and otherwise returning the mean/stdev
// summary over every collected numeric sample.
func Run(ctx context.Context, executor Executor, server, client registry.Implementation, factory testcase.MeasurementFactory) Outcome {
	reps := factory().Repetitions()
	unit := factory().Unit()

	var samples []float64
	for i := 0; i < reps; i++ {
		repCtx := harness.WithRepetition(ctx, i+1)
		verdict, value, err := executor.RunTest(repCtx, server, client, func() testcase.TestCase { return factory() })
		if err != nil || verdict != result.Succeeded {
			return Outcome{Verdict: verdict}
		}
		if value == nil {
			return Outcome{Verdict: result.Failed}
		}
		samples = append(samples, *value)
	}

	mean, stdev := meanStdev(samples)
	return Outcome{
		Verdict: result.Succeeded,
		Details: fmt.Sprintf("%d (± %d) %s", int(mean), int(stdev), unit),
	}
}

func meanStdev(samples []float64) (mean, stdev float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean = sum / float64(len(samples))

	if len(samples) < 2 {
		return mean, 0
	}
	var sumSq float64
	for _, v := range samples {
		d := v - mean
		sumSq += d * d
	}
	stdev = math.Sqrt(sumSq / float64(len(samples)-1))
	return mean, stdev
}
