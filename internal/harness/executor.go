// Package harness implements the Test Executor (spec §4.F): the 12-step
// operation that allocates a subnet, builds a workspace, runs one test
// case's container group, collects logs, classifies the outcome, and
// promotes or discards the workspace accordingly.
//
// The classification substrings and ordering (127 → unsupported, else
// regex client.*exited with code 0 → check(), else → failed) are bit-exact
// translations of the original implementation's interop.py::_run_testcase.
// RunTest buffers its own log records in a per-run pkg/logging.Sink and
// drains it when the run returns, generalizing the teacher's TUI-vs-CLI
// console separation in Initcommon.
package harness

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/quic-interop/quic-interop-runner/internal/certs"
	"github.com/quic-interop/quic-interop-runner/internal/compose"
	"github.com/quic-interop/quic-interop-runner/internal/logs"
	"github.com/quic-interop/quic-interop-runner/internal/registry"
	"github.com/quic-interop/quic-interop-runner/internal/result"
	"github.com/quic-interop/quic-interop-runner/internal/subnet"
	"github.com/quic-interop/quic-interop-runner/internal/testcase"
	"github.com/quic-interop/quic-interop-runner/internal/trace"
	"github.com/quic-interop/quic-interop-runner/internal/workspace"
	"github.com/quic-interop/quic-interop-runner/pkg/logging"
)

const subsystem = "Executor"

const (
	exitedWithCode127 = "exited with code 127"
	exitStatus127     = "exit status 127"
)

var clientExitedCleanly = regexp.MustCompile(`client.*exited with code 0`)

// Options configures every run of RunTest issued by one Executor.
type Options struct {
	LogDir      string
	SaveFiles   bool
	ComposeFile string
}

// repetitionKey carries a measurement's repetition index through ctx so
// RunTest can promote logs into a per-repetition subdirectory without
// widening the TestRunner interface shared with single-shot test cases.
type repetitionKey struct{}

// WithRepetition returns a context that tags a RunTest call as repetition n
// of a measurement (1-based), used for the optional "[/<rep>]" segment of
// the promoted log path in spec §4.D.
func WithRepetition(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, repetitionKey{}, n)
}

func repetitionFrom(ctx context.Context) int {
	if n, ok := ctx.Value(repetitionKey{}).(int); ok {
		return n
	}
	return 0
}

// Executor assembles the Subnet Allocator, Process Group Runner, Log
// Collector, and Workspace Manager into the single RunTest operation.
type Executor struct {
	allocator *subnet.Allocator
	runner    *compose.Runner
	collector *logs.Collector
	opts      Options
}

// NewExecutor returns an Executor wired to the given components.
func NewExecutor(allocator *subnet.Allocator, runner *compose.Runner, collector *logs.Collector, opts Options) *Executor {
	return &Executor{allocator: allocator, runner: runner, collector: collector, opts: opts}
}

// RunTest executes one (server, client, test) run per spec §4.F's 12 steps
// and returns the verdict plus, if tc is a Measurement, its numeric sample.
func (e *Executor) RunTest(ctx context.Context, server, client registry.Implementation, factory testcase.Factory) (result.Verdict, *float64, error) {
	sink := logging.NewSink()
	defer sink.Drain()

	// Step 1: allocate subnet + workspace.
	bundle, err := e.allocator.Allocate()
	if err != nil {
		return result.Failed, nil, fmt.Errorf("executor: allocating subnet: %w", err)
	}
	defer e.allocator.Release(bundle.Index)

	ws, err := workspace.New()
	if err != nil {
		return result.Failed, nil, fmt.Errorf("executor: building workspace: %w", err)
	}
	defer ws.Close()

	if err := certs.Generate(ctx, ws.Certs, 1); err != nil {
		return result.Failed, nil, fmt.Errorf("executor: generating cert chain: %w", err)
	}

	// Step 2: instantiate the test case bound to this run's paths.
	tc := factory()
	ep := testcase.Endpoints{
		SimLogDir:        ws.SimLogs,
		ClientKeylogFile: ws.ClientLogs + "/keys.log",
		ServerKeylogFile: ws.ServerLogs + "/keys.log",
		WWWDir:           ws.WWW,
		DownloadDir:      ws.Downloads,
		CertsDir:         ws.Certs,
		ClientTrace:      trace.NoopAnalyzer{},
		ServerTrace:      trace.NoopAnalyzer{},
	}

	// Step 5: pre-fetch generated request artifacts.
	paths, err := tc.GetPaths(ep)
	if err != nil {
		sink.Error(subsystem, err, "generating request artifacts for %s", tc.Name())
		return result.Failed, nil, nil
	}

	// Steps 3-4: build the environment bundle.
	env := e.buildEnv(server, client, tc, bundle, ep, paths)

	// Step 6: invoke the Process Group Runner.
	project := fmt.Sprintf("interop_%s_%s_%s_%d", server.Name, client.Name, tc.Name(), bundle.Index)
	services := append([]string{"sim", "client", "server"}, tc.AdditionalContainers()...)

	composeFile := e.opts.ComposeFile
	if composeFile == "" {
		composeFile = "docker-compose.yml"
	}

	runRes, err := e.runner.Up(ctx, compose.GroupSpec{
		Project:     project,
		Env:         env,
		Services:    services,
		ComposeFile: composeFile,
		Timeout:     time.Duration(tc.Timeout()) * time.Second,
	})
	if err != nil {
		return result.Failed, nil, fmt.Errorf("executor: running group: %w", err)
	}
	if runRes.TimedOut {
		sink.Warn(subsystem, "test %s for %s/%s timed out", tc.Name(), server.Name, client.Name)
	}

	// Step 7: write the captured container stdout, stripped of ANSI escape
	// sequences, to the per-run output log before it is promoted.
	if err := writeOutputLog(ws.OutputWriter(), runRes.Output); err != nil {
		sink.Warn(subsystem, "writing output log: %v", err)
	}

	// Step 8: collect logs.
	for _, role := range []struct{ name, dir string }{
		{"sim", ws.SimLogs}, {"client", ws.ClientLogs}, {"server", ws.ServerLogs},
	} {
		if err := e.collector.Collect(ctx, role.name, role.dir, project); err != nil {
			sink.Warn(subsystem, "log collection for %s failed: %v", role.name, err)
		}
	}

	// Step 9: classify the outcome.
	verdict := classify(runRes.Output, tc, ep)

	// Step 10: promote on terminal verdict.
	if verdict == result.Succeeded || verdict == result.Failed {
		err := ws.Promote(verdict, workspace.PromoteOptions{
			LogDir:     e.opts.LogDir,
			Server:     server.Name,
			Client:     client.Name,
			TestName:   tc.Name(),
			Repetition: repetitionFrom(ctx),
			SaveFiles:  e.opts.SaveFiles,
		})
		if err != nil {
			sink.Error(subsystem, err, "promoting logs for %s/%s/%s", server.Name, client.Name, tc.Name())
		}
	}

	// Step 12: numeric result if this is a Measurement.
	if m, ok := tc.(testcase.Measurement); ok && verdict == result.Succeeded {
		v, err := m.Result()
		if err != nil {
			sink.Error(subsystem, err, "reading measurement result")
			return result.Failed, nil, nil
		}
		return verdict, &v, nil
	}

	return verdict, nil, nil
}

// writeOutputLog strips ANSI escape sequences from captured container stdout
// and writes the result to the per-run output log (spec §3, §9).
func writeOutputLog(w io.Writer, output string) error {
	_, err := io.WriteString(w, logs.StripANSI(output))
	return err
}

func classify(output string, tc testcase.TestCase, ep testcase.Endpoints) result.Verdict {
	if strings.Contains(output, exitedWithCode127) || strings.Contains(output, exitStatus127) {
		return result.Unsupported
	}
	if clientExitedCleanly.MatchString(output) {
		return tc.Check(ep)
	}
	return result.Failed
}

func (e *Executor) buildEnv(server, client registry.Implementation, tc testcase.TestCase, bundle subnet.Bundle, ep testcase.Endpoints, paths []string) map[string]string {
	var reqs []string
	for _, p := range paths {
		reqs = append(reqs, tc.URLPrefix()+p)
	}

	env := map[string]string{
		"CERTS":            ep.CertsDir,
		"WWW":              ep.WWWDir,
		"DOWNLOADS":        ep.DownloadDir,
		"CLIENT_LOGS":      ep.ClientKeylogFile[:len(ep.ClientKeylogFile)-len("/keys.log")],
		"SERVER_LOGS":      ep.ServerKeylogFile[:len(ep.ServerKeylogFile)-len("/keys.log")],
		"TESTCASE_CLIENT":  tc.TestName(),
		"TESTCASE_SERVER":  tc.TestName(),
		"SCENARIO":         tc.Scenario(),
		"REQUESTS":         strings.Join(reqs, " "),
		"CLIENT":           client.Image,
		"SERVER":           server.Image,
		"WAITFORSERVER":    "server:443",
		"SUBNET_V4":        bundle.SubnetV4,
		"SUBNET_V6":        bundle.SubnetV6,
		"CLIENT_V4_ADDR":   bundle.ClientV4Addr,
		"SERVER_V4_ADDR":   bundle.ServerV4Addr,
		"CLIENT_V6_ADDR":   bundle.ClientV6Addr,
		"SERVER_V6_ADDR":   bundle.ServerV6Addr,
	}
	for k, v := range tc.AdditionalEnvs() {
		env[k] = v
	}
	return env
}
