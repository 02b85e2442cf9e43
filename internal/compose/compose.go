// Package compose implements the Process Group Runner (spec §4.B): it brings
// up a named group of containers via `docker compose`, enforces
// "abort the whole group as soon as any one member exits", waits for
// termination, enforces an external timeout with forced teardown, and
// returns the aggregated output.
//
// The exec.CommandContext + CombinedOutput idiom, and the "the runner never
// raises, callers inspect (output, timedOut, exit status)" contract, are
// grounded on the teacher's internal/containerizer/docker.go DockerRuntime.
// The group-not-single-container shape (a docker-compose project with
// abort-on-first-exit semantics) is grounded on the original implementation's
// docker.py runner and interop.py's per-pair "up -V --abort-on-container-exit"
// invocation.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/quic-interop/quic-interop-runner/pkg/logging"
)

const subsystem = "Compose"

// execCommandContext is a package variable so tests can substitute a fake
// implementation, matching the teacher's execCommandContext seam.
var execCommandContext = exec.CommandContext

// GroupSpec describes one process group to bring up.
type GroupSpec struct {
	// Project is the docker-compose project name. Callers are responsible
	// for making it unique across concurrently running groups, e.g.
	// "interop_<server>_<client>_<testname>_<subnet_index>" or
	// "compliance_<impl>_<subnet_index>" per spec §4.B.
	Project string
	// Env is the environment passed to every service in the group. Compose
	// services pick up host environment variables referenced from the
	// compose file, so these are propagated via the child process's
	// environment rather than a CLI flag (docker compose up has none).
	Env map[string]string
	// Services lists the compose service names to bring up, in the order
	// they should be started (e.g. "sim", "client", "server", ...extras).
	Services []string
	// ComposeFile is the path to the docker-compose.yml describing the
	// services. Required.
	ComposeFile string
	// Timeout bounds how long the group is allowed to run before being
	// force-stopped.
	Timeout time.Duration
}

// Result is the outcome of bringing a group up and waiting for it to
// terminate.
type Result struct {
	// Output is the combined standard output/error of every service in
	// the group, in compose's own interleaved log order.
	Output string
	// TimedOut is true if Timeout elapsed before the group terminated on
	// its own.
	TimedOut bool
	// ExitError is the error returned by `docker compose up`, nil on a
	// clean (zero-exit) abort. Non-nil doesn't necessarily mean the test
	// failed: callers classify Output for the 127/"unsupported" sentinel
	// before treating a non-nil ExitError as a failure.
	ExitError error
}

// Runner wraps the `docker compose` CLI with the project-namespacing and
// abort-on-first-exit semantics the Test Executor and Compliance Gate both
// depend on.
type Runner struct {
	projectPrefix string
}

// NewRunner returns a Runner that prefixes every project name it is given
// with projectPrefix, primarily useful in tests to avoid colliding with a
// developer's own compose projects.
func NewRunner(projectPrefix string) *Runner {
	return &Runner{projectPrefix: projectPrefix}
}

// Up brings group up with "--abort-on-container-exit" semantics: the whole
// group is torn down as soon as any one service exits, the call blocks until
// every service has terminated (or the group's Timeout elapses), and an
// explicit "down" reclaims networks/volumes afterward regardless of outcome.
func (r *Runner) Up(ctx context.Context, group GroupSpec) (Result, error) {
	project := r.projectPrefix + group.Project

	runCtx := ctx
	var cancel context.CancelFunc
	if group.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, group.Timeout)
		defer cancel()
	}

	args := []string{"compose", "-f", group.ComposeFile, "-p", project, "up", "--abort-on-container-exit"}
	args = append(args, group.Services...)

	logging.Debug(subsystem, "starting group %s: docker %s", project, strings.Join(args, " "))

	cmd := execCommandContext(runCtx, "docker", args...)
	base := cmd.Env
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = append(base, sortedEnv(group.Env)...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	timedOut := runCtx.Err() == context.DeadlineExceeded

	r.teardown(ctx, group.ComposeFile, project)

	if timedOut {
		logging.Warn(subsystem, "group %s timed out after %s, forced down", project, group.Timeout)
	} else if runErr != nil {
		logging.Debug(subsystem, "group %s exited: %v", project, runErr)
	}

	return Result{
		Output:    buf.String(),
		TimedOut:  timedOut,
		ExitError: runErr,
	}, nil
}

// sortedEnv renders env as "KEY=VALUE" entries in a deterministic order, so
// identical GroupSpecs always produce the identical process environment.
func sortedEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]string, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return entries
}

// teardown issues an explicit "down" to reclaim networks and volumes, with a
// bounded grace period independent of the caller's context so that teardown
// still runs even if the original context was what timed out.
func (r *Runner) teardown(parent context.Context, composeFile, project string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := execCommandContext(ctx, "docker", "compose", "-f", composeFile, "-p", project, "down", "-v", "--remove-orphans")
	if out, err := cmd.CombinedOutput(); err != nil {
		logging.Warn(subsystem, "teardown of group %s reported an error: %v\n%s", project, err, string(out))
	}
}
