// Package compliance implements the Compliance Gate (spec §4.E): it probes
// each implementation once per role with a bogus test name and verifies the
// container group reports exit code 127, memoizing the verdict so that a
// long-running scheduler never re-probes the same (impl, role) pair twice.
//
// The probe shape (random 6-letter TESTCASE, inspect combined output for the
// 127 sentinel, cache per implementation name) is grounded directly on the
// original implementation's interop.py::_check_impl_is_compliant. The
// memoization itself is generalized from the teacher's compliance-probe-like
// caching need onto golang.org/x/sync/singleflight, collapsing concurrent
// callers racing to probe the same implementation into a single in-flight
// call instead of a plain map+mutex.
package compliance

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quic-interop/quic-interop-runner/internal/compose"
	"github.com/quic-interop/quic-interop-runner/internal/registry"
	"github.com/quic-interop/quic-interop-runner/pkg/logging"
)

const subsystem = "Compliance"

const (
	exitedWithCode127 = "exited with code 127"
	exitStatus127     = "exit status 127"
)

// Roles is the pair of booleans a probe needs to run, one per side an
// implementation can play.
type Roles struct {
	AsClient bool
	AsServer bool
}

// RolesFor derives the roles to probe from an implementation's advertised
// registry.Role, per the open question in spec §9: probe both roles that
// the implementation advertises.
func RolesFor(role registry.Role) Roles {
	return Roles{
		AsClient: role.CanServe(registry.RoleClient),
		AsServer: role.CanServe(registry.RoleServer),
	}
}

// Gate probes implementations for compliance and memoizes the verdict for
// the lifetime of the process, per spec's invariant "an implementation is
// probed for compliance at most once per role per process lifetime."
type Gate struct {
	runner *compose.Runner
	group  singleflight.Group

	mu    sync.Mutex
	cache map[string]bool
}

// NewGate returns a Gate that issues its probe container groups through
// runner.
func NewGate(runner *compose.Runner) *Gate {
	return &Gate{runner: runner, cache: make(map[string]bool)}
}

// IsCompliant probes name (backed by image) for both roles it advertises in
// roles, returning true only if every advertised role passes. The first
// probe outcome per (name) is memoized; later calls are answered from cache
// without touching the container runtime.
func (g *Gate) IsCompliant(ctx context.Context, name, image string, roles Roles) bool {
	v, _, _ := g.group.Do(name, func() (interface{}, error) {
		g.mu.Lock()
		if cached, ok := g.cache[name]; ok {
			g.mu.Unlock()
			return cached, nil
		}
		g.mu.Unlock()

		ok := true
		if roles.AsClient {
			ok = ok && g.probe(ctx, name, image, "client")
		}
		if roles.AsServer {
			ok = ok && g.probe(ctx, name, image, "server")
		}

		g.mu.Lock()
		g.cache[name] = ok
		g.mu.Unlock()
		return ok, nil
	})
	return v.(bool)
}

func (g *Gate) probe(ctx context.Context, name, image, role string) bool {
	logging.Debug(subsystem, "checking compliance of %s as %s", name, role)

	project := fmt.Sprintf("compliance_%s", name)
	env := map[string]string{
		"TESTCASE": randomTestName(6),
	}
	if role == "client" {
		env["CLIENT"] = image
	} else {
		env["SERVER"] = image
	}

	res, err := g.runner.Up(ctx, compose.GroupSpec{
		Project:     project,
		Env:         env,
		Services:    []string{"sim", role},
		ComposeFile: "docker-compose.yml",
		Timeout:     30 * time.Second,
	})
	if err != nil {
		logging.Warn(subsystem, "%s probe for %s errored: %v", role, name, err)
		return false
	}

	if !isUnsupported(res.Output) {
		logging.Info(subsystem, "%s %s not compliant", name, role)
		return false
	}
	logging.Debug(subsystem, "%s %s compliant", name, role)
	return true
}

func isUnsupported(output string) bool {
	return strings.Contains(output, exitedWithCode127) || strings.Contains(output, exitStatus127)
}

func randomTestName(length int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, length)
	randBytes := make([]byte, length)
	rand.Read(randBytes)
	for i, b := range randBytes {
		buf[i] = letters[int(b)%len(letters)]
	}
	return string(buf)
}
