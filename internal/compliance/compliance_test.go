package compliance

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/quic-interop/quic-interop-runner/internal/compose"
	"github.com/quic-interop/quic-interop-runner/internal/registry"
)

func TestRolesForDerivesFromRegistryRole(t *testing.T) {
	both := RolesFor(registry.RoleBoth)
	if !both.AsClient || !both.AsServer {
		t.Fatalf("expected both roles probed for RoleBoth, got %+v", both)
	}

	clientOnly := RolesFor(registry.RoleClient)
	if !clientOnly.AsClient || clientOnly.AsServer {
		t.Fatalf("expected only client role probed for RoleClient, got %+v", clientOnly)
	}

	serverOnly := RolesFor(registry.RoleServer)
	if serverOnly.AsClient || !serverOnly.AsServer {
		t.Fatalf("expected only server role probed for RoleServer, got %+v", serverOnly)
	}
}

func TestIsUnsupportedMatchesBothSentinels(t *testing.T) {
	if !isUnsupported("client_1 exited with code 127") {
		t.Error("expected 'exited with code 127' to match")
	}
	if !isUnsupported("panic: exit status 127") {
		t.Error("expected 'exit status 127' to match")
	}
	if isUnsupported("client_1 exited with code 0") {
		t.Error("did not expect a clean exit to match")
	}
}

func TestRandomTestNameLength(t *testing.T) {
	name := randomTestName(6)
	if len(name) != 6 {
		t.Fatalf("expected length 6, got %d (%q)", len(name), name)
	}
}

func TestIsCompliantMemoizesAcrossCalls(t *testing.T) {
	runner := compose.NewRunner("test_")
	g := NewGate(runner)

	// Seed the cache directly to avoid needing a real docker daemon.
	g.mu.Lock()
	g.cache["quic-go"] = true
	g.mu.Unlock()

	if !g.IsCompliant(context.Background(), "quic-go", "img", Roles{AsClient: true, AsServer: true}) {
		t.Fatal("expected cached verdict true")
	}
}

func TestIsCompliantConcurrentCallsUseCachedVerdict(t *testing.T) {
	runner := compose.NewRunner("test_")
	g := NewGate(runner)

	g.mu.Lock()
	g.cache["impl"] = false
	g.mu.Unlock()

	var calls, compliant int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			atomic.AddInt64(&calls, 1)
			if g.IsCompliant(context.Background(), "impl", "img", Roles{AsClient: true}) {
				atomic.AddInt64(&compliant, 1)
			}
		}()
	}
	wg.Wait()

	if calls != 20 {
		t.Fatalf("expected 20 calls into IsCompliant, got %d", calls)
	}
	if compliant != 0 {
		t.Fatalf("expected every concurrent call to return the cached false verdict, got %d true", compliant)
	}
}
