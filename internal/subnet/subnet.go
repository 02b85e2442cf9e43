// Package subnet implements the Subnet Allocator (spec §4.A): it hands out
// the lowest free non-negative integer index and derives the IPv4/IPv6
// subnet and per-role addresses that index names, guaranteeing concurrent
// runs never collide on docker networks.
//
// The mutex-guarded map and lowest-free-slot search are grounded on the
// teacher's port reservation pattern in
// internal/testing/muster_manager.go (portMu/reservedPorts,
// findAvailablePort/releasePort), generalized here from "first available TCP
// port" to "first available subnet index" since no external resource probe
// is needed: the allocator alone is authoritative over the index space.
package subnet

import (
	"fmt"
	"sync"
)

// Bundle is the set of addresses and network identifiers derived from a
// single allocated index, per spec §4.A.
type Bundle struct {
	Index int

	SubnetV4 string
	SubnetV6 string

	ClientV4Addr string
	ServerV4Addr string
	ClientV6Addr string
	ServerV6Addr string
}

// Allocator hands out unique subnet indices under a single mutex. A released
// index becomes reusable immediately, and the allocator always returns the
// lowest currently-free index so that short-lived runs don't push the index
// space upward without bound.
type Allocator struct {
	mu        sync.Mutex
	allocated map[int]bool
	next      int
}

// NewAllocator returns an empty, ready-to-use Allocator.
func NewAllocator() *Allocator {
	return &Allocator{allocated: make(map[int]bool)}
}

// Allocate reserves and returns the lowest free index along with its derived
// address bundle. The critical section is O(n) in the number of currently
// allocated indices in the worst case, but in practice resolves in a handful
// of iterations from the cached "next candidate" cursor, bounding it to
// microseconds as spec §5 requires.
func (a *Allocator) Allocate() (Bundle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.next
	for a.allocated[idx] {
		idx++
	}
	a.allocated[idx] = true
	a.next = idx + 1

	return bundleFor(idx), nil
}

// Release frees idx, making it available for a future Allocate call.
// Releasing an index that isn't currently allocated is a no-op.
func (a *Allocator) Release(idx int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.allocated[idx] {
		return
	}
	delete(a.allocated, idx)
	if idx < a.next {
		a.next = idx
	}
}

func bundleFor(idx int) Bundle {
	return Bundle{
		Index:        idx,
		SubnetV4:     fmt.Sprintf("10.%d", idx),
		SubnetV6:     fmt.Sprintf("fd00:cafe:%04x", idx),
		ClientV4Addr: fmt.Sprintf("10.%d.10.10", idx),
		ServerV4Addr: fmt.Sprintf("10.%d.222.222", idx),
		ClientV6Addr: fmt.Sprintf("fd00:cafe:%04x:10::10", idx),
		ServerV6Addr: fmt.Sprintf("fd00:cafe:%04x:222::222", idx),
	}
}
