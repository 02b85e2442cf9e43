// Package matrix implements the Matrix and its Post-Processor (spec §4.I):
// a sparse two-level map from (server, client, test) to result.Verdict,
// plus the global auto-downgrade pass that runs once after every pair has
// completed.
//
// The sparse nested-map shape is grounded on the original implementation's
// interop.py `self.results[server][client][status]` accumulator, translated
// from "bucket of testcases per status" into "verdict per testcase", which
// is the shape spec §3's "Run state" calls for.
package matrix

import (
	"fmt"

	"github.com/quic-interop/quic-interop-runner/internal/result"
)

// cellKey identifies one (server, client, test) cell.
type cellKey struct {
	server, client, test string
}

// Matrix accumulates verdicts across every (server, client, test) triple
// run during the session.
type Matrix struct {
	cells   map[cellKey]result.Verdict
	servers map[string]bool
	clients map[string]bool
	tests   map[string]bool
}

// New returns an empty Matrix.
func New() *Matrix {
	return &Matrix{
		cells:   make(map[cellKey]result.Verdict),
		servers: make(map[string]bool),
		clients: make(map[string]bool),
		tests:   make(map[string]bool),
	}
}

// Set records a verdict for (server, client, test). Per spec's invariant,
// matrix cells become immutable once written except through PostProcess, so
// Set panics if the cell was already written — callers (the Scheduler) must
// partition writes by (server, client, test) so no two concurrent tasks
// write the same cell.
func (m *Matrix) Set(server, client, test string, v result.Verdict) {
	key := cellKey{server, client, test}
	if _, exists := m.cells[key]; exists {
		panic(fmt.Sprintf("matrix: cell (%s,%s,%s) written twice", server, client, test))
	}
	m.cells[key] = v
	m.servers[server] = true
	m.clients[client] = true
	m.tests[test] = true
}

// Get returns the verdict for (server, client, test) and whether it has
// been written.
func (m *Matrix) Get(server, client, test string) (result.Verdict, bool) {
	v, ok := m.cells[cellKey{server, client, test}]
	return v, ok
}

// PostProcess rewrites cells to unsupported where a test failed or was
// unsupported across every peer on one axis, per spec §4.I. excluded names
// on either axis are skipped entirely.
func (m *Matrix) PostProcess(excludedClients, excludedServers map[string]bool) {
	if len(m.clients) > 1 {
		m.downgradeAxis(m.clients, excludedClients, func(peer, test string) []cellKey {
			var keys []cellKey
			for server := range m.servers {
				keys = append(keys, cellKey{server, peer, test})
			}
			return keys
		})
	}
	if len(m.servers) > 1 {
		m.downgradeAxis(m.servers, excludedServers, func(peer, test string) []cellKey {
			var keys []cellKey
			for client := range m.clients {
				keys = append(keys, cellKey{peer, client, test})
			}
			return keys
		})
	}
}

func (m *Matrix) downgradeAxis(members, excluded map[string]bool, keysFor func(peer, test string) []cellKey) {
	for member := range members {
		if excluded[member] {
			continue
		}
		for test := range m.tests {
			keys := keysFor(member, test)
			allFailedOrUnsupported := true
			anyWritten := false
			for _, k := range keys {
				v, ok := m.cells[k]
				if !ok {
					continue
				}
				anyWritten = true
				if v != result.Failed && v != result.Unsupported {
					allFailedOrUnsupported = false
					break
				}
			}
			if anyWritten && allFailedOrUnsupported {
				for _, k := range keys {
					if _, ok := m.cells[k]; ok {
						m.cells[k] = result.Unsupported
					}
				}
			}
		}
	}
}

// Servers returns every server name with at least one recorded cell.
func (m *Matrix) Servers() []string { return keys(m.servers) }

// Clients returns every client name with at least one recorded cell.
func (m *Matrix) Clients() []string { return keys(m.clients) }

// Tests returns every test name with at least one recorded cell.
func (m *Matrix) Tests() []string { return keys(m.tests) }

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
