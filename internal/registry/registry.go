// Package registry loads the implementation registry (spec §6): a named set
// of QUIC (and optionally WebTransport) implementations, each carrying a
// container image reference, an informational URL, and a role.
//
// Loading is grounded on the original implementation's implementations.py
// ({name: {image, url, role}} with role as client/server/both), generalized
// to accept either JSON (the original's own format) or YAML (the teacher's
// preferred config format for TestConfiguration-like structs, via
// gopkg.in/yaml.v3), detected by file extension. The `-r/--replace` image
// override is grounded on run.py's replace_arg handling.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role is the set of sides an implementation can play.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
	RoleBoth   Role = "both"
)

func (r Role) valid() bool {
	switch r {
	case RoleClient, RoleServer, RoleBoth:
		return true
	default:
		return false
	}
}

// CanServe reports whether an implementation with this role can play side.
func (r Role) CanServe(side Role) bool {
	if r == RoleBoth {
		return true
	}
	return r == side
}

// Implementation is a single named entry in the registry (spec §3).
type Implementation struct {
	Name  string `json:"-" yaml:"-"`
	Image string `json:"image" yaml:"image"`
	URL   string `json:"url" yaml:"url"`
	Role  Role   `json:"role" yaml:"role"`
}

// Registry is the full set of named implementations for a run.
type Registry struct {
	impls map[string]Implementation
}

// Load reads a registry from path. JSON is used unless the extension is
// .yaml or .yml.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: reading %s: %w", path, err)
	}

	raw := make(map[string]Implementation)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("registry: parsing YAML %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("registry: parsing JSON %s: %w", path, err)
		}
	}

	impls := make(map[string]Implementation, len(raw))
	for name, impl := range raw {
		if !impl.Role.valid() {
			return nil, fmt.Errorf("registry: implementation %q has invalid role %q", name, impl.Role)
		}
		impl.Name = name
		impls[name] = impl
	}
	return &Registry{impls: impls}, nil
}

// Get returns the implementation named name, or false if it isn't registered.
func (r *Registry) Get(name string) (Implementation, bool) {
	impl, ok := r.impls[name]
	return impl, ok
}

// Names returns every registered implementation name able to play side,
// sorted for deterministic iteration.
func (r *Registry) Names(side Role) []string {
	var names []string
	for name, impl := range r.impls {
		if impl.Role.CanServe(side) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Pair is an ordered (client, server) combination selected from a Registry,
// with role compatibility enforced at construction per spec §3.
type Pair struct {
	Client Implementation
	Server Implementation
}

// Pairs builds every (client, server) combination from clientNames and
// serverNames, failing fast if either name is unregistered or cannot play
// the requested side.
func (r *Registry) Pairs(serverNames, clientNames []string) ([]Pair, error) {
	servers := make([]Implementation, 0, len(serverNames))
	for _, name := range serverNames {
		impl, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("registry: unknown server implementation %q", name)
		}
		if !impl.Role.CanServe(RoleServer) {
			return nil, fmt.Errorf("registry: implementation %q cannot act as a server", name)
		}
		servers = append(servers, impl)
	}

	clients := make([]Implementation, 0, len(clientNames))
	for _, name := range clientNames {
		impl, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("registry: unknown client implementation %q", name)
		}
		if !impl.Role.CanServe(RoleClient) {
			return nil, fmt.Errorf("registry: implementation %q cannot act as a client", name)
		}
		clients = append(clients, impl)
	}

	pairs := make([]Pair, 0, len(servers)*len(clients))
	for _, server := range servers {
		for _, client := range clients {
			pairs = append(pairs, Pair{Client: client, Server: server})
		}
	}
	return pairs, nil
}

// Override applies a set of "name=image" pairs (the CLI's -r/--replace
// flag), swapping the image reference for already-registered implementations.
// Overriding an unknown name is a fatal configuration error, matching the
// original's sys.exit("Implementation " + name + " not found.").
func (r *Registry) Override(pairs []string) error {
	for _, pair := range pairs {
		name, image, ok := strings.Cut(pair, "=")
		if !ok || name == "" || image == "" {
			return fmt.Errorf("registry: invalid override %q, expected name=image", pair)
		}
		impl, ok := r.impls[name]
		if !ok {
			return fmt.Errorf("registry: implementation %q not found", name)
		}
		impl.Image = image
		r.impls[name] = impl
	}
	return nil
}
