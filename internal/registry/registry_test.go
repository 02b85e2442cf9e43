package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "impls.json", `{
		"quic-go": {"image": "martenseemann/quic-go-interop:latest", "url": "https://github.com/quic-go/quic-go", "role": "both"},
		"nginx": {"image": "nginx/nginx-quic-qns:latest", "url": "https://nginx.org", "role": "server"}
	}`)

	reg, err := Load(path)
	require.NoError(t, err)

	impl, ok := reg.Get("quic-go")
	require.True(t, ok, "expected quic-go to be registered")
	assert.Equal(t, RoleBoth, impl.Role)
	assert.Equal(t, "martenseemann/quic-go-interop:latest", impl.Image)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "impls.yaml", "quic-go:\n  image: quic-go-interop:latest\n  url: https://example.com\n  role: both\n")

	reg, err := Load(path)
	require.NoError(t, err)

	_, ok := reg.Get("quic-go")
	assert.True(t, ok, "expected quic-go to be registered from YAML")
}

func TestLoadRejectsInvalidRole(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{"x": {"image": "img", "url": "u", "role": "bogus"}}`)

	_, err := Load(path)
	assert.Error(t, err, "expected error for invalid role")
}

func TestNamesFiltersByRole(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "impls.json", `{
		"both-impl": {"image": "a", "url": "", "role": "both"},
		"client-only": {"image": "b", "url": "", "role": "client"},
		"server-only": {"image": "c", "url": "", "role": "server"}
	}`)
	reg, err := Load(path)
	require.NoError(t, err)

	servers := reg.Names(RoleServer)
	assert.Contains(t, servers, "both-impl")
	assert.Contains(t, servers, "server-only")
	assert.NotContains(t, servers, "client-only")

	clients := reg.Names(RoleClient)
	assert.Contains(t, clients, "both-impl")
	assert.Contains(t, clients, "client-only")
	assert.NotContains(t, clients, "server-only")
}

func TestOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "impls.json", `{"quic-go": {"image": "old:latest", "url": "", "role": "both"}}`)
	reg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, reg.Override([]string{"quic-go=new:latest"}))
	impl, _ := reg.Get("quic-go")
	assert.Equal(t, "new:latest", impl.Image)
}

func TestOverrideUnknownImplementation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "impls.json", `{"quic-go": {"image": "old:latest", "url": "", "role": "both"}}`)
	reg, err := Load(path)
	require.NoError(t, err)

	assert.Error(t, reg.Override([]string{"unknown=img"}))
}

func TestOverrideInvalidFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "impls.json", `{"quic-go": {"image": "old:latest", "url": "", "role": "both"}}`)
	reg, err := Load(path)
	require.NoError(t, err)

	assert.Error(t, reg.Override([]string{"no-equals-sign"}))
}

func TestPairsEnforcesRole(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "impls.json", `{
		"both-impl": {"image": "a", "url": "", "role": "both"},
		"client-only": {"image": "b", "url": "", "role": "client"},
		"server-only": {"image": "c", "url": "", "role": "server"}
	}`)
	reg, err := Load(path)
	require.NoError(t, err)

	pairs, err := reg.Pairs([]string{"server-only", "both-impl"}, []string{"client-only"})
	require.NoError(t, err)
	assert.Len(t, pairs, 2)

	_, err = reg.Pairs([]string{"client-only"}, []string{"client-only"})
	assert.Error(t, err, "expected error: client-only cannot serve as server")

	_, err = reg.Pairs([]string{"server-only"}, []string{"server-only"})
	assert.Error(t, err, "expected error: server-only cannot serve as client")

	_, err = reg.Pairs([]string{"missing"}, []string{"both-impl"})
	assert.Error(t, err, "expected error for unknown server name")
}
