// Package testcase defines the TestCase/Measurement capability set (spec
// §3) and a small set of shared helpers every built-in test case uses:
// random file generation for transfer tests, downloaded-file verification,
// and templated additional environment entries.
//
// The interface shape (name/abbreviation/desc/testname/scenario/timeout/
// urlprefix/getPaths/check) and the file-generation/verification helpers are
// translated directly from the original implementation's testcase.py
// (TestCase, generate_cert_chain, _generate_random_file, _check_files).
// Templated additional_envs is grounded on the teacher's internal/template
// engine, generalized from muster's sprig-backed `{{ .var }}` substitution.
package testcase

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/quic-interop/quic-interop-runner/internal/result"
	"github.com/quic-interop/quic-interop-runner/internal/trace"
)

// QUICVersion is the draft/RFC version string advertised by the harness,
// matching the original's QUIC_VERSION = hex(0x1).
const QUICVersion = "0x1"

// Transport distinguishes plain QUIC test cases from the WebTransport
// family (SPEC_FULL §3 supplemental feature).
type Transport string

const (
	TransportQUIC        Transport = "quic"
	TransportWebTransport Transport = "webtransport"
)

// Endpoints carries the addressing and filesystem context a TestCase needs
// to build its environment and to inspect captured artifacts, assembled by
// the Test Executor from the Subnet Allocator and Workspace Manager.
type Endpoints struct {
	SimLogDir         string
	ClientKeylogFile  string
	ServerKeylogFile  string
	WWWDir            string
	DownloadDir       string
	CertsDir          string
	ClientTrace       trace.Analyzer
	ServerTrace       trace.Analyzer
}

// ServerWWWDir and ClientWWWDir split WWWDir into the per-side document
// roots the WebTransport test family needs (either side may publish files
// the other side requests), matching the original implementation's
// server_www_dir()/client_www_dir() split.
func (e Endpoints) ServerWWWDir() string { return filepath.Join(e.WWWDir, "server") }
func (e Endpoints) ClientWWWDir() string { return filepath.Join(e.WWWDir, "client") }

// ServerDownloadDir and ClientDownloadDir are the per-side counterparts of
// ServerWWWDir/ClientWWWDir for files the opposite side downloaded.
func (e Endpoints) ServerDownloadDir() string { return filepath.Join(e.DownloadDir, "server") }
func (e Endpoints) ClientDownloadDir() string { return filepath.Join(e.DownloadDir, "client") }

// TestCase is the capability set every test advertises, per spec §3.
type TestCase interface {
	Name() string
	Abbreviation() string
	Desc() string
	Transport() Transport

	// TestName is the per-role wire name passed to the implementation via
	// TESTCASE_CLIENT/TESTCASE_SERVER. Defaults to Name() for most cases;
	// the "goodput" measurement passes "transfer" instead.
	TestName() string

	Scenario() string
	Timeout() int
	URLPrefix() string
	AdditionalEnvs() map[string]string
	AdditionalContainers() []string

	// GetPaths populates ep.WWWDir with request targets and returns their
	// path components.
	GetPaths(ep Endpoints) ([]string, error)

	// Check inspects the endpoints' output (downloaded files, traces) and
	// reports the verdict. A missing-file error becomes result.Failed,
	// never a Go error, per spec §4.F step 9.
	Check(ep Endpoints) result.Verdict
}

// Measurement is a TestCase that additionally yields a numeric sample.
type Measurement interface {
	TestCase
	Unit() string
	Repetitions() int
	Result() (float64, error)
}

// Factory constructs a fresh TestCase instance bound to one run's Endpoints.
type Factory func() TestCase

// MeasurementFactory constructs a fresh Measurement instance.
type MeasurementFactory func() Measurement

// RenderEnv expands sprig-enabled {{ }} templates in raw's values against
// data, used for entries like IPERF_CONGESTION={{ .Congestion | default "cubic" }}.
func RenderEnv(raw map[string]string, data map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		tmpl, err := template.New(k).Funcs(sprig.TxtFuncMap()).Parse(v)
		if err != nil {
			return nil, fmt.Errorf("testcase: parsing template for %s: %w", k, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("testcase: rendering template for %s: %w", k, err)
		}
		out[k] = buf.String()
	}
	return out, nil
}

// GenerateRandomFile writes a pseudo-random file of size bytes into dir and
// returns its basename, matching the original's _generate_random_file
// (AES-OFB keystream over a zero plaintext, here via crypto/rand directly
// since Go has no equivalent benchmark pressure toward a stream cipher).
func GenerateRandomFile(dir string, size int, name string) (string, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("testcase: creating random file: %w", err)
	}
	defer f.Close()

	if _, err := io.CopyN(f, rand.Reader, int64(size)); err != nil {
		return "", fmt.Errorf("testcase: writing random file: %w", err)
	}
	return name, nil
}

// VerifyDownloads reports whether every file in wantFiles exists in
// downloadDir with byte-identical content to its counterpart in wwwDir,
// translating the original's _check_files: unexpected extra files and
// missing files are both failures.
func VerifyDownloads(wwwDir, downloadDir string, wantFiles []string) bool {
	if len(wantFiles) == 0 {
		return false
	}

	entries, err := os.ReadDir(downloadDir)
	if err != nil {
		return false
	}
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			present[e.Name()] = true
		}
	}

	for _, name := range wantFiles {
		if !present[name] {
			return false
		}
		if !filesEqual(filepath.Join(wwwDir, name), filepath.Join(downloadDir, name)) {
			return false
		}
	}
	// Any downloaded file not in wantFiles is unexpected.
	for name := range present {
		found := false
		for _, w := range wantFiles {
			if w == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func filesEqual(a, b string) bool {
	da, err := os.ReadFile(a)
	if err != nil {
		return false
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false
	}
	return bytes.Equal(da, db)
}
