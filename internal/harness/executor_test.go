package harness

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/quic-interop/quic-interop-runner/internal/registry"
	"github.com/quic-interop/quic-interop-runner/internal/result"
	"github.com/quic-interop/quic-interop-runner/internal/subnet"
	"github.com/quic-interop/quic-interop-runner/internal/testcase"
	"github.com/quic-interop/quic-interop-runner/internal/trace"
	"github.com/quic-interop/quic-interop-runner/internal/workspace"
)

func TestClassifyUnsupported(t *testing.T) {
	got := classify("client_1 exited with code 127", testcase.NewHandshake(), testcase.Endpoints{})
	if got != result.Unsupported {
		t.Fatalf("expected unsupported, got %v", got)
	}
}

func TestClassifyFailedWithoutCleanClientExit(t *testing.T) {
	got := classify("server_1 exited with code 1", testcase.NewHandshake(), testcase.Endpoints{})
	if got != result.Failed {
		t.Fatalf("expected failed, got %v", got)
	}
}

func TestClassifyInvokesCheckOnCleanExit(t *testing.T) {
	dir := t.TempDir()
	ep := testcase.Endpoints{
		WWWDir:      dir,
		DownloadDir: t.TempDir(),
		ClientTrace: trace.NoopAnalyzer{},
		ServerTrace: trace.NoopAnalyzer{},
	}
	h := testcase.NewHandshake()
	files, err := h.GetPaths(ep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			t.Fatalf("reading generated file: %v", err)
		}
		if err := os.WriteFile(filepath.Join(ep.DownloadDir, f), data, 0o644); err != nil {
			t.Fatalf("writing download: %v", err)
		}
	}

	got := classify("client_1 exited with code 0", h, ep)
	if got != result.Succeeded {
		t.Fatalf("expected succeeded, got %v", got)
	}
}

func TestBuildEnvIncludesSubnetAndRequests(t *testing.T) {
	e := &Executor{}
	server := registry.Implementation{Name: "quic-go", Image: "server-img"}
	client := registry.Implementation{Name: "quicly", Image: "client-img"}
	tc := testcase.NewHandshake()
	bundle := subnet.Bundle{Index: 3, SubnetV4: "10.3", ClientV4Addr: "10.3.10.10", ServerV4Addr: "10.3.222.222"}
	ep := testcase.Endpoints{
		CertsDir:         "/certs",
		WWWDir:           "/www",
		DownloadDir:      "/downloads",
		ClientKeylogFile: "/client/keys.log",
		ServerKeylogFile: "/server/keys.log",
	}

	env := e.buildEnv(server, client, tc, bundle, ep, []string{"a.bin"})
	if env["CLIENT"] != "client-img" || env["SERVER"] != "server-img" {
		t.Fatalf("unexpected image env: %+v", env)
	}
	if env["SUBNET_V4"] != "10.3" {
		t.Fatalf("expected subnet env, got %+v", env)
	}
	if env["REQUESTS"] != tc.URLPrefix()+"a.bin" {
		t.Fatalf("unexpected REQUESTS: %q", env["REQUESTS"])
	}
	if env["WAITFORSERVER"] != "server:443" {
		t.Fatalf("unexpected WAITFORSERVER: %q", env["WAITFORSERVER"])
	}
}

func TestWriteOutputLogStripsANSIBeforeWriting(t *testing.T) {
	var buf bytes.Buffer
	raw := "\x1b[32mclient_1 exited with code 0\x1b[0m\n"

	if err := writeOutputLog(&buf, raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := buf.String(); got != "client_1 exited with code 0\n" {
		t.Fatalf("expected ANSI-stripped output, got %q", got)
	}
}

func TestWriteOutputLogToWorkspaceIsPromotedStripped(t *testing.T) {
	ws, err := workspace.New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ws.Close()

	raw := "\x1b[31mserver_1 exited with code 1\x1b[0m\n"
	if err := writeOutputLog(ws.OutputWriter(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logDir := t.TempDir()
	if err := ws.Promote(result.Failed, workspace.PromoteOptions{
		LogDir:   logDir,
		Server:   "quic-go",
		Client:   "quicly",
		TestName: "handshake",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(logDir, "quic-go_quicly", "handshake", "output.txt"))
	if err != nil {
		t.Fatalf("reading promoted output.txt: %v", err)
	}
	if string(data) != "server_1 exited with code 1\n" {
		t.Fatalf("expected promoted output.txt to contain stripped output, got %q", data)
	}
}

func TestRepetitionFromContextDefaultsToZero(t *testing.T) {
	if got := repetitionFrom(context.Background()); got != 0 {
		t.Fatalf("expected 0 for an untagged context, got %d", got)
	}
	ctx := WithRepetition(context.Background(), 3)
	if got := repetitionFrom(ctx); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}
