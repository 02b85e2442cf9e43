package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quic-interop/quic-interop-runner/internal/result"
)

func TestNewCreatesAllDirectories(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	for _, dir := range []string{w.SimLogs, w.ServerLogs, w.ClientLogs, w.WWW, w.Downloads, w.Certs} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}
}

func TestPromoteRejectsNonTerminalVerdict(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	if err := w.Promote(result.Unsupported, PromoteOptions{LogDir: t.TempDir()}); err == nil {
		t.Fatal("expected error promoting a non-terminal verdict")
	}
}

func TestPromoteCopiesLogsAndOutput(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(w.ServerLogs, "keys.log"), []byte("server-key-data"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := w.OutputWriter().Write([]byte("structured output\n")); err != nil {
		t.Fatalf("writing output: %v", err)
	}

	logDir := t.TempDir()
	err = w.Promote(result.Succeeded, PromoteOptions{
		LogDir:   logDir,
		Server:   "quic-go",
		Client:   "quicly",
		TestName: "handshake",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dest := filepath.Join(logDir, "quic-go_quicly", "handshake")
	if _, err := os.Stat(filepath.Join(dest, "server", "keys.log")); err != nil {
		t.Errorf("expected server logs promoted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "output.txt")); err != nil {
		t.Errorf("expected output.txt promoted: %v", err)
	}
}

func TestPromoteOnlySavesFilesWhenFailedAndRequested(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(w.WWW, "index.html"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	logDir := t.TempDir()
	if err := w.Promote(result.Succeeded, PromoteOptions{
		LogDir: logDir, Server: "a", Client: "b", TestName: "t", SaveFiles: true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(logDir, "a_b", "t", "www")); !os.IsNotExist(err) {
		t.Error("expected www NOT to be preserved on success, even with SaveFiles set")
	}
}

func TestCloseRemovesRoot(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root := w.root
	w.Close()
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("expected workspace root to be removed after Close")
	}
}
