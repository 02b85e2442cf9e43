// Package workspace implements the Workspace Manager (spec §4.D): it creates
// the six ephemeral directories and output log file a single run needs, and
// on a terminal verdict promotes the relevant subset into the persistent log
// tree before tearing the temporary directory down.
//
// Directory lifecycle (create-then-guaranteed-release via defer, os.MkdirTemp
// as the backing primitive) is grounded on the teacher's
// internal/testing/muster_manager.go NewMusterInstanceManagerWithConfig,
// which creates a temp dir per instance and removes it on DestroyInstance.
// The promoted log tree layout (<log_dir>/<server>_<client>/<testname>/...)
// is grounded on the original implementation's interop.py, which moves
// server/client/sim log dirs into that same shape on success or failure.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/quic-interop/quic-interop-runner/internal/result"
	"github.com/quic-interop/quic-interop-runner/pkg/logging"
)

const subsystem = "Workspace"

// Workspace holds the ephemeral directories and output log for one run.
type Workspace struct {
	root string

	SimLogs    string
	ServerLogs string
	ClientLogs string
	WWW        string
	Downloads  string
	Certs      string

	outputPath string
	outputFile *os.File
}

// New creates the six ephemeral directories and the output log file under a
// fresh temporary root.
func New() (*Workspace, error) {
	root, err := os.MkdirTemp("", "interop-run-*")
	if err != nil {
		return nil, fmt.Errorf("workspace: creating temp root: %w", err)
	}

	w := &Workspace{
		root:       root,
		SimLogs:    filepath.Join(root, "sim_logs"),
		ServerLogs: filepath.Join(root, "server_logs"),
		ClientLogs: filepath.Join(root, "client_logs"),
		WWW:        filepath.Join(root, "www"),
		Downloads:  filepath.Join(root, "downloads"),
		Certs:      filepath.Join(root, "certs"),
		outputPath: filepath.Join(root, "output.txt"),
	}

	for _, dir := range []string{w.SimLogs, w.ServerLogs, w.ClientLogs, w.WWW, w.Downloads, w.Certs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("workspace: creating %s: %w", dir, err)
		}
	}

	f, err := os.Create(w.outputPath)
	if err != nil {
		os.RemoveAll(root)
		return nil, fmt.Errorf("workspace: creating output log: %w", err)
	}
	w.outputFile = f

	return w, nil
}

// OutputWriter returns the writer for the per-run structured output log.
func (w *Workspace) OutputWriter() io.Writer {
	return w.outputFile
}

// PromoteOptions controls what Promote preserves beyond the mandatory log
// directories.
type PromoteOptions struct {
	LogDir     string
	Server     string
	Client     string
	TestName   string
	Repetition int // 0 means "no repetition subdirectory"
	SaveFiles  bool
}

// Promote copies the server/client/sim log directories and the output log
// into <LogDir>/<Server>_<Client>/<TestName>[/<Repetition>]/..., called only
// for a terminal verdict of succeeded or failed, before Close releases the
// temporary root. If SaveFiles is set and verdict is failed, www and
// downloads are additionally preserved.
func (w *Workspace) Promote(verdict result.Verdict, opts PromoteOptions) error {
	if verdict != result.Succeeded && verdict != result.Failed {
		return fmt.Errorf("workspace: Promote called with non-terminal verdict %q", verdict)
	}

	dest := filepath.Join(opts.LogDir, opts.Server+"_"+opts.Client, opts.TestName)
	if opts.Repetition > 0 {
		dest = filepath.Join(dest, fmt.Sprintf("%d", opts.Repetition))
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("workspace: creating promotion target %s: %w", dest, err)
	}

	if err := copyTree(w.ServerLogs, filepath.Join(dest, "server")); err != nil {
		return err
	}
	if err := copyTree(w.ClientLogs, filepath.Join(dest, "client")); err != nil {
		return err
	}
	if err := copyTree(w.SimLogs, filepath.Join(dest, "sim")); err != nil {
		return err
	}

	if err := w.outputFile.Sync(); err != nil {
		logging.Warn(subsystem, "failed to sync output log before promotion: %v", err)
	}
	if err := copyFile(w.outputPath, filepath.Join(dest, "output.txt")); err != nil {
		return err
	}

	if opts.SaveFiles && verdict == result.Failed {
		if err := copyTree(w.WWW, filepath.Join(dest, "www")); err != nil {
			return err
		}
		if err := copyTree(w.Downloads, filepath.Join(dest, "downloads")); err != nil {
			return err
		}
	}

	return nil
}

// Close releases the ephemeral directories. Safe to call after Promote, or
// on any exit path (success, failure, panic, timeout) without a prior
// Promote call — callers should defer Close immediately after New succeeds.
func (w *Workspace) Close() {
	if w.outputFile != nil {
		w.outputFile.Close()
	}
	if err := os.RemoveAll(w.root); err != nil {
		logging.Warn(subsystem, "failed to remove workspace root %s: %v", w.root, err)
	}
}

func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("workspace: reading %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("workspace: creating %s: %w", dst, err)
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("workspace: opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("workspace: creating %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("workspace: copying %s to %s: %w", src, dst, err)
	}
	return nil
}
