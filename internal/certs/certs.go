// Package certs shells out to the opaque certs.sh cert-chain generator. Per
// spec §5 Non-goals, this module does not itself generate certificates: it
// only invokes an external script and surfaces its success/failure, exactly
// as the original implementation's generate_cert_chain (testcase.py) does
// with `./certs.sh <directory> <length>`.
package certs

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/quic-interop/quic-interop-runner/pkg/logging"
)

const subsystem = "Certs"

var execCommandContext = exec.CommandContext

// ScriptPath is the location of the cert-chain generation script, relative
// to the process working directory, matching the original's "./certs.sh".
var ScriptPath = "./certs.sh"

// Generate invokes certs.sh to populate directory with a certificate chain
// of the given length (1 for a single leaf cert, >1 for an intermediate
// chain).
func Generate(ctx context.Context, directory string, length int) error {
	cmd := execCommandContext(ctx, ScriptPath, directory, fmt.Sprintf("%d", length))
	out, err := cmd.CombinedOutput()
	logging.Debug(subsystem, "%s", string(out))
	if err != nil {
		return fmt.Errorf("certs: generating chain in %s: %w", directory, err)
	}
	return nil
}
