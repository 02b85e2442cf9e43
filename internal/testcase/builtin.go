package testcase

import (
	"fmt"
	"time"

	"github.com/quic-interop/quic-interop-runner/internal/result"
	"github.com/quic-interop/quic-interop-runner/internal/trace"
)

const (
	kb = 1 << 10
	mb = 1 << 20
)

// base carries the fields every built-in test case shares, mirroring the
// original's TestCase abstract base (testcase.py): default scenario,
// timeout, URL prefix, and empty additional envs/containers unless
// overridden.
type base struct {
	files []string
}

func (base) Scenario() string              { return "simple-p2p --delay=15ms --bandwidth=10Mbps --queue=25" }
func (base) Timeout() int                  { return 60 }
func (base) URLPrefix() string             { return "https://server4:443/" }
func (base) AdditionalEnvs() map[string]string { return nil }
func (base) AdditionalContainers() []string    { return nil }
func (base) Transport() Transport          { return TransportQUIC }

// Handshake is the "H" test case: a single small request over a fresh
// connection, grounded on testcases.py's TestCaseHandshake. Check verifies
// the download and that the client trace shows no Retry packet; the number
// of handshakes is not counted.
type Handshake struct {
	base
}

// NewHandshake returns a fresh Handshake factory instance.
func NewHandshake() TestCase { return &Handshake{} }

func (h *Handshake) Name() string         { return "handshake" }
func (h *Handshake) Abbreviation() string { return "H" }
func (h *Handshake) Desc() string {
	return "A client handshakes with a server new to it, then sends a small request."
}
func (h *Handshake) TestName() string { return h.Name() }

func (h *Handshake) GetPaths(ep Endpoints) ([]string, error) {
	name, err := GenerateRandomFile(ep.WWWDir, kb, "handshake-payload")
	if err != nil {
		return nil, err
	}
	h.files = []string{name}
	return h.files, nil
}

func (h *Handshake) Check(ep Endpoints) result.Verdict {
	if !VerifyDownloads(ep.WWWDir, ep.DownloadDir, h.files) {
		return result.Failed
	}
	retries, err := ep.ClientTrace.Count(trace.DirectionFromServer, trace.PacketTypeRetry)
	if err != nil || retries > 0 {
		return result.Failed
	}
	return result.Succeeded
}

// Transfer is the "DC" test case: three request sizes transferred over one
// connection, grounded on testcases.py's TestCaseTransfer.
type Transfer struct {
	base
}

// NewTransfer returns a fresh Transfer factory instance.
func NewTransfer() TestCase { return &Transfer{} }

func (tc *Transfer) Name() string         { return "transfer" }
func (tc *Transfer) Abbreviation() string { return "DC" }
func (tc *Transfer) Desc() string {
	return "A client transfers several files over a single connection."
}
func (tc *Transfer) TestName() string { return tc.Name() }

func (tc *Transfer) GetPaths(ep Endpoints) ([]string, error) {
	sizes := []int{2 * mb, 3 * mb, 5 * mb}
	var files []string
	for i, size := range sizes {
		name, err := GenerateRandomFile(ep.WWWDir, size, fmt.Sprintf("transfer-%d", i))
		if err != nil {
			return nil, err
		}
		files = append(files, name)
	}
	tc.files = files
	return tc.files, nil
}

func (tc *Transfer) Check(ep Endpoints) result.Verdict {
	if !VerifyDownloads(ep.WWWDir, ep.DownloadDir, tc.files) {
		return result.Failed
	}
	return result.Succeeded
}

// Retry is the "S" test case, grounded on testcases.py's
// TestCaseRetry._check_trace: Check verifies the download and that the
// server trace shows at least one Retry packet. Whether the client's next
// Initial carries the Retry token is not checked.
type Retry struct {
	base
}

// NewRetry returns a fresh Retry factory instance.
func NewRetry() TestCase { return &Retry{} }

func (r *Retry) Name() string         { return "retry" }
func (r *Retry) Abbreviation() string { return "S" }
func (r *Retry) Desc() string {
	return "A client uses the token from a server-sent Retry packet on its next Initial."
}
func (r *Retry) TestName() string { return r.Name() }

func (r *Retry) GetPaths(ep Endpoints) ([]string, error) {
	name, err := GenerateRandomFile(ep.WWWDir, 10*kb, "retry-payload")
	if err != nil {
		return nil, err
	}
	r.files = []string{name}
	return r.files, nil
}

func (r *Retry) Check(ep Endpoints) result.Verdict {
	if !VerifyDownloads(ep.WWWDir, ep.DownloadDir, r.files) {
		return result.Failed
	}
	n, err := ep.ServerTrace.Count(trace.DirectionFromServer, trace.PacketTypeRetry)
	if err != nil || n == 0 {
		return result.Failed
	}
	return result.Succeeded
}

// Goodput is the throughput measurement, grounded on testcases.py's
// MeasurementGoodput: transfer a large file and report kilobits/second.
type Goodput struct {
	base
	fileSize  int
	startedAt time.Time
	elapsed   time.Duration
}

// NewGoodput returns a fresh Goodput measurement factory instance.
func NewGoodput() Measurement { return &Goodput{fileSize: 10 * mb} }

func (g *Goodput) Name() string         { return "goodput" }
func (g *Goodput) Abbreviation() string { return "G" }
func (g *Goodput) Desc() string         { return "Measures bulk transfer throughput." }
func (g *Goodput) TestName() string     { return "transfer" }
func (g *Goodput) Unit() string         { return "kbps" }
func (g *Goodput) Repetitions() int     { return 5 }

func (g *Goodput) GetPaths(ep Endpoints) ([]string, error) {
	name, err := GenerateRandomFile(ep.WWWDir, g.fileSize, "goodput-payload")
	if err != nil {
		return nil, err
	}
	g.files = []string{name}
	g.startedAt = time.Now()
	return g.files, nil
}

func (g *Goodput) Check(ep Endpoints) result.Verdict {
	g.elapsed = time.Since(g.startedAt)
	if !VerifyDownloads(ep.WWWDir, ep.DownloadDir, g.files) {
		return result.Failed
	}
	return result.Succeeded
}

func (g *Goodput) Result() (float64, error) {
	if g.elapsed <= 0 {
		return 0, fmt.Errorf("testcase: goodput measured before a run completed")
	}
	bits := float64(g.fileSize) * 8
	return bits / g.elapsed.Seconds() / 1000, nil
}

// CrossTraffic layers a competing iperf flow on top of Goodput, grounded on
// testcases.py's MeasurementCrossTraffic(MeasurementGoodput), using a
// templated IPERF_CONGESTION additional env (SPEC_FULL §2 domain-stack
// wiring for sprig/text-template).
type CrossTraffic struct {
	Goodput
	Congestion string
}

// NewCrossTraffic returns a fresh CrossTraffic measurement factory instance,
// defaulting to cubic congestion control when Congestion is unset.
func NewCrossTraffic() Measurement {
	return &CrossTraffic{Goodput: Goodput{fileSize: 25 * mb}, Congestion: "cubic"}
}

func (c *CrossTraffic) Name() string         { return "crosstraffic" }
func (c *CrossTraffic) Abbreviation() string { return "C" }
func (c *CrossTraffic) Desc() string {
	return "Measures goodput while a competing iperf flow shares the link."
}
func (c *CrossTraffic) AdditionalContainers() []string { return []string{"iperf_server", "iperf_client"} }

func (c *CrossTraffic) AdditionalEnvs() map[string]string {
	rendered, err := RenderEnv(map[string]string{
		"IPERF_CONGESTION": `{{ .Congestion | default "cubic" }}`,
	}, map[string]string{"Congestion": c.Congestion})
	if err != nil {
		return map[string]string{"IPERF_CONGESTION": "cubic"}
	}
	return rendered
}

// Catalogue returns a fresh Factory for every built-in test case, in a
// stable order, used by the CLI to populate the default --tests selection.
// This includes both the QUIC family and the WebTransport family
// (WebTransportCatalogue).
func Catalogue() []Factory {
	tests := []Factory{
		NewHandshake,
		NewTransfer,
		NewRetry,
	}
	return append(tests, WebTransportCatalogue()...)
}

// MeasurementCatalogue returns a fresh MeasurementFactory for every
// built-in measurement, in a stable order.
func MeasurementCatalogue() []MeasurementFactory {
	return []MeasurementFactory{
		NewGoodput,
		NewCrossTraffic,
	}
}
