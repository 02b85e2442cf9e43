package testcase

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quic-interop/quic-interop-runner/internal/result"
	"github.com/quic-interop/quic-interop-runner/internal/trace"
	"github.com/quic-interop/quic-interop-runner/pkg/runid"
)

// webtransportBase overrides base's Transport() for every member of the
// WebTransport family (SPEC_FULL §3), grounded on the original
// implementation's TestCaseWebTransport marker base class
// (testcases_webtransport.py).
type webtransportBase struct {
	base
}

func (webtransportBase) Transport() Transport { return TransportWebTransport }

// WebTransportHandshake is the "WH" test case: negotiates one of several
// advertised WebTransport subprotocols and confirms both sides agree on the
// one the client should have preferred, grounded on
// testcases_webtransport.py's TestCaseHandshake.
type WebTransportHandshake struct {
	webtransportBase
	endpoint        string
	clientProtocols []string
	serverProtocols []string
	commonProtocol  string
}

// NewWebTransportHandshake returns a fresh WebTransportHandshake factory
// instance.
func NewWebTransportHandshake() TestCase { return &WebTransportHandshake{} }

func (h *WebTransportHandshake) Name() string         { return "webtransport-handshake" }
func (h *WebTransportHandshake) Abbreviation() string { return "WH" }
func (h *WebTransportHandshake) Desc() string         { return "A WebTransport session negotiates one shared subprotocol." }
func (h *WebTransportHandshake) TestName() string     { return h.Name() }

func (h *WebTransportHandshake) GetPaths(ep Endpoints) ([]string, error) {
	h.endpoint = runid.Slug()
	if err := os.MkdirAll(filepath.Join(ep.ServerWWWDir(), h.endpoint), 0o755); err != nil {
		return nil, fmt.Errorf("testcase: creating webtransport endpoint dir: %w", err)
	}
	return []string{h.endpoint}, nil
}

// AdditionalEnvs advertises 5 subprotocols per side with exactly two shared
// between them at distinct positions, so a deterministic "first protocol
// the client offers that the server also supports" exists to check
// negotiation against, mirroring the original's additional_envs.
func (h *WebTransportHandshake) AdditionalEnvs() map[string]string {
	const n = 5
	clientProtocols := make([]string, n)
	serverProtocols := make([]string, n)
	for i := 0; i < n; i++ {
		clientProtocols[i] = runid.Slug()
		serverProtocols[i] = runid.Slug()
	}

	positions := rand.Perm(n)[:2]
	sort.Ints(positions)
	shared0, shared1 := runid.Slug(), runid.Slug()
	clientProtocols[positions[0]], clientProtocols[positions[1]] = shared0, shared1
	serverProtocols[positions[0]], serverProtocols[positions[1]] = shared1, shared0

	h.clientProtocols = clientProtocols
	h.serverProtocols = serverProtocols
	h.commonProtocol = firstCommonProtocol(clientProtocols, serverProtocols)

	return map[string]string{
		"PROTOCOLS_CLIENT": strings.Join(clientProtocols, " "),
		"PROTOCOLS_SERVER": strings.Join(serverProtocols, " "),
	}
}

func (h *WebTransportHandshake) Check(ep Endpoints) result.Verdict {
	n, err := ep.ClientTrace.Count(trace.DirectionAll, trace.PacketTypeHandshake)
	if err != nil || n != 1 {
		return result.Failed
	}

	clientProto, err := readTrimmed(filepath.Join(ep.ClientDownloadDir(), "negotiated_protocol.txt"))
	if err != nil || clientProto != h.commonProtocol {
		return result.Failed
	}
	serverProto, err := readTrimmed(filepath.Join(ep.ServerDownloadDir(), "negotiated_protocol.txt"))
	if err != nil || serverProto != h.commonProtocol {
		return result.Failed
	}
	return result.Succeeded
}

func firstCommonProtocol(preferred, available []string) string {
	want := make(map[string]bool, len(available))
	for _, p := range available {
		want[p] = true
	}
	for _, p := range preferred {
		if want[p] {
			return p
		}
	}
	return ""
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WebTransportTransfer is the parameterized "WxR"/"WxS" family: a file (or,
// for datagrams, a burst of small ones) flows over one of unidirectional
// streams, bidirectional streams, or datagrams, in either direction,
// grounded on testcases_webtransport.py's TestCaseTransfer and its six
// concrete subclasses.
type WebTransportTransfer struct {
	webtransportBase
	streamType string // "unidirectional" | "bidirectional" | "datagram"
	direction  string // "receive" | "send"
	endpoint   string
	files      []string
}

func newWebTransportTransfer(streamType, direction string) *WebTransportTransfer {
	return &WebTransportTransfer{streamType: streamType, direction: direction}
}

// NewWebTransportTransferUnidirectionalReceive: server sends over
// unidirectional streams, client receives.
func NewWebTransportTransferUnidirectionalReceive() TestCase {
	return newWebTransportTransfer("unidirectional", "receive")
}

// NewWebTransportTransferUnidirectionalSend: client sends over
// unidirectional streams, server receives.
func NewWebTransportTransferUnidirectionalSend() TestCase {
	return newWebTransportTransfer("unidirectional", "send")
}

// NewWebTransportTransferBidirectionalReceive: server sends over
// bidirectional streams, client receives.
func NewWebTransportTransferBidirectionalReceive() TestCase {
	return newWebTransportTransfer("bidirectional", "receive")
}

// NewWebTransportTransferBidirectionalSend: client sends over
// bidirectional streams, server receives.
func NewWebTransportTransferBidirectionalSend() TestCase {
	return newWebTransportTransfer("bidirectional", "send")
}

// NewWebTransportTransferDatagramReceive: server sends a burst of datagrams,
// client receives.
func NewWebTransportTransferDatagramReceive() TestCase {
	return newWebTransportTransfer("datagram", "receive")
}

// NewWebTransportTransferDatagramSend: client sends a burst of datagrams,
// server receives.
func NewWebTransportTransferDatagramSend() TestCase {
	return newWebTransportTransfer("datagram", "send")
}

func (t *WebTransportTransfer) Name() string {
	return fmt.Sprintf("webtransport-transfer-%s-%s", t.streamType, t.direction)
}

func (t *WebTransportTransfer) Abbreviation() string {
	streamLetter := "U"
	switch t.streamType {
	case "bidirectional":
		streamLetter = "B"
	case "datagram":
		streamLetter = "D"
	}
	directionLetter := "R"
	if t.direction == "send" {
		directionLetter = "S"
	}
	return "W" + streamLetter + directionLetter
}

func (t *WebTransportTransfer) Desc() string {
	who := "Server sends data to client"
	if t.direction == "send" {
		who = "Client sends data to server"
	}
	if t.streamType == "datagram" {
		return who + " using datagrams."
	}
	return fmt.Sprintf("%s using %s streams.", who, t.streamType)
}

func (t *WebTransportTransfer) TestName() string { return t.Name() }

func (t *WebTransportTransfer) transferSizes() []int {
	if t.streamType == "datagram" {
		sizes := make([]int, 200)
		for i := range sizes {
			sizes[i] = 600 + 2*i
		}
		return sizes
	}
	return []int{100 * kb, 500 * kb, 250 * kb, 1 * mb, 2 * mb}
}

// sourceWWWDir is the side that publishes the transferred files: the server
// for a "receive" test (the client receives), the client for a "send" test.
func (t *WebTransportTransfer) sourceWWWDir(ep Endpoints) string {
	if t.direction == "receive" {
		return ep.ServerWWWDir()
	}
	return ep.ClientWWWDir()
}

func (t *WebTransportTransfer) downloadDir(ep Endpoints) string {
	if t.direction == "receive" {
		return ep.ClientDownloadDir()
	}
	return ep.ServerDownloadDir()
}

func (t *WebTransportTransfer) GetPaths(ep Endpoints) ([]string, error) {
	t.endpoint = runid.Slug()
	sourceDir := filepath.Join(t.sourceWWWDir(ep), t.endpoint)
	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		return nil, fmt.Errorf("testcase: creating webtransport session dir: %w", err)
	}

	var paths []string
	for i, size := range t.transferSizes() {
		name, err := GenerateRandomFile(sourceDir, size, fmt.Sprintf("transfer-%d", i))
		if err != nil {
			return nil, err
		}
		t.files = append(t.files, name)
		paths = append(paths, t.endpoint+"/"+name)
	}
	return paths, nil
}

func (t *WebTransportTransfer) AdditionalEnvs() map[string]string {
	protocol := runid.Slug()
	return map[string]string{
		"PROTOCOLS_CLIENT": protocol,
		"PROTOCOLS_SERVER": protocol,
	}
}

func (t *WebTransportTransfer) Check(ep Endpoints) result.Verdict {
	n, err := ep.ClientTrace.Count(trace.DirectionAll, trace.PacketTypeHandshake)
	if err != nil || n != 1 {
		return result.Failed
	}

	sourceDir := filepath.Join(t.sourceWWWDir(ep), t.endpoint)
	downloadDir := filepath.Join(t.downloadDir(ep), t.endpoint)
	if !VerifyDownloads(sourceDir, downloadDir, t.files) {
		return result.Failed
	}
	return result.Succeeded
}

// WebTransportCatalogue returns a fresh Factory for every built-in
// WebTransport test case, in a stable order.
func WebTransportCatalogue() []Factory {
	return []Factory{
		NewWebTransportHandshake,
		NewWebTransportTransferUnidirectionalReceive,
		NewWebTransportTransferUnidirectionalSend,
		NewWebTransportTransferBidirectionalReceive,
		NewWebTransportTransferBidirectionalSend,
		NewWebTransportTransferDatagramReceive,
		NewWebTransportTransferDatagramSend,
	}
}
