package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/quic-interop/quic-interop-runner/internal/matrix"
	"github.com/quic-interop/quic-interop-runner/internal/result"
)

func buildSummary() Summary {
	m := matrix.New()
	m.Set("quic-go", "quicly", "handshake", result.Succeeded)
	m.Set("quic-go", "quant", "handshake", result.Failed)

	return Summary{
		StartTime:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC),
		LogDir:      "/tmp/logs",
		Servers:     []string{"quic-go"},
		Clients:     []string{"quicly", "quant"},
		URLs:        map[string]string{"quic-go": "https://example.com"},
		Tests:       map[string]TestMeta{"H": {Name: "handshake", Desc: "basic handshake"}},
		QUICVersion: "0x1",
		Matrix:      m,
		Measurements: []MeasurementCell{
			{Server: "quic-go", Client: "quicly", Name: "goodput", Result: result.Succeeded, Details: "100 (± 5) kbps"},
		},
	}
}

func TestRenderTableIncludesTestName(t *testing.T) {
	r := NewReporter()
	out := r.RenderTable(buildSummary(), false)
	if !strings.Contains(out, "handshake (H)") {
		t.Fatalf("expected table to include test name/abbr header, got:\n%s", out)
	}
}

func TestRenderTableMarkdownUsesPipes(t *testing.T) {
	r := NewReporter()
	out := r.RenderTable(buildSummary(), true)
	if !strings.Contains(out, "|") {
		t.Fatalf("expected markdown table to use pipe delimiters, got:\n%s", out)
	}
}

func buildMultiTestSummary() Summary {
	m := matrix.New()
	m.Set("quic-go", "quicly", "handshake", result.Succeeded)
	m.Set("quic-go", "quicly", "transfer", result.Succeeded)
	m.Set("quic-go", "quicly", "retry", result.Failed)

	return Summary{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC),
		Servers:   []string{"quic-go"},
		Clients:   []string{"quicly"},
		Tests: map[string]TestMeta{
			"S":  {Name: "retry"},
			"H":  {Name: "handshake"},
			"DC": {Name: "transfer"},
		},
		Matrix: m,
	}
}

func TestExportJSONResultsAreOrderedDeterministically(t *testing.T) {
	r := NewReporter()

	var first, second bytes.Buffer
	s := buildMultiTestSummary()
	if err := r.ExportJSON(&first, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.ExportJSON(&second, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.String() != second.String() {
		t.Fatalf("expected byte-identical JSON across repeated exports of the same summary:\n%s\n---\n%s", first.String(), second.String())
	}

	var decoded struct {
		Results [][]jsonResultCell `json:"results"`
	}
	if err := json.Unmarshal(first.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Results) != 1 || len(decoded.Results[0]) != 3 {
		t.Fatalf("expected one row of 3 result cells, got %+v", decoded.Results)
	}
	got := []string{decoded.Results[0][0].Abbr, decoded.Results[0][1].Abbr, decoded.Results[0][2].Abbr}
	want := []string{"DC", "H", "S"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected abbreviations sorted as %v, got %v", want, got)
		}
	}
}

func TestExportJSONRoundTrips(t *testing.T) {
	r := NewReporter()
	var buf bytes.Buffer
	if err := r.ExportJSON(&buf, buildSummary()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if decoded["quic_version"] != "0x1" {
		t.Fatalf("expected quic_version 0x1, got %v", decoded["quic_version"])
	}
	if decoded["log_dir"] != "/tmp/logs" {
		t.Fatalf("expected log_dir, got %v", decoded["log_dir"])
	}
	tests, ok := decoded["tests"].(map[string]interface{})
	if !ok || tests["H"] == nil {
		t.Fatalf("expected tests.H entry, got %v", decoded["tests"])
	}
}
