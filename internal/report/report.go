// Package report implements the Reporter/Exporter (spec §4.J): a
// human-readable matrix rendering (plain or Markdown) and the
// machine-readable aggregate JSON report.
//
// Table construction is grounded on the teacher's
// internal/formatting/table_formatter.go (github.com/jedib0t/go-pretty/v6
// table+text, StyleRounded, SetOutputMirror+Render), generalized from
// tool/resource listings to the server x client verdict grid, with
// go-pretty/v6/text color wrappers reproducing the original implementation's
// termcolor-colorized _print_results (interop.py) and
// table.RenderMarkdown() backing the --markdown CLI toggle. The JSON schema
// is a direct translation of spec §6's "Persisted state" field list.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/quic-interop/quic-interop-runner/internal/matrix"
	"github.com/quic-interop/quic-interop-runner/internal/result"
)

// TestMeta is the abbreviation/name/description trio advertised by a test
// case, used to populate the JSON report's tests{} map.
type TestMeta struct {
	Name string
	Desc string
}

// MeasurementCell is one measurement outcome for a (server, client) pair.
type MeasurementCell struct {
	Server, Client, Name string
	Result               result.Verdict
	Details               string
}

// Summary is everything the Reporter needs to render a table or export
// JSON, assembled by the caller from the Matrix plus run metadata.
type Summary struct {
	StartTime    time.Time
	EndTime      time.Time
	LogDir       string
	Servers      []string
	Clients      []string
	URLs         map[string]string
	Tests        map[string]TestMeta // keyed by abbreviation
	QUICVersion  string
	QUICDraft    string
	Matrix       *matrix.Matrix
	Measurements []MeasurementCell
}

// Reporter renders a Summary as a table or exports it as JSON.
type Reporter struct{}

// NewReporter returns a ready-to-use Reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// RenderTable renders one table per test abbreviation: rows are servers,
// columns are clients, cells are the verdict symbol colorized by outcome.
// When markdown is true, go-pretty's RenderMarkdown is used instead of the
// default box-drawn style.
func (r *Reporter) RenderTable(s Summary, markdown bool) string {
	var out strings.Builder

	abbrs := make([]string, 0, len(s.Tests))
	for abbr := range s.Tests {
		abbrs = append(abbrs, abbr)
	}
	sort.Strings(abbrs)

	servers := append([]string(nil), s.Servers...)
	clients := append([]string(nil), s.Clients...)
	sort.Strings(servers)
	sort.Strings(clients)

	for _, abbr := range abbrs {
		meta := s.Tests[abbr]
		out.WriteString(fmt.Sprintf("%s (%s)\n", meta.Name, abbr))

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.SetOutputMirror(&out)

		header := table.Row{"server \\ client"}
		for _, c := range clients {
			header = append(header, c)
		}
		t.AppendHeader(header)

		for _, srv := range servers {
			row := table.Row{srv}
			for _, cli := range clients {
				v, ok := s.Matrix.Get(srv, cli, meta.Name)
				row = append(row, colorize(v, ok))
			}
			t.AppendRow(row)
		}

		if markdown {
			out.WriteString(t.RenderMarkdown())
		} else {
			t.Render()
		}
		out.WriteString("\n")
	}

	return out.String()
}

func colorize(v result.Verdict, written bool) string {
	if !written {
		return " "
	}
	switch v {
	case result.Succeeded:
		return text.FgGreen.Sprint(v.Symbol())
	case result.Failed:
		return text.FgRed.Sprint(v.Symbol())
	case result.Unsupported:
		return text.FgYellow.Sprint(v.Symbol())
	default:
		return v.Symbol()
	}
}

// jsonReport is the on-disk shape of the aggregate JSON report (spec §6).
type jsonReport struct {
	StartTime    string                        `json:"start_time"`
	EndTime      string                        `json:"end_time"`
	LogDir       string                        `json:"log_dir"`
	Servers      []string                      `json:"servers"`
	Clients      []string                      `json:"clients"`
	URLs         map[string]string              `json:"urls"`
	Tests        map[string]jsonTestMeta        `json:"tests"`
	QUICVersion  string                        `json:"quic_version"`
	QUICDraft    string                        `json:"quic_draft,omitempty"`
	Results      [][]jsonResultCell            `json:"results"`
	Measurements [][]jsonMeasurementCell       `json:"measurements"`
}

type jsonTestMeta struct {
	Name string `json:"name"`
	Desc string `json:"desc"`
}

type jsonResultCell struct {
	Server, Client, Abbr string
	Result               string
}

type jsonMeasurementCell struct {
	Server, Client, Name string
	Result               string
	Details              string
}

// ExportJSON writes the aggregate report, per spec §6, to w.
func (r *Reporter) ExportJSON(w io.Writer, s Summary) error {
	jr := jsonReport{
		StartTime:   s.StartTime.UTC().Format(time.RFC3339),
		EndTime:     s.EndTime.UTC().Format(time.RFC3339),
		LogDir:      s.LogDir,
		Servers:     s.Servers,
		Clients:     s.Clients,
		URLs:        s.URLs,
		Tests:       make(map[string]jsonTestMeta, len(s.Tests)),
		QUICVersion: s.QUICVersion,
		QUICDraft:   s.QUICDraft,
	}
	abbrs := make([]string, 0, len(s.Tests))
	for abbr, meta := range s.Tests {
		jr.Tests[abbr] = jsonTestMeta{Name: meta.Name, Desc: meta.Desc}
		abbrs = append(abbrs, abbr)
	}
	sort.Strings(abbrs)

	for _, server := range s.Servers {
		var row []jsonResultCell
		for _, client := range s.Clients {
			for _, abbr := range abbrs {
				meta := s.Tests[abbr]
				v, ok := s.Matrix.Get(server, client, meta.Name)
				if !ok {
					continue
				}
				row = append(row, jsonResultCell{Server: server, Client: client, Abbr: abbr, Result: v.String()})
			}
		}
		jr.Results = append(jr.Results, row)
	}

	byPair := make(map[string][]jsonMeasurementCell)
	var order []string
	for _, m := range s.Measurements {
		key := m.Server + "_" + m.Client
		if _, ok := byPair[key]; !ok {
			order = append(order, key)
		}
		byPair[key] = append(byPair[key], jsonMeasurementCell{
			Server: m.Server, Client: m.Client, Name: m.Name,
			Result: m.Result.String(), Details: m.Details,
		})
	}
	for _, key := range order {
		jr.Measurements = append(jr.Measurements, byPair[key])
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}
