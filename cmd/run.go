package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/quic-interop/quic-interop-runner/internal/compliance"
	"github.com/quic-interop/quic-interop-runner/internal/compose"
	"github.com/quic-interop/quic-interop-runner/internal/harness"
	"github.com/quic-interop/quic-interop-runner/internal/logs"
	"github.com/quic-interop/quic-interop-runner/internal/matrix"
	"github.com/quic-interop/quic-interop-runner/internal/measurement"
	"github.com/quic-interop/quic-interop-runner/internal/registry"
	"github.com/quic-interop/quic-interop-runner/internal/report"
	"github.com/quic-interop/quic-interop-runner/internal/result"
	"github.com/quic-interop/quic-interop-runner/internal/schedule"
	"github.com/quic-interop/quic-interop-runner/internal/subnet"
	"github.com/quic-interop/quic-interop-runner/internal/testcase"
	"github.com/quic-interop/quic-interop-runner/pkg/logging"
)

// Selection sentinels for --tests (spec §6).
const (
	sentinelOnlyTests        = "onlyTests"
	sentinelOnlyMeasurements = "onlyMeasurements"
)

// runFlags holds every flag bound by newRunCmd, following the teacher's
// package-level flag-variable convention.
var runFlags struct {
	implementations  string
	servers          []string
	clients          []string
	tests            []string
	replace          []string
	logDir           string
	saveFiles        bool
	jsonPath         string
	markdown         bool
	mustInclude      string
	noAutoUnsupported []string
	parallelism      int
	composeFile      string
	verbose          bool
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the interoperability and performance test matrix",
		Long: `run loads an implementation registry, enumerates (client, server) pairs,
screens each pair with the compliance gate, fans tests out to a bounded worker
pool, runs measurements serially per pair, then post-processes and reports the
resulting matrix.`,
		RunE: runRun,
	}

	f := cmd.Flags()
	f.StringVarP(&runFlags.implementations, "implementations", "i", "implementations.json", "path to the implementation registry (JSON or YAML)")
	f.StringSliceVarP(&runFlags.servers, "servers", "s", nil, "comma-separated server implementation names (default: every registered server)")
	f.StringSliceVarP(&runFlags.clients, "clients", "c", nil, "comma-separated client implementation names (default: every registered client)")
	f.StringSliceVarP(&runFlags.tests, "tests", "t", nil, "comma-separated test/measurement abbreviations, or the sentinels onlyTests/onlyMeasurements (default: run everything)")
	f.StringArrayVarP(&runFlags.replace, "replace", "r", nil, "override an implementation's image as name=image; may be repeated")
	f.StringVarP(&runFlags.logDir, "log-dir", "l", "logs", "directory the persistent per-run log tree is written under")
	f.BoolVar(&runFlags.saveFiles, "save-files", false, "preserve www/downloads for failed tests alongside their logs")
	f.StringVarP(&runFlags.jsonPath, "json", "j", "", "path to write the machine-readable aggregate JSON report (skipped if empty)")
	f.BoolVar(&runFlags.markdown, "markdown", false, "render the matrix as Markdown instead of a box-drawn table")
	f.StringVar(&runFlags.mustInclude, "must-include", "", "only run pairs where this implementation appears as client or server")
	f.StringSliceVar(&runFlags.noAutoUnsupported, "no-auto-unsupported", nil, "implementation names exempted from the matrix post-processor's auto-downgrade rule")
	f.IntVarP(&runFlags.parallelism, "parallelism", "p", 0, "worker pool size per pair; <= 0 means all cores")
	f.StringVar(&runFlags.composeFile, "compose-file", "docker-compose.yml", "docker-compose file describing the sim/client/server services")
	f.BoolVarP(&runFlags.verbose, "verbose", "v", false, "enable debug-level logging")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if runFlags.verbose {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := registry.Load(runFlags.implementations)
	if err != nil {
		return err
	}
	if err := reg.Override(runFlags.replace); err != nil {
		return err
	}

	serverNames := runFlags.servers
	if len(serverNames) == 0 {
		serverNames = reg.Names(registry.RoleServer)
	}
	clientNames := runFlags.clients
	if len(clientNames) == 0 {
		clientNames = reg.Names(registry.RoleClient)
	}
	sort.Strings(serverNames)
	sort.Strings(clientNames)

	pairs, err := reg.Pairs(serverNames, clientNames)
	if err != nil {
		return err
	}
	if runFlags.mustInclude != "" {
		pairs = filterMustInclude(pairs, runFlags.mustInclude)
	}

	tests, measurements := selectCatalogue(runFlags.tests)

	if err := os.MkdirAll(runFlags.logDir, 0o755); err != nil {
		return fmt.Errorf("interop: creating log directory: %w", err)
	}

	allocator := subnet.NewAllocator()
	runner := compose.NewRunner("")
	collector := logs.NewCollector()
	executor := harness.NewExecutor(allocator, runner, collector, harness.Options{
		LogDir:      runFlags.logDir,
		SaveFiles:   runFlags.saveFiles,
		ComposeFile: runFlags.composeFile,
	})
	driver := measurement.Driver{Executor: executor}
	scheduler := schedule.NewScheduler(resolveParallelism(runFlags.parallelism))
	gate := compliance.NewGate(runner)

	mx := matrix.New()
	var measurementCells []report.MeasurementCell
	urls := make(map[string]string)

	start := time.Now()

	var sp *spinner.Spinner
	if isInteractive(cmd) {
		sp = spinner.New(spinner.CharSets[11], 100*time.Millisecond)
		sp.Start()
		defer sp.Stop()
	}

	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}

		urls[pair.Client.Name] = pair.Client.URL
		urls[pair.Server.Name] = pair.Server.URL

		if sp != nil {
			sp.Suffix = fmt.Sprintf(" %s (server) / %s (client)", pair.Server.Name, pair.Client.Name)
		}

		if !gate.IsCompliant(ctx, pair.Server.Name, pair.Server.Image, compliance.RolesFor(pair.Server.Role)) {
			logging.Info("Run", "skipping pair %s/%s: server not compliant", pair.Server.Name, pair.Client.Name)
			continue
		}
		if !gate.IsCompliant(ctx, pair.Client.Name, pair.Client.Image, compliance.RolesFor(pair.Client.Role)) {
			logging.Info("Run", "skipping pair %s/%s: client not compliant", pair.Server.Name, pair.Client.Name)
			continue
		}

		outcome := scheduler.RunPair(ctx, executor, driver, pair.Server, pair.Client, tests, measurements)
		for _, t := range outcome.Tests {
			mx.Set(pair.Server.Name, pair.Client.Name, t.Name, t.Verdict)
		}
		for _, m := range outcome.Measurements {
			measurementCells = append(measurementCells, report.MeasurementCell{
				Server: pair.Server.Name, Client: pair.Client.Name, Name: m.Name,
				Result: m.Outcome.Verdict, Details: m.Outcome.Details,
			})
		}
	}

	if ctx.Err() != nil {
		logging.Warn("Run", "interrupted: skipping post-processing and export")
		return nil
	}

	noAuto := toSet(runFlags.noAutoUnsupported)
	mx.PostProcess(noAuto, noAuto)

	end := time.Now()

	testMeta := make(map[string]report.TestMeta, len(tests))
	for _, factory := range tests {
		tc := factory()
		testMeta[tc.Abbreviation()] = report.TestMeta{Name: tc.Name(), Desc: tc.Desc()}
	}

	summary := report.Summary{
		StartTime:    start,
		EndTime:      end,
		LogDir:       runFlags.logDir,
		Servers:      serverNames,
		Clients:      clientNames,
		URLs:         urls,
		Tests:        testMeta,
		QUICVersion:  testcase.QUICVersion,
		Matrix:       mx,
		Measurements: measurementCells,
	}

	reporter := report.NewReporter()
	fmt.Fprint(cmd.OutOrStdout(), reporter.RenderTable(summary, runFlags.markdown))

	if runFlags.jsonPath != "" {
		f, err := os.Create(runFlags.jsonPath)
		if err != nil {
			return fmt.Errorf("interop: creating JSON report: %w", err)
		}
		defer f.Close()
		if err := reporter.ExportJSON(f, summary); err != nil {
			logging.Error("Run", err, "exporting JSON report")
		}
	}

	failed := countFailed(mx, measurementCells)
	if failed > 0 {
		return &failedCountError{count: failed}
	}
	return nil
}

// filterMustInclude keeps only pairs where name appears as either side.
func filterMustInclude(pairs []registry.Pair, name string) []registry.Pair {
	var out []registry.Pair
	for _, p := range pairs {
		if p.Client.Name == name || p.Server.Name == name {
			out = append(out, p)
		}
	}
	return out
}

// selectCatalogue resolves the --tests flag into concrete test and
// measurement factory lists, honoring the onlyTests/onlyMeasurements
// sentinels alongside an explicit abbreviation list, per spec §6.
func selectCatalogue(selectors []string) ([]testcase.Factory, []testcase.MeasurementFactory) {
	allTests := testcase.Catalogue()
	allMeasurements := testcase.MeasurementCatalogue()

	if len(selectors) == 0 {
		return allTests, allMeasurements
	}

	selected := toSet(selectors)
	if selected[sentinelOnlyTests] {
		return allTests, nil
	}
	if selected[sentinelOnlyMeasurements] {
		return nil, allMeasurements
	}

	var tests []testcase.Factory
	for _, f := range allTests {
		if selected[f().Abbreviation()] {
			tests = append(tests, f)
		}
	}
	var measurements []testcase.MeasurementFactory
	for _, f := range allMeasurements {
		if selected[f().Abbreviation()] {
			measurements = append(measurements, f)
		}
	}
	return tests, measurements
}

func resolveParallelism(p int) int {
	if p <= 0 {
		return runtime.NumCPU()
	}
	return p
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.TrimSpace(item)] = true
	}
	return set
}

func countFailed(mx *matrix.Matrix, measurements []report.MeasurementCell) int {
	failed := 0
	for _, server := range mx.Servers() {
		for _, client := range mx.Clients() {
			for _, test := range mx.Tests() {
				if v, ok := mx.Get(server, client, test); ok && v == result.Failed {
					failed++
				}
			}
		}
	}
	for _, m := range measurements {
		if m.Result == result.Failed {
			failed++
		}
	}
	return failed
}

func isInteractive(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
