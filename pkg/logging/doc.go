// Package logging provides structured logging for the interop runner, built on
// Go's standard log/slog package.
//
// Components log through the package-level Debug/Info/Warn/Error functions,
// each tagged with a subsystem name (e.g. "Compose", "Subnet", "Matrix").
// Because many test runs execute concurrently, their log output would
// otherwise interleave on the shared console. Sink buffers records for one
// run: the Test Executor creates a Sink at the start of each RunTest call,
// logs its run-level records through it, and calls Sink.Drain when the run
// returns, replaying the buffered records in order at their original
// severity. Records logged through the package functions (by the compose
// runner, log collector, compliance gate and others) are not buffered.
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("Subnet", "allocated index %d", idx)
//
//	sink := logging.NewSink()
//	sink.Debug("Compose", "starting group %s", project)
//	// ... the run logs through sink ...
//	sink.Drain()
package logging
