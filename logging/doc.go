// Package logging provides a minimal logging interface and adapters for agentloop.
//
// The Logger interface defines the standard structured logging methods
// (Debug, Info, Warn, Error) that the orchestration loop, tool executor and
// supervisor use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelDebug, "json")
//	loop := agent.NewLoop(cfg, agent.WithLogger(logger))
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
