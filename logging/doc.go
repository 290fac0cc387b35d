// Package logging provides the minimal structured logging interface used across
// kbagent and adapters for log/slog.
//
// The Logger interface defines leveled key/value logging (Debug, Info, Warn,
// Error). This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - New, which builds a JSON or text slog handler from Config
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - LogToolCall / LogModelCall helpers with consistent attribute names
//
// Usage:
//
//	logger := logging.New(logging.Config{Level: logging.LogLevelInfo, Format: "json"})
//	loop := agent.NewLoop(llm, registry, func(o *agent.Options) { o.Logger = logger })
package logging
