// Package logging provides structured logging for TapGate.
//
// This package wraps the standard library's log/slog with:
//   - Configuration-driven level, format, and output selection
//   - Default service/version attributes on every record
//   - Component-scoped child loggers via With()
//
// Security Considerations:
//   - Derived key material must never be passed to the logger; callers log
//     card UIDs and reader IDs only
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	gwLog := log.With("component", "gateway")
//	gwLog.Info("reader connected", "reader_id", id)
package logging
