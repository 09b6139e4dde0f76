// Package logging provides structured logging for the fritzbox tools.
//
// This package wraps a process-wide zap logger with convenience functions.
// Library packages log through it so the CLI can stay silent by default
// while the server logs at info.
//
// # Log Levels
//
//   - Debug: logins, page fetches, raw page dumps
//   - Info: presence transitions, server lifecycle
//   - Warn: failed polls, MQTT reconnects
//   - Error: startup failures
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// An empty level falls back to FRITZBOX_LOG_LEVEL, and to a no-op logger
// when that is unset too. LevelFromVerbosity translates the classic
// --v1/--v2/--v3 switches.
//
// # Secrets
//
// Passwords are never passed to the logger. Session IDs are logged through
// Redact.
package logging
