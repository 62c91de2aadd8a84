// Package log provides structured protocol event logging for duet.
//
// Transport components emit Event values describing datagrams, probes,
// acknowledgments, state changes and errors. Applications choose where
// events go by supplying a Logger implementation:
//
//   - NoopLogger discards everything (the default).
//   - FileLogger appends CBOR-encoded events to a file.
//   - SlogAdapter forwards events to a standard library slog.Logger.
//   - MultiLogger fans out to several loggers at once.
//
// Files written by FileLogger can be read back with Reader, optionally
// filtered by connection, direction, layer, category or time range.
package log
