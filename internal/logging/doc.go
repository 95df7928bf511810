// Package logging assembles structured slog loggers for the stormview CLI.
//
// It owns the console and JSON handlers, parses level names, fans output to
// stderr plus an optional log file, and exposes attribute helpers and field
// constants so launcher phases emit lines with the same shape. Console output
// colours level labels only when the destination is a terminal.
package logging
