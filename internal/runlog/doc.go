// Package runlog persists a ledger of launches in SQLite.
//
// Each launch gets a row when it starts and is completed when the application
// exits (or the launch aborts), recording whether preprocessing ran and how
// both processes exited. The ledger is advisory: callers should log and
// continue when it is unavailable rather than refuse to launch.
package runlog
