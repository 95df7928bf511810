// Package procexec runs external programs in the foreground and reports how
// they exited.
//
// Run blocks until the child exits and returns an ExitStatus instead of an
// error for non-zero exits; only failures to start the process are errors.
// While a child runs, an interactive interrupt is left to reach it through the
// terminal's process group and the launcher keeps waiting, while SIGTERM and
// SIGHUP addressed to the launcher alone are relayed to the child.
package procexec
