// Package preflight verifies the filesystem state a launch depends on before
// any process is started.
//
// Checks cover directory access for the project, state, data, and cache
// locations, and the presence of the Python entry scripts named in the
// preprocess and app commands. Results are plain values so `stormview doctor`
// can render them alongside the binary checks from package deps.
package preflight
