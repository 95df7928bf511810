// Package main hosts the stormview CLI entrypoint and command graph.
//
// The Cobra command tree wraps the launcher sequence (prepare data, reset the
// Streamlit cache, run the app in the foreground) along with the supporting
// commands for inspecting artifacts, clearing caches on demand, reviewing
// launch history, and scaffolding configuration.
//
// Keep this package thin: behaviour lives in the internal packages and the
// commands here only resolve configuration, wire collaborators, and render
// output.
package main
