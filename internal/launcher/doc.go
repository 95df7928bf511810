// Package launcher prepares the project environment and starts the Streamlit
// application.
//
// A launch is a strictly linear sequence: make sure the preprocessed dataset
// exists (running the preprocessing program when it does not), clear the
// framework cache directories on a best-effort basis, then run the app in the
// foreground until it exits. The app launch is always the last step and is
// attempted exactly once, unless a fail-fast preprocessing failure aborts the
// sequence first.
//
// Process execution, cache removal, and console progress are injected so the
// sequence can be exercised without spawning real programs.
package launcher
