// Package config loads, normalizes, and validates stormview configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies environment overrides such as
// STORMVIEW_PROJECT_DIR and STREAMLIT_CMD. Relative data and cache paths are
// resolved against the project directory so the launcher never depends on the
// process working directory after load.
//
// Always obtain settings through this package so the launcher receives
// absolute paths, a canonical preprocessing policy, and clear validation errors.
package config
