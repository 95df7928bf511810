package config

const (
	// PolicyBestEffort continues to the cache reset and app launch even when
	// preprocessing fails.
	PolicyBestEffort = "best_effort"
	// PolicyFailFast aborts the launch when preprocessing fails.
	PolicyFailFast = "fail_fast"
)

const (
	defaultProjectDir        = "."
	defaultPreprocessedData  = "data/preprocessed/weekly_merged.parquet"
	defaultCacheDir          = ".streamlit/cache"
	defaultStateDir          = "~/.local/share/stormview"
	defaultLockFile          = ".stormview.lock"
	defaultPreprocessCommand = "python3"
	defaultPreprocessScript  = "preprocess_data.py"
	defaultAppCommand        = "streamlit"
	defaultAppEntryPoint     = "streamlit_app.py"
	defaultStopGraceSeconds  = 10
	defaultRunHistoryKeep    = 200
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectDir:       defaultProjectDir,
			PreprocessedData: defaultPreprocessedData,
			CacheDir:         defaultCacheDir,
			StateDir:         defaultStateDir,
			LockFile:         defaultLockFile,
		},
		Preprocess: Preprocess{
			Command: defaultPreprocessCommand,
			Args:    []string{defaultPreprocessScript},
			Policy:  PolicyBestEffort,
		},
		App: App{
			Command:          defaultAppCommand,
			Args:             []string{"run", defaultAppEntryPoint},
			StopGraceSeconds: defaultStopGraceSeconds,
		},
		RunHistory: RunHistory{
			Enabled: true,
			Keep:    defaultRunHistoryKeep,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
