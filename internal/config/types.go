package config

// Config holds the runner's settings. Every field can also be set by a CLI
// flag, which takes precedence over the files.
type Config struct {
	Parallel         bool   `json:"parallel"`               // Run independent targets concurrently
	Verbose          bool   `json:"verbose"`                // Show the walk and extra diagnostics
	NoColor          bool   `json:"no_color"`               // Plain output
	SkipDependencies bool   `json:"skip_dependencies"`      // Only run explicitly requested targets
	Host             string `json:"host,omitempty"`         // Force a CI host: "appveyor", "travis", "teamcity"
	LogLevel         string `json:"log_level"`              // "debug", "info", "warn", "error"
	LogFormat        string `json:"log_format"`             // "text" or "json"
	TargetsFile      string `json:"targets_file"`           // HCL file defining targets
	MetricsFile      string `json:"metrics_file,omitempty"` // Prometheus textfile written after each run
	Shell            string `json:"shell"`                  // Program used for `run` strings
}
