package config

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:    "warn",
		LogFormat:   "text",
		TargetsFile: "bullseye.hcl",
		Shell:       "sh",
	}
}
