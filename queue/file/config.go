package file

// Config defines the config for the file spool.
type Config struct {
	// Workspace is the directory holding spool files.
	Workspace string
	// MaxHistory bounds how many quarantined copies of a corrupt spool file
	// are kept before the oldest is removed.
	MaxHistory int
}

// ConfigDefault is the default config
var ConfigDefault = Config{
	Workspace:  "/tmp",
	MaxHistory: 3,
}

// Helper function to set default values
func configDefault(config ...Config) Config {
	// Return default config if nothing provided
	if len(config) < 1 {
		return ConfigDefault
	}

	// Override default config
	cfg := config[0]

	if cfg.Workspace == "" {
		cfg.Workspace = ConfigDefault.Workspace
	}

	if cfg.MaxHistory == 0 {
		cfg.MaxHistory = ConfigDefault.MaxHistory
	}

	return cfg
}
