package sender

import (
	"time"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/queue/file"
)

type Config struct {
	Logger Logger

	// SendInterval sets the flush period used by Run.
	SendInterval time.Duration
	// SendLimit caps how many events leave the pools per flush.
	// A negative limit drains everything.
	SendLimit int

	// UseMemoryFallback keeps events in memory when the spool
	// directory is unusable. Events held this way do not survive
	// a restart.
	UseMemoryFallback bool

	SpoolDir        string
	SpoolMaxHistory int

	// Dumper receives batches that failed to reach the database.
	Dumper actionpipe.Dumper

	ShowSuccessfulInfo bool
}

var ConfigDefault = Config{
	SendInterval:      5 * time.Second,
	SendLimit:         1000,
	UseMemoryFallback: true,
	SpoolDir:          file.ConfigDefault.Workspace,
	SpoolMaxHistory:   file.ConfigDefault.MaxHistory,
	Dumper:            &actionpipe.NullDumper{},
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return ConfigDefault
	}

	cfg := config[0]

	if cfg.SendInterval <= 0 {
		cfg.SendInterval = ConfigDefault.SendInterval
	}

	if cfg.SendLimit == 0 {
		cfg.SendLimit = ConfigDefault.SendLimit
	}

	if cfg.SpoolDir == "" {
		cfg.SpoolDir = ConfigDefault.SpoolDir
	}

	if cfg.SpoolMaxHistory <= 0 {
		cfg.SpoolMaxHistory = ConfigDefault.SpoolMaxHistory
	}

	if cfg.Dumper == nil {
		cfg.Dumper = ConfigDefault.Dumper
	}

	return cfg
}
