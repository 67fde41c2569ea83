// Command demo runs action detection over a video file or webcam stream:
// persons are detected and tracked, their actions scored by the configured
// model subprocesses, and an annotated video is written to the output path.
// Results can additionally stream to a JSON file, a SQLite database and a
// ClickHouse sink.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/farwydi/actionpipe/config"
)

func main() {
	cfg, err := config.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, cfg); err != nil {
		log.Fatalf("demo failed: %v", err)
	}
}
