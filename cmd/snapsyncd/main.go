// Command snapsyncd runs the snapsync upload daemon in the foreground.
package main

import (
	"context"
	"flag"
	"log"

	"snapsync/internal/config"
	"snapsync/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Path to the configuration file")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("snapsyncd: %v", err)
	}
}
