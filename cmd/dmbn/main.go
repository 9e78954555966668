// dmbn runs the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lambdcalculus/dmbn/internal/config"
	"github.com/lambdcalculus/dmbn/internal/server"
	"github.com/lambdcalculus/dmbn/pkg/logger"
)

var (
	configPath string
	host       string
	port       int
	dbPath     string
	level      string
)

func init() {
	pflag.StringVarP(&configPath, "config", "c", "", "path to config.toml (default: config/config.toml next to the executable)")
	pflag.StringVar(&host, "host", "", "overrides the configured host")
	pflag.IntVarP(&port, "port", "p", 0, "overrides the configured TCP port")
	pflag.StringVar(&dbPath, "db", "", "overrides the configured database path")
	pflag.StringVarP(&level, "log-level", "l", "", "overrides the configured log level")
}

func main() {
	pflag.Parse()

	conf, err := config.ReadServer(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v Continuing with defaults and flags.\n", err)
	}
	if host != "" {
		conf.Host = host
	}
	if port > 0 {
		conf.Port = port
	}
	if dbPath != "" {
		conf.DBPath = dbPath
	}
	if level != "" {
		conf.LevelString = level
	}

	lvl, err := logger.ParseLevel(conf.LevelString)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad log level (%v).\n", err)
		os.Exit(1)
	}
	log := logger.NewLoggerOutputs(lvl, nil, conf.LogOutputs...)
	logger.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(log)
	srv.Configure(conf)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server stopped running: %v", err)
		os.Exit(1)
	}
}
