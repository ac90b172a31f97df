package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/gochat-relay/internal/logging"
	"github.com/Tyrowin/gochat-relay/internal/server"
)

func main() {
	cfg, err := server.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	logger.Info("starting chat relay", "port", cfg.Port)

	srv := server.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		runErr = srv.Run(ctx)
	}()

	// The shutdown timeout is applied inside Run; the extra second leaves
	// room for it to report.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout+time.Second,
		map[string]gfshutdown.Operation{
			"relay": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				cancel()
				select {
				case <-done:
					return runErr
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	)

	select {
	case <-done:
		if runErr != nil {
			logger.Error("relay stopped", "err", runErr)
			os.Exit(1)
		}
	case code := <-wait:
		logger.Info("relay exited", "code", code)
		os.Exit(code)
	}
}
