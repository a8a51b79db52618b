package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/dispute-retrieval/internal/bootstrap"
	"github.com/kirillkom/dispute-retrieval/internal/cli"
	"github.com/kirillkom/dispute-retrieval/internal/config"
	"github.com/kirillkom/dispute-retrieval/internal/observability/logging"
)

const serviceName = "retrievalctl"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context) (cli.Services, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return cli.Services{}, nil, err
		}
		// Tables go to stdout; keep diagnostics apart.
		logger := logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel)
		app, err := bootstrap.New(ctx, cfg, logger, serviceName)
		if err != nil {
			return cli.Services{}, nil, err
		}
		return cli.Services{Retrieval: app.Retrieval, Agencies: app.Retrieval}, app.Close, nil
	})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
