package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/danmuck/rosctl/internal/config"
	"github.com/danmuck/rosctl/internal/logging"
	"github.com/danmuck/rosctl/internal/observability"
	"github.com/danmuck/rosctl/internal/poller"
	"github.com/danmuck/rosctl/internal/server"
)

func main() {
	configPath := flag.String("config", "config.toml", "service config path")
	routersPath := flag.String("routers", "", "router inventory path (overrides routers_file)")
	template := flag.String("template", "", "write a config template instead of running: service|routers")
	output := flag.String("output", "", "output path for -template")
	force := flag.Bool("force", false, "overwrite an existing template output")
	validate := flag.Bool("validate", false, "validate config and router inventory, then exit")
	flag.Parse()

	logging.ConfigureRuntime()

	if *template != "" {
		if err := writeTemplate(*template, *output, *force); err != nil {
			fmt.Fprintf(os.Stderr, "rosctl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, *routersPath, *validate); err != nil {
		fmt.Fprintf(os.Stderr, "rosctl: %v\n", err)
		os.Exit(1)
	}
}

func writeTemplate(kind, output string, force bool) error {
	if output == "" {
		output = kind + ".toml"
		if kind == "service" {
			output = "config.toml"
		}
	}
	if err := config.WriteTemplate(output, kind, force); err != nil {
		return err
	}
	logging.Infof("rosctl wrote template kind=%s path=%q", kind, output)
	return nil
}

func run(configPath, routersPath string, validateOnly bool) error {
	cfg, err := loadServiceConfig(configPath)
	if err != nil {
		return err
	}
	if routersPath != "" {
		cfg.RoutersFile = routersPath
	}
	inventory, err := config.LoadRoutersConfig(cfg.RoutersFile)
	if err != nil {
		return err
	}
	cfg.Poller.Routers = config.PollerRouters(inventory.Routers)

	p, err := poller.New(cfg.Poller, poller.WithMetrics(observability.NewPollerMetrics()))
	if err != nil {
		return err
	}
	if validateOnly {
		logging.Infof("rosctl config valid path=%q routers=%d", configPath, len(cfg.Poller.Routers))
		return nil
	}

	observability.InitLogger(cfg.Server.Name)
	srv := server.New(cfg.Server, p.Store())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Infof("rosctl starting name=%q routers=%d interval=%s", cfg.Server.Name, len(cfg.Poller.Routers), cfg.Poller.Interval)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error { return srv.Serve(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Infof("rosctl stopped")
	return nil
}
