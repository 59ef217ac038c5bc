package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abyss-go/abyss"
	"github.com/abyss-go/abyss/example/dnsecho"
	"github.com/abyss-go/abyss/internal/api"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	zonePath   string
	upstream   string
	host       string
	port       int
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.zonePath, "zone", "", "Path to dnsecho zone file (name ttl type addr per line)")
	flag.StringVar(&f.upstream, "upstream", "", "Upstream resolver for names not in the zone (host[:port])")
	flag.StringVar(&f.host, "host", "", "Override bind host")
	flag.IntVar(&f.port, "port", 0, "Override bind port")
	flag.Parse()
	return f
}

func run() error {
	flags := parseFlags()

	cfg, err := abyss.LoadConfig(abyss.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.host != "" {
		cfg.Server.Host = flags.host
	}
	if flags.port != 0 {
		cfg.Server.Port = flags.port
	}

	logger := slog.Default()

	var zone *dnsecho.Zone
	if flags.zonePath != "" {
		zone, err = dnsecho.LoadZoneFile(flags.zonePath)
		if err != nil {
			return fmt.Errorf("load zone: %w", err)
		}
	} else {
		zone = dnsecho.NewZone(nil)
	}
	cfg.Handler = dnsecho.NewHandler(zone, flags.upstream, logger)

	srv := abyss.NewServer()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx, cfg); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv = api.New(cfg, logger, srv)
		go func() {
			if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("management api server failed", "error", err)
			}
		}()
		logger.Info("management api listening", "addr", apiSrv.Addr())
	}

	<-ctx.Done()

	if apiSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("management api shutdown error", "error", err)
		}
	}

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	return nil
}
