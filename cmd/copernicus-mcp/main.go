package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wb1016/copernicus-mcp/internal/cdse"
	"github.com/wb1016/copernicus-mcp/internal/config"
	"github.com/wb1016/copernicus-mcp/internal/downloader"
	"github.com/wb1016/copernicus-mcp/internal/library"
	"github.com/wb1016/copernicus-mcp/internal/logger"
	"github.com/wb1016/copernicus-mcp/internal/scheduler"
	"github.com/wb1016/copernicus-mcp/internal/scheduler/tasks"
	"github.com/wb1016/copernicus-mcp/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	checkOnly := flag.Bool("check", false, "Validate configuration and exit")
	verbose := flag.Bool("verbose", false, "Debug logging")
	debug := flag.Bool("debug", false, "Trace logging")
	flag.Parse()

	if *showVersion {
		fmt.Println("copernicus-mcp " + config.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "copernicus-mcp: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *debug {
		cfg.Logging.Level = "trace"
	}

	if *checkOnly {
		printCheck(cfg)
		return
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("Starting copernicus-mcp")
	if !cfg.HasCredentials() {
		log.Warn().Msg("No Copernicus credentials configured; search works anonymously, download tools will be refused")
	}

	creds := cdse.NewCredentialCache(cdse.CredentialConfig{
		IdentityURL: cfg.API.IdentityURL,
		Username:    cfg.Username,
		Password:    cfg.Password,
		ClientID:    cfg.ClientID,
		Timeout:     cfg.APITimeout(),
	}, log.Logger)
	client := cdse.NewClient(cdse.ClientConfig{
		CatalogURL:  cfg.API.CatalogURL,
		DownloadURL: cfg.API.DownloadURL,
		Timeout:     cfg.APITimeout(),
	}, creds, log.Logger)
	transfer := cdse.NewTransferClient(cdse.TransferConfig{}, log.Logger)
	orch := downloader.New(client, transfer, downloader.Config{
		Concurrency:    cfg.Download.Concurrency,
		MaxConcurrency: cfg.Download.MaxConcurrency,
	}, log.Logger)
	lib := library.NewService(nil, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	if err := tasks.RegisterCleanupTask(sched, lib, cfg.Cleanup, cfg.Download.Dir, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup task")
	}
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	srv := server.New(cfg, client, orch, lib, log.Logger)

	// ServeStdio blocks until the client closes stdin.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server stopped with error")
		} else {
			log.Info().Msg("Client disconnected")
		}
	}

	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("Scheduler shutdown error")
	}
	log.Info().Msg("copernicus-mcp stopped")
}

// printCheck reports the resolved configuration. Load has already
// validated it, so reaching this point means the config file parses and
// the endpoints are consistent.
func printCheck(cfg *config.Config) {
	fmt.Printf("copernicus-mcp %s\n", config.Version)
	fmt.Printf("catalog:      %s\n", cfg.API.CatalogURL)
	fmt.Printf("identity:     %s\n", cfg.API.IdentityURL)
	fmt.Printf("download:     %s\n", cfg.API.DownloadURL)
	fmt.Printf("download dir: %s\n", cfg.Download.Dir)
	if cfg.Cleanup.Enabled {
		cron := cfg.Cleanup.Cron
		if cron == "" {
			cron = "0 3 * * *"
		}
		fmt.Printf("cleanup:      enabled (%s)\n", cron)
	} else {
		fmt.Println("cleanup:      disabled")
	}
	if cfg.HasCredentials() {
		fmt.Println("credentials:  configured")
	} else {
		fmt.Println("credentials:  not set (search only; set COPERNICUS_USERNAME and COPERNICUS_PASSWORD to enable downloads)")
	}
	fmt.Println("configuration OK")
}
