package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"mediabot/internal/adapters/localstorage"
	"mediabot/internal/adapters/sqlite"
	"mediabot/internal/adapters/ytdlp"
	"mediabot/internal/config"
	"mediabot/internal/service"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	flagConfig string
	flagDebug  bool
)

var (
	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mediabot",
	Short: "Fetch videos and audio from links within a size budget",
	Long: `mediabot resolves a media link, checks its duration and walks a quality
ladder until the file fits the transport size limit. Run it as a Telegram
bot with "serve" or fetch a single link from the terminal.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to config.toml (default: $XDG_CONFIG_HOME/mediabot/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging with file:line")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig merges defaults < config file < environment < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagDebug {
		cfg.Debug = true
	}

	flags := log.LstdFlags
	if cfg.Debug {
		flags |= log.Lshortfile
	}
	logger = log.New(os.Stderr, "", flags)
	return nil
}

// app is the pipeline wired from cfg.
type app struct {
	store        *sqlite.Store
	orchestrator *service.Orchestrator
	housekeeper  *service.Housekeeper
}

func newApp(ctx context.Context) (*app, error) {
	sites, err := config.LoadSites(cfg.SitesFile)
	if err != nil {
		return nil, err
	}
	profiles, err := service.NewProfileResolver(sites)
	if err != nil {
		return nil, fmt.Errorf("building site profiles: %w", err)
	}
	ladders, err := service.NewLadders(cfg.VideoLadder, cfg.AudioLadder)
	if err != nil {
		return nil, fmt.Errorf("building quality ladders: %w", err)
	}

	client := ytdlp.NewClient(cfg.YtdlpPath, logger)
	version, err := client.CheckInstalled(ctx)
	if err != nil {
		return nil, err
	}
	logger.Printf("Using yt-dlp %s", version)

	workspaces, err := localstorage.NewWorkspaces(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	executor := service.NewExecutor(client, workspaces, cfg.TransportSizeLimitBytes, cfg.FetchTimeout(), logger)
	metadata := service.NewMetadataResolver(client, cfg.DurationCeilingSeconds, cfg.MetadataTimeout())

	return &app{
		store:        store,
		orchestrator: service.NewOrchestrator(profiles, metadata, ladders, executor, store, logger),
		housekeeper:  service.NewHousekeeper(store, workspaces, cfg.StaleAfter(), logger),
	}, nil
}

// openStore is for commands that only read or sweep the ledger.
func openStore(ctx context.Context) (*sqlite.Store, *localstorage.Workspaces, error) {
	workspaces, err := localstorage.NewWorkspaces(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	return store, workspaces, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Skip config loading; version must work without a config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mediabot %s\n", Version)
	},
}
