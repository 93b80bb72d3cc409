package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/mailroom/internal/attachments"
	"github.com/zulandar/mailroom/internal/config"
	"github.com/zulandar/mailroom/internal/db"
	"github.com/zulandar/mailroom/internal/logweb"
	"github.com/zulandar/mailroom/internal/relay"
	"github.com/zulandar/mailroom/internal/relay/discord"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Mailroom bot",
		Long:  "Connects to Discord, migrates the database, and relays messages until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to Mailroom config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	files, err := newFileStore(cfg)
	if err != nil {
		return err
	}

	adapter, err := discord.New(discord.AdapterOpts{Config: cfg})
	if err != nil {
		return err
	}

	daemon, err := relay.NewDaemon(relay.DaemonOpts{
		DB:      gormDB,
		Config:  cfg,
		Adapter: adapter,
		Files:   files,
		Out:     out,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := logweb.Start(ctx, logweb.StartOpts{
			Files: files,
			Port:  cfg.LogServer.Port,
			Out:   out,
		}); err != nil {
			log.Printf("log server: %v", err)
		}
	}()

	return daemon.Run(ctx)
}

// newFileStore builds the attachment store from config. Log transcripts and
// attachment bytes share one backend.
func newFileStore(cfg *config.Config) (attachments.Store, error) {
	switch cfg.Attachments.Backend {
	case config.BackendS3:
		return attachments.NewS3Store(cfg.Attachments.S3)
	default:
		return attachments.NewDiskStore(cfg.Attachments.Dir, cfg.LogServer.BaseURL)
	}
}
