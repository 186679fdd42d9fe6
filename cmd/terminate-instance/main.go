package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/scttfrdmn/barkuni/internal/cloud"
	"github.com/scttfrdmn/barkuni/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile   string
	providerType string
	region       string
	dryRun       bool
	logger       *zap.Logger
)

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := newRootCmd().Execute(); err != nil {
		logger.Error("Command execution failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "terminate-instance [instance-id...]",
		Short: "Terminate instances left behind by create-instance",
		Long: `Terminate instances by provider id, for example one that create-instance
reported as still running after a tagging failure or timeout.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE:         terminateInstances,
	}

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path (optional)")
	rootCmd.Flags().StringVar(&providerType, "provider", "", "Provider override: aws, hetzner or digitalocean")
	rootCmd.Flags().StringVar(&region, "region", "", "Region or location override")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be terminated without terminating it")

	return rootCmd
}

func terminateInstances(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("provider") {
		cfg.Provider.Type = providerType
	}

	backend, err := cloud.New(ctx, logger, cfg, region)
	if err != nil {
		return fmt.Errorf("failed to initialize %s provider: %w", cfg.Provider.Type, err)
	}

	logger.Info("Terminate request received",
		zap.String("provider", backend.Name),
		zap.Strings("instance_ids", args),
		zap.Bool("dry_run", dryRun))

	return terminate(ctx, backend.Client, args, dryRun, cmd.OutOrStdout())
}

func terminate(ctx context.Context, client cloud.InstanceClient, ids []string, dryRun bool, out io.Writer) error {
	var failed int
	for _, id := range ids {
		if dryRun {
			snap, err := client.Describe(ctx, id)
			if err != nil {
				logger.Error("Failed to describe instance", zap.String("instance_id", id), zap.Error(err))
				failed++
				continue
			}
			fmt.Fprintf(out, "DRY RUN: would terminate %s (state: %s)\n", id, snap.StateName)
			continue
		}

		if err := client.Terminate(ctx, id); err != nil {
			logger.Error("Failed to terminate instance", zap.String("instance_id", id), zap.Error(err))
			failed++
			continue
		}
		fmt.Fprintf(out, "Terminated %s\n", id)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d instances could not be terminated", failed, len(ids))
	}
	return nil
}
