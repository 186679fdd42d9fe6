package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scttfrdmn/barkuni/internal/cluster"
	"github.com/scttfrdmn/barkuni/internal/config"
	"github.com/scttfrdmn/barkuni/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	addr       string
	kubeconfig string
	namespace  string
	logger     *zap.Logger
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
		logger.Error("Cluster API exited", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cluster-api",
		Short: "Serve a small HTTP API over the cluster's pods",
		Long: `Serve GET /, /health, /pods and /metrics. Pod names come from the
configured namespace (kube-system by default) using in-cluster credentials
when available and a kubeconfig otherwise.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runServer,
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Configuration file path (optional)")
	flags.StringVar(&addr, "addr", "", "Listen address (default from config, 0.0.0.0:5000)")
	flags.StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig when not running in-cluster")
	flags.StringVar(&namespace, "namespace", "", "Namespace to list pods from (default kube-system)")

	return rootCmd
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if l, err := cfg.SetupLogger(); err == nil {
		logger = l
	} else {
		logger.Warn("Using default logger", zap.Error(err))
	}

	srv, err := server.New(logger, podLister(cfg.Cluster), cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flags.Changed("kubeconfig") {
		cfg.Cluster.Kubeconfig = kubeconfig
	}
	if flags.Changed("namespace") {
		cfg.Cluster.Namespace = namespace
	}
	return cfg, nil
}

// podLister resolves cluster credentials once. A failure is logged and served
// back as a 500 from /pods rather than stopping the process.
func podLister(c config.ClusterConfig) server.PodNameLister {
	clientset, err := cluster.NewClientset(c.Kubeconfig)
	if err != nil {
		logger.Error("Failed to resolve cluster credentials", zap.Error(err))
		return server.Unavailable(err)
	}

	lister := cluster.NewPodLister(clientset, c.Namespace)
	logger.Info("Cluster credentials resolved", zap.String("namespace", lister.Namespace()))
	return lister
}
