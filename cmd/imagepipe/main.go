// Package main provides the imagepipe CLI, a thin operator tool over the
// optimization pipeline library.
//
// Usage:
//
//	imagepipe optimize photo.jpg https://cdn.example.com/logo.png \
//	    --config config.yaml --hint logo
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/commercekit/imagepipe/internal/cache"
	"github.com/commercekit/imagepipe/internal/config"
	"github.com/commercekit/imagepipe/internal/loader"
	"github.com/commercekit/imagepipe/internal/logging"
	"github.com/commercekit/imagepipe/internal/optimize"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "imagepipe",
		Short:         "Adaptive image optimization pipeline for order PDF imagery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newOptimizeCmd())
	return root
}

func newOptimizeCmd() *cobra.Command {
	var (
		configPath string
		hint       string
		noCache    bool
	)

	cmd := &cobra.Command{
		Use:   "optimize <ref>...",
		Short: "Optimize one or more image references and print result stats",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runOptimize(ctx, configPath, hint, noCache, args)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&hint, "hint", "", "content-type hint applied to every ref (text|logo|graphics|photo)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the reuse cache")
	return cmd
}

func runOptimize(ctx context.Context, configPath, hint string, noCache bool, refs []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg := logging.NewDefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	log, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	store := config.NewStore(cfg, configPath, log.Underlying())
	if configPath != "" {
		go func() { _ = store.Watch(ctx) }()
	}

	var resultCache optimize.ResultCache = cache.NewNoop()
	if cfg.Cache.Enabled && !noCache {
		sqlCache, err := cache.Open(cfg.Cache.Path, log)
		if err != nil {
			// A broken cache never blocks optimization.
			log.Warn(ctx, "cache unavailable, continuing without", zap.Error(err))
			resultCache = cache.NewNoop()
		} else {
			defer sqlCache.Close()
			resultCache = sqlCache
		}
	}

	service, err := optimize.NewService(store, loader.New(cfg.Loader, log), resultCache, log)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if len(refs) == 1 {
		res := service.OptimizeImage(ctx, refs[0], optimize.ContentType(hint))
		return enc.Encode(res)
	}

	items := make([]optimize.BatchItem, 0, len(refs))
	for _, ref := range refs {
		items = append(items, optimize.BatchItem{Ref: ref, Hint: optimize.ContentType(hint)})
	}
	return enc.Encode(service.OptimizeBatch(ctx, items))
}
