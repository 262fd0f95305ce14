package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"vawter.tech/stopper"

	"github.com/atikulmunna/moor/internal/cache"
	"github.com/atikulmunna/moor/internal/compose"
	"github.com/atikulmunna/moor/internal/config"
	"github.com/atikulmunna/moor/internal/server"
	"github.com/atikulmunna/moor/internal/service"
	"github.com/atikulmunna/moor/internal/stats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control-plane server",
	Long: `Start the HTTP/WebSocket control plane for all configured services.

Examples:
  moor serve
  moor serve --config /etc/moor/moor.yml
  MOOR_LISTEN=:9000 moor serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides config)")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "moor shutting down...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyOverrides(cfg)

	store, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		return err
	}

	controllers, err := buildControllers(cfg, store)
	if err != nil {
		return err
	}
	manager := service.NewManager(controllers)

	collector := stats.New()
	for _, c := range controllers {
		collector.Watch(c)
	}

	// Background goroutines: metrics window pruning and the config change
	// notice. Config is immutable for the life of the process.
	sctx := stopper.WithContext(ctx)
	sctx.Go(func(*stopper.Context) error {
		collector.Start(ctx)
		return nil
	})
	watcher, err := config.NewWatcher(cfgFile, func() {
		log.Printf("config file %s changed on disk; restart moor to apply", cfgFile)
	})
	if err != nil {
		log.Printf("config watcher disabled: %v", err)
	} else {
		sctx.Go(func(*stopper.Context) error {
			return watcher.Run(ctx)
		})
	}
	defer func() {
		sctx.Stop(time.Second)
		_ = sctx.Wait()
	}()

	srv := server.New(manager, collector, cfg.Listen, cfg.Replay)

	fmt.Fprintf(os.Stderr, "moor serving %d service(s) on %s\n", len(manager.Names()), cfg.Listen)
	for _, name := range manager.Names() {
		fmt.Fprintf(os.Stderr, "   • %s\n", name)
	}

	return srv.Start(ctx)
}

// applyOverrides lets flags and MOOR_* environment variables win over the
// config file for deployment-level knobs.
func applyOverrides(cfg *config.Config) {
	if v := viper.GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v := viper.GetString("cache_dir"); v != "" {
		cfg.CacheDir = v
	}
	if v := viper.GetInt("log_buffer"); v > 0 {
		cfg.LogBuffer = v
	}
	if v := viper.GetInt("replay"); v > 0 {
		cfg.Replay = v
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = ".moor-cache"
	}
}

// buildControllers constructs one controller per configured service.
func buildControllers(cfg *config.Config, store *cache.Store) ([]*service.Controller, error) {
	var controllers []*service.Controller
	for name, sc := range cfg.Services {
		keys, err := cfg.BuildKeys(name)
		if err != nil {
			return nil, err
		}
		commands, err := config.BuildCommands(sc.Commands)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}

		controllers = append(controllers, service.NewController(service.ControllerConfig{
			Name:       name,
			Keys:       keys,
			Runner:     compose.NewCLI(sc.Dir, sc.ComposeFile),
			Store:      store,
			Commands:   commands,
			BufferSize: cfg.LogBuffer,
		}))
	}
	return controllers, nil
}
