package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atikulmunna/moor/internal/cache"
	"github.com/atikulmunna/moor/internal/config"
	"github.com/atikulmunna/moor/internal/model"
	"github.com/atikulmunna/moor/internal/output"
	"github.com/atikulmunna/moor/internal/service"
)

var (
	tailOutputFmt string
	tailReplay    int
)

var tailCmd = &cobra.Command{
	Use:   "tail <service>",
	Short: "Stream a service's records to the terminal",
	Long: `Tail one configured service locally: attach to its live compose log
stream and print each record, colorized per sub-service.

Examples:
  moor tail api
  moor tail api --replay 50
  moor tail api --output json | jq .message`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVarP(&tailOutputFmt, "output", "o", "text", "output format: text, json")
	tailCmd.Flags().IntVar(&tailReplay, "replay", config.DefaultReplay, "number of buffered records to replay")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyOverrides(cfg)

	if _, ok := cfg.Services[name]; !ok {
		return fmt.Errorf("unknown service %q (configured: %s)", name, strings.Join(serviceNames(cfg), ", "))
	}

	store, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		return err
	}
	controllers, err := buildControllers(cfg, store)
	if err != nil {
		return err
	}
	manager := service.NewManager(controllers)

	controller, _ := manager.Controller(name)
	running, err := controller.PollRunning()
	if err != nil {
		return err
	}
	if !running {
		fmt.Fprintf(os.Stderr, "moor: %s is not running; waiting for records\n", name)
	}

	var renderer output.Renderer
	switch strings.ToLower(tailOutputFmt) {
	case "json":
		renderer = output.NewJSONRenderer()
	default:
		renderer = output.NewTextRenderer()
	}

	unsubscribe := controller.Subscribe(func(rec model.LogRecord) {
		if err := renderer.Render(rec); err != nil {
			log.Printf("render error: %v", err)
		}
	}, tailReplay)
	defer unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Fprintln(os.Stderr, "\nmoor tail stopped")
	return nil
}

func serviceNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Services))
	for name := range cfg.Services {
		names = append(names, name)
	}
	return names
}
