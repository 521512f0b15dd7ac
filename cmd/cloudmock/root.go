package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"cloudmock/internal/config"
	"cloudmock/internal/core"
)

var (
	configPath string

	// serve overrides; applied only when set on the command line
	addr          string
	logLevel      string
	storageDriver string
	baseline      string
	extras        []string
	populators    []string
	fixtures      []string
	responseDelay time.Duration
	eventDelay    time.Duration
	virtualClock  bool
)

var rootCmd = &cobra.Command{
	Use:          "cloudmock",
	Short:        "Stateful mock of the cloud console API",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (CLOUDMOCK_* env vars override it)")
	rootCmd.PersistentFlags().StringSliceVar(&fixtures, "fixture", nil, "YAML seed file exposed as a fixtures:<name> populator (repeatable)")

	f := serveCmd.Flags()
	f.StringVar(&addr, "addr", "", "Listen address")
	f.StringVar(&logLevel, "log", "", "Log level (trace, debug, info, warn, error, fatal, panic)")
	f.StringVar(&storageDriver, "storage", "", "Storage driver (memory, sqlite, postgres)")
	f.StringVar(&baseline, "baseline", "", "Baseline preset id")
	f.StringSliceVar(&extras, "extra", nil, "Extra preset id, highest priority first (repeatable)")
	f.StringSliceVar(&populators, "populator", nil, "Populator preset id, run in order (repeatable)")
	f.DurationVar(&responseDelay, "response-delay", 0, "Latency added by api:response-time")
	f.DurationVar(&eventDelay, "event-delay", 0, "Spacing between lifecycle event steps")
	f.BoolVar(&virtualClock, "virtual-clock", false, "Drive event visibility from /__mock/clock/advance")

	rootCmd.AddCommand(serveCmd, presetsCmd)
}

// loadConfig layers command-line overrides on the file and environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return config.Config{}, err
	}
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("addr") {
		cfg.Addr = addr
	}
	if changed("log") {
		cfg.LogLevel = logLevel
	}
	if changed("storage") {
		cfg.Storage.Driver = core.StorageDriver(storageDriver)
	}
	if changed("baseline") {
		cfg.Preset.Baseline = baseline
	}
	if changed("extra") {
		cfg.Preset.Extras = extras
	}
	if changed("populator") {
		cfg.Preset.Populators = populators
	}
	if changed("fixture") {
		cfg.Fixtures = append(cfg.Fixtures, fixtures...)
	}
	if changed("response-delay") {
		cfg.ResponseDelay = responseDelay
	}
	if changed("event-delay") {
		cfg.EventDelay = eventDelay
	}
	if changed("virtual-clock") {
		cfg.VirtualClock = virtualClock
	}
	return cfg, cfg.Validate()
}
