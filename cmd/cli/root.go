// Package cli provides the lanscope command-line interface: range scans,
// device identity lookups, interface listing and scheduled monitoring.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/lanscope/internal/config"
	"github.com/anstrom/lanscope/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "lanscope",
	Short: "LAN device discovery",
	Long: `lanscope discovers live devices on a local /24 subnet, checks their
open ports and identifies them from reverse DNS, mDNS, SNMP, the ARP
neighbor table and hardware vendor prefixes.`,
	Version:      getVersion(),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./lanscope.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("provider", "", "probe provider: auto, icmp, tcp or nmap")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("metrics-addr", "", "serve /metrics, /healthz and /cache/stats on this address")

	bindFlags(flags, map[string]string{
		"verbose":             "verbose",
		"scanning.provider":   "provider",
		"logging.level":       "log-level",
		"metrics.listen_addr": "metrics-addr",
	})
}

// bindFlags binds viper keys to flags.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", name, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("lanscope")
	}

	viper.SetEnvPrefix("LANSCOPE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	initLogging()
}

// loadConfig loads the config file and applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyOverrides layers flags and LANSCOPE_* variables over the file.
func applyOverrides(cfg *config.Config) {
	if p := viper.GetString("scanning.provider"); p != "" {
		cfg.Scanning.Provider = p
	}
	if l := viper.GetString("logging.level"); l != "" {
		cfg.Logging.Level = l
	}
	if addr := viper.GetString("metrics.listen_addr"); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = addr
	}
	if viper.GetBool("verbose") {
		cfg.Logging.Level = "debug"
	}
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging based on configuration.
func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}

	logger, err := logging.New(logging.Config{
		Level:     logging.LogLevel(cfg.Logging.Level),
		Format:    logging.LogFormat(cfg.Logging.Format),
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.Level == "debug",
	})
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Info("Structured logging initialized", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	}
}
