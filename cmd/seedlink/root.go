package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"seedlink/internal/browser"
	"seedlink/internal/config"
	"seedlink/internal/logging"
	"seedlink/internal/resolver"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	logLevel   string
	logFormat  string
	configPath string
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "seedlink",
		Short: "Resolve gated file-host links into direct download URLs",
		Long: `seedlink drives headless Chrome through a link shortener's interstitial,
follows the redirect to the file page and probes the host's download
endpoints for that file.

Configuration is read from defaults, then the environment (PORT, PROXY_URL,
SEEDLINK_*), then an optional YAML file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "Log format (console or json)")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML configuration file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newResolveCmd(opts))

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the configuration and builds a logger writing to w.
func (o *globalOptions) load(w io.Writer) (config.Config, zerolog.Logger, error) {
	logger, err := logging.New(w, o.logLevel, o.logFormat)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newService(cfg config.Config, logger zerolog.Logger) (*resolver.Service, error) {
	chrome, err := browser.NewChrome(browser.Options{
		Proxy:     cfg.Browser.Proxy,
		UserAgent: cfg.Browser.UserAgent,
		ExecPath:  cfg.Browser.ExecPath,
		Headless:  cfg.Browser.Headless,
		Logger:    logger.With().Str("component", "chrome").Logger(),
	})
	if err != nil {
		return nil, err
	}
	return resolver.NewService(chrome, cfg, logger), nil
}
