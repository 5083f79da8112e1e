// HiperBoot - WhatsApp relay for HTTP decision services
// License: MIT
//
// Copyright (c) 2026 HiperBoot contributors

package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhaopengme/hiperboot/pkg/config"
	"github.com/zhaopengme/hiperboot/pkg/logger"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

const defaultConfigPath = "config.json"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hiperboot",
		Short:         "Relay WhatsApp conversations to an HTTP decision service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(cmd)
		},
	}

	cmd.PersistentFlags().String("config", defaultConfigPath, "Config file path.")
	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error (overrides config).")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if strings.TrimSpace(path) == "" {
		return defaultConfigPath
	}
	return path
}

// loadConfig reads the config file and applies the logging settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath(cmd))
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if cfg.LogFile != "" {
		if err := logger.EnableFileLogging(cfg.LogFile); err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			v := version
			if gitCommit != "" {
				v += fmt.Sprintf(" (git: %s)", gitCommit)
			}
			_, _ = fmt.Fprintf(out, "hiperboot %s\n", v)
			if buildTime != "" {
				_, _ = fmt.Fprintf(out, "  Build: %s\n", buildTime)
			}
			_, _ = fmt.Fprintf(out, "  Go: %s\n", runtime.Version())
			return nil
		},
	}
}
