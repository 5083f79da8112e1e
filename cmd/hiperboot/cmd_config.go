package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhaopengme/hiperboot/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(redacted(*cfg), "", "  ")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-url <url>",
		Short: "Set the decision service webhook URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(args[0])
			if err := config.ValidateWebhookURL(raw); err != nil {
				return err
			}
			if err := config.SaveWebhookURL(configPath(cmd), raw); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Webhook URL saved to %s: %s\n", configPath(cmd), raw)
			return nil
		},
	})
	return cmd
}

func redacted(cfg config.Config) config.Config {
	if cfg.Relay.BearerToken != "" {
		cfg.Relay.BearerToken = "***"
	}
	if cfg.Relay.OAuth.ClientSecret != "" {
		cfg.Relay.OAuth.ClientSecret = "***"
	}
	return cfg
}
