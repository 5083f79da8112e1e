package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhaopengme/hiperboot/pkg/console"
	"github.com/zhaopengme/hiperboot/pkg/lifecycle"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect and relay without the interactive menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fresh, _ := cmd.Flags().GetBool("fresh")
			if phone, _ := cmd.Flags().GetString("phone"); phone != "" {
				cfg.WhatsApp.PhoneNumber = phone
			}

			out := cmd.OutOrStdout()
			a := newApp(configPath(cmd), cfg, out)
			if err := a.start(); err != nil {
				return err
			}
			defer a.close(context.Background())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pairer := &console.Pairer{Phone: cfg.WhatsApp.PhoneNumber, Out: out}
			err = a.connect(ctx, fresh, pairer)
			switch {
			case errors.Is(err, context.Canceled):
				return nil
			case errors.Is(err, lifecycle.ErrLoggedOut):
				fmt.Fprintln(out, console.Error("Logged out. Run `hiperboot serve --fresh --phone <number>` to pair again."))
			case errors.Is(err, console.ErrNoInput):
				return fmt.Errorf("device is not paired: pass --phone or set whatsapp.phone_number")
			}
			return err
		},
	}

	cmd.Flags().Bool("fresh", false, "Delete stored credentials and pair again.")
	cmd.Flags().String("phone", "", "Phone number to pair with when no credentials are stored.")
	return cmd
}
