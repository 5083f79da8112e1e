package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/zhaopengme/hiperboot/pkg/console"
	"github.com/zhaopengme/hiperboot/pkg/lifecycle"
)

const freshConfirmation = "yes"

// menuHost is what the menu drives.
type menuHost interface {
	connect(ctx context.Context, fresh bool, pairer lifecycle.Pairer) error
	setWebhookURL(raw string) error
	webhookURL() string
}

type menu struct {
	host   menuHost
	reader console.LineReader
	out    io.Writer
	phone  string
	// runCtx scopes one connection; interrupting it returns to the menu.
	runCtx func() (context.Context, context.CancelFunc)
}

func runMenu(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".hiperboot_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	out := cmd.OutOrStdout()
	a := newApp(configPath(cmd), cfg, out)
	if err := a.start(); err != nil {
		return err
	}
	defer a.close(context.Background())

	m := &menu{
		host:   a,
		reader: rl,
		out:    out,
		phone:  cfg.WhatsApp.PhoneNumber,
		runCtx: func() (context.Context, context.CancelFunc) {
			return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		},
	}
	return m.loop()
}

func (m *menu) printOptions() {
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, console.Info("=== HiperBoot ==="))
	fmt.Fprintln(m.out, "1. Connect (resume saved session)")
	fmt.Fprintln(m.out, "2. Connect fresh (delete saved session)")
	fmt.Fprintln(m.out, "3. Edit decision service URL (current: "+m.host.webhookURL()+")")
	fmt.Fprintln(m.out, "4. Exit")
}

func (m *menu) readLine(prompt string) (string, error) {
	m.reader.SetPrompt(prompt)
	line, err := m.reader.Readline()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// loop shows the menu until the operator exits or input ends.
func (m *menu) loop() error {
	for {
		m.printOptions()
		choice, err := m.readLine("Choose an option: ")
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(m.out, "Goodbye!")
				return nil
			}
			return err
		}

		switch choice {
		case "1":
			m.runConnection(false)
		case "2":
			ok, err := m.confirmFresh()
			if err != nil {
				return nil
			}
			if ok {
				m.runConnection(true)
			}
		case "3":
			if err := m.editURL(); err != nil {
				return nil
			}
		case "4":
			fmt.Fprintln(m.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(m.out, console.Warn("Invalid option, choose 1-4."))
		}
	}
}

func (m *menu) confirmFresh() (bool, error) {
	fmt.Fprintln(m.out, console.Warn("This deletes the saved WhatsApp session; the bot must be paired again."))
	answer, err := m.readLine(fmt.Sprintf("Type %q to continue: ", freshConfirmation))
	if err != nil {
		return false, err
	}
	if !strings.EqualFold(answer, freshConfirmation) {
		fmt.Fprintln(m.out, "Cancelled.")
		return false, nil
	}
	return true, nil
}

func (m *menu) runConnection(fresh bool) {
	ctx, cancel := m.runCtx()
	defer cancel()

	pairer := &console.Pairer{Phone: m.phone, Reader: m.reader, Out: m.out}
	err := m.host.connect(ctx, fresh, pairer)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		fmt.Fprintln(m.out, console.Warn("Disconnected."))
	case errors.Is(err, lifecycle.ErrLoggedOut):
		fmt.Fprintln(m.out, console.Error("Could not reconnect: the session was logged out. Choose option 2 to pair again."))
	default:
		fmt.Fprintln(m.out, console.Error("Connection stopped: "+err.Error()))
	}
}

func (m *menu) editURL() error {
	fmt.Fprintln(m.out, "Current URL: "+m.host.webhookURL())
	for {
		raw, err := m.readLine("New decision service URL (empty to keep): ")
		if err != nil {
			return err
		}
		if raw == "" {
			return nil
		}
		if err := m.host.setWebhookURL(raw); err != nil {
			fmt.Fprintln(m.out, console.Error(err.Error()))
			continue
		}
		fmt.Fprintln(m.out, console.Success("Decision service URL saved: "+raw))
		return nil
	}
}
