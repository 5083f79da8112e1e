package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zhaopengme/hiperboot/pkg/whatsapp"
)

var ErrNoInput = errors.New("no input")

// LineReader is the part of *readline.Instance the prompts need.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Pairer asks the operator for the phone number to link, unless one was
// configured, and prints the pairing code.
type Pairer struct {
	Phone  string
	Reader LineReader
	Out    io.Writer
}

func (p *Pairer) PhoneNumber(ctx context.Context) (string, error) {
	if p.Phone != "" {
		return p.Phone, nil
	}
	if p.Reader == nil {
		return "", fmt.Errorf("phone number required: %w", ErrNoInput)
	}

	p.Reader.SetPrompt("WhatsApp number to link (e.g. 5511999998888): ")
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := p.Reader.Readline()
		if err != nil {
			return "", err
		}
		if whatsapp.SanitizePhone(line) != "" {
			return strings.TrimSpace(line), nil
		}
		fmt.Fprintln(p.Out, Warn("Please type digits only, including the country code."))
	}
}

func (p *Pairer) ShowPairingCode(code string) {
	fmt.Fprintln(p.Out, PairingInstructions(code))
}
