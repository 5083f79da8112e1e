// Package console renders operator-facing status: the startup banner, the
// connected panel, pairing instructions and lifecycle notices.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/zhaopengme/hiperboot/pkg/bus"
)

// Banner is shown while the first connection attempt starts.
func Banner() string {
	return strings.Join([]string{
		bannerStyle.Render(logo),
		"",
		waitStyle.Render("Starting bot and connecting to WhatsApp..."),
		waitStyle.Render("Please wait a moment."),
		"",
	}, "\n")
}

// ConnectedPanel summarizes an open session and both relay endpoints.
func ConnectedPanel(ownID, webhookURL, actionURL string) string {
	lines := []string{okStyle.Render("BOT ONLINE AND READY")}
	if ownID != "" {
		lines = append(lines, okStyle.Render("Connected as: "+ownID))
	}
	lines = append(lines,
		"",
		infoStyle.Render("Decision service: "+webhookURL),
		infoStyle.Render("Action endpoint:  "+actionURL),
		"",
		dimStyle.Render("Waiting for WhatsApp messages..."),
	)
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func PairingInstructions(code string) string {
	return strings.Join([]string{
		"",
		"Your pairing code is: " + codeStyle.Render(code),
		"",
		dimStyle.Render("On your phone open WhatsApp > Linked devices > Link a device >"),
		dimStyle.Render("Link with phone number instead, and type the code above."),
		"",
	}, "\n")
}

func Warn(msg string) string {
	return waitStyle.Render(msg)
}

func Error(msg string) string {
	return errorStyle.Render(msg)
}

func Success(msg string) string {
	return okStyle.Render(msg)
}

func Info(msg string) string {
	return infoStyle.Render(msg)
}

// Printer turns status events into console output.
type Printer struct {
	out        io.Writer
	webhookURL func() string
	actionURL  string
}

func NewPrinter(out io.Writer, webhookURL func() string, actionURL string) *Printer {
	return &Printer{out: out, webhookURL: webhookURL, actionURL: actionURL}
}

// Render returns the console text for evt, or "" when it has none.
func (p *Printer) Render(evt bus.StatusEvent) string {
	switch evt.Type {
	case bus.EventState:
		switch evt.State {
		case "connecting":
			if evt.Attempt > 1 {
				return Warn(fmt.Sprintf("Connecting to WhatsApp (attempt %d)...", evt.Attempt))
			}
			return Warn("Connecting to WhatsApp...")
		case "awaiting_pairing":
			return Info("Waiting for this device to be linked...")
		case "open":
			return ConnectedPanel(evt.OwnID, p.webhookURL(), p.actionURL)
		case "closed_recoverable":
			return Warn("Connection closed (" + evt.Detail + "). Reconnecting...")
		case "closed_terminal":
			return Error("Logged out. Use \"Connect fresh\" to pair this bot again.")
		}
	case bus.EventPairing:
		return Info("Pairing code issued. Enter it on your phone to link this bot.")
	case bus.EventRelay:
		return Error("[relay] " + evt.Detail)
	}
	return ""
}

// Watch prints every event from sub until ctx ends or the feed closes.
func (p *Printer) Watch(ctx context.Context, sub bus.Subscriber) {
	id, events := sub.Subscribe(32)
	defer sub.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if text := p.Render(evt); text != "" {
				fmt.Fprintln(p.out, text)
			}
		}
	}
}
