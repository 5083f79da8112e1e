package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/zhaopengme/hiperboot/pkg/actions"
	"github.com/zhaopengme/hiperboot/pkg/bus"
	"github.com/zhaopengme/hiperboot/pkg/config"
	"github.com/zhaopengme/hiperboot/pkg/console"
	"github.com/zhaopengme/hiperboot/pkg/gateway"
	"github.com/zhaopengme/hiperboot/pkg/lifecycle"
	"github.com/zhaopengme/hiperboot/pkg/logger"
	"github.com/zhaopengme/hiperboot/pkg/session"
	"github.com/zhaopengme/hiperboot/pkg/whatsapp"
)

// app holds everything that outlives a single connection attempt.
type app struct {
	cfgPath string
	cfg     *config.Config
	out     io.Writer

	store   *whatsapp.Store
	holder  *session.Holder
	status  *bus.StatusBus
	gateway *gateway.Gateway

	stopWatch context.CancelFunc
}

func newApp(cfgPath string, cfg *config.Config, out io.Writer) *app {
	holder := session.NewHolder()
	status := bus.NewStatusBus()
	executor := actions.NewExecutor(holder)

	return &app{
		cfgPath: cfgPath,
		cfg:     cfg,
		out:     out,
		store:   whatsapp.NewStore(cfg.WhatsApp.StoreDir, cfg.WhatsApp.PairDisplayName),
		holder:  holder,
		status:  status,
		gateway: gateway.New(cfg, holder, executor, status),
	}
}

func (a *app) actionURL() string {
	host := a.cfg.API.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(host, strconv.Itoa(a.cfg.API.Port)), a.cfg.API.Path)
}

func (a *app) webhookURL() string {
	return a.gateway.WebhookURL()
}

// start brings up the HTTP surface and the console status printer.
func (a *app) start() error {
	if err := a.gateway.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel
	printer := console.NewPrinter(a.out, a.webhookURL, a.actionURL())
	go printer.Watch(ctx, a.status)
	return nil
}

// connect runs one lifecycle controller until it gives up or ctx ends.
func (a *app) connect(ctx context.Context, fresh bool, pairer lifecycle.Pairer) error {
	fmt.Fprintln(a.out, console.Banner())

	ctrl := lifecycle.New(a.store, a.store, a.holder,
		lifecycle.WithPairer(pairer),
		lifecycle.WithSink(a.gateway.Bridge),
		lifecycle.WithPublisher(a.status),
		lifecycle.WithPolicy(lifecycle.PolicyFromConfig(a.cfg.Reconnect)),
	)
	return ctrl.Run(ctx, fresh)
}

// setWebhookURL validates, persists and applies a new decision-service URL.
func (a *app) setWebhookURL(raw string) error {
	if err := config.ValidateWebhookURL(raw); err != nil {
		return err
	}
	if err := config.SaveWebhookURL(a.cfgPath, raw); err != nil {
		return err
	}
	next := *a.cfg
	next.WebhookURL = raw
	a.gateway.Reload(&next)
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if err := a.gateway.Stop(ctx); err != nil {
		logger.WarnCF("main", "Gateway shutdown error", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := a.store.Close(); err != nil {
		logger.WarnCF("main", "Credential store close error", map[string]interface{}{
			"error": err.Error(),
		})
	}
	a.status.Close()
}
