package gateway

import (
	"context"

	"github.com/zhaopengme/hiperboot/pkg/bus"
	"github.com/zhaopengme/hiperboot/pkg/config"
	"github.com/zhaopengme/hiperboot/pkg/inbound"
	"github.com/zhaopengme/hiperboot/pkg/logger"
	"github.com/zhaopengme/hiperboot/pkg/relay"
	"github.com/zhaopengme/hiperboot/pkg/session"
)

// Gateway joins both directions of the relay: chat messages out to the
// decision service and pushed action batches back into the chat.
type Gateway struct {
	Bridge *Bridge
	Server *Server
}

func New(cfg *config.Config, holder *session.Holder, executor BatchExecutor, broker bus.Broker) *Gateway {
	normalizer := inbound.NewNormalizer(holder.OwnID, inbound.WithMaxImageBytes(cfg.WhatsApp.MaxImageBytes))
	return &Gateway{
		Bridge: NewBridge(normalizer, relay.NewClient(relay.OptionsFromConfig(cfg)), executor, broker),
		Server: NewServer(cfg.API, holder, executor, broker),
	}
}

func (g *Gateway) Start() error {
	return g.Server.Start()
}

// Stop closes the HTTP surface and waits for in-flight messages.
func (g *Gateway) Stop(ctx context.Context) error {
	err := g.Server.Stop(ctx)
	g.Bridge.Close()
	return err
}

// WebhookURL is the decision-service endpoint currently in use.
func (g *Gateway) WebhookURL() string {
	return g.Bridge.RelayURL()
}

// Reload rebuilds the decision-service client from cfg without touching
// the chat session.
func (g *Gateway) Reload(cfg *config.Config) {
	g.Bridge.SetRelayer(relay.NewClient(relay.OptionsFromConfig(cfg)))
	logger.InfoCF("gateway", "Decision service endpoint updated", map[string]interface{}{
		"url": cfg.WebhookURL,
	})
}
