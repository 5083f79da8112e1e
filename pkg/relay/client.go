package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/zhaopengme/hiperboot/pkg/actions"
	"github.com/zhaopengme/hiperboot/pkg/config"
	"github.com/zhaopengme/hiperboot/pkg/inbound"
	"github.com/zhaopengme/hiperboot/pkg/utils"
)

// Error is a failed relay call. StatusCode is 0 when no response arrived.
type Error struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("no response from decision service at %s: %v", e.URL, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("decision service returned HTTP %d: %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("decision service returned HTTP %d: %s", e.StatusCode, e.Body)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) NoResponse() bool {
	return e.StatusCode == 0
}

type Options struct {
	URL         string
	Timeout     time.Duration
	BearerToken string
	OAuth       config.OAuthConfig
	// HTTPClient overrides the transport; auth options are ignored when set.
	HTTPClient *http.Client
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URL:         cfg.WebhookURL,
		Timeout:     cfg.Relay.Timeout(),
		BearerToken: cfg.Relay.BearerToken,
		OAuth:       cfg.Relay.OAuth,
	}
}

// Client POSTs normalized messages to the decision service. It never
// retries.
type Client struct {
	url  string
	http *resty.Client
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = authClient(opts)
	}

	rc := resty.NewWithClient(hc).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}

	return &Client{
		url:  strings.TrimSpace(opts.URL),
		http: rc,
	}
}

func authClient(opts Options) *http.Client {
	ctx := context.Background()
	switch {
	case opts.OAuth.Enabled():
		cc := clientcredentials.Config{
			ClientID:     opts.OAuth.ClientID,
			ClientSecret: opts.OAuth.ClientSecret,
			TokenURL:     opts.OAuth.TokenURL,
			Scopes:       opts.OAuth.Scopes,
		}
		return cc.Client(ctx)
	case opts.BearerToken != "":
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.BearerToken,
			TokenType:   "Bearer",
		}))
	default:
		return &http.Client{}
	}
}

func (c *Client) URL() string {
	return c.url
}

type response struct {
	Actions actions.Batch `json:"actions"`
}

// Relay sends msg and returns the decision service's action batch, empty
// when the response carries no actions.
func (c *Client) Relay(ctx context.Context, msg inbound.Message) ([]actions.Action, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(msg).
		Post(c.url)
	if err != nil {
		return nil, &Error{URL: c.url, Err: err}
	}

	if !resp.IsSuccess() {
		return nil, &Error{
			URL:        c.url,
			StatusCode: resp.StatusCode(),
			Body:       utils.Truncate(strings.TrimSpace(resp.String()), 512),
		}
	}

	body := resp.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return []actions.Action{}, nil
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{
			URL:        c.url,
			StatusCode: resp.StatusCode(),
			Body:       utils.Truncate(string(body), 512),
			Err:        fmt.Errorf("invalid response body: %w", err),
		}
	}
	if out.Actions == nil {
		out.Actions = actions.Batch{}
	}
	return out.Actions, nil
}
