// HiperBoot - WhatsApp relay for HTTP decision services
// License: MIT
//
// Copyright (c) 2026 HiperBoot contributors

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultWebhookURL = "http://localhost:4000/webhook"
	DefaultAPIPort    = 3000
	DefaultActionPath = "/relay-actions"
	DefaultStoreDir   = "auth_info"
)

// Config is the persisted process configuration. The decision-service URL
// keeps the "flaskWebhookUrl" key so existing config.json files still load.
type Config struct {
	WebhookURL string          `json:"flaskWebhookUrl" env:"HIPERBOOT_WEBHOOK_URL"`
	API        APIConfig       `json:"api"`
	WhatsApp   WhatsAppConfig  `json:"whatsapp"`
	Relay      RelayConfig     `json:"relay"`
	Reconnect  ReconnectConfig `json:"reconnect"`
	LogLevel   string          `json:"log_level,omitempty" env:"HIPERBOOT_LOG_LEVEL"`
	LogFile    string          `json:"log_file,omitempty" env:"HIPERBOOT_LOG_FILE"`
}

type APIConfig struct {
	Host string `json:"host" env:"HIPERBOOT_API_HOST"`
	Port int    `json:"port" env:"HIPERBOOT_API_PORT"`
	Path string `json:"path" env:"HIPERBOOT_API_PATH"`
}

type WhatsAppConfig struct {
	StoreDir        string `json:"store_dir" env:"HIPERBOOT_STORE_DIR"`
	PhoneNumber     string `json:"phone_number,omitempty" env:"HIPERBOOT_PHONE_NUMBER"`
	PairDisplayName string `json:"pair_display_name,omitempty" env:"HIPERBOOT_PAIR_DISPLAY_NAME"`
	MaxImageBytes   int64  `json:"max_image_bytes,omitempty" env:"HIPERBOOT_MAX_IMAGE_BYTES"`
}

type RelayConfig struct {
	TimeoutSeconds int         `json:"timeout_seconds,omitempty" env:"HIPERBOOT_RELAY_TIMEOUT_SECONDS"`
	BearerToken    string      `json:"bearer_token,omitempty" env:"HIPERBOOT_RELAY_BEARER_TOKEN"`
	OAuth          OAuthConfig `json:"oauth"`
}

// OAuthConfig enables the client-credentials grant towards the decision
// service when TokenURL is set.
type OAuthConfig struct {
	TokenURL     string   `json:"token_url,omitempty" env:"HIPERBOOT_OAUTH_TOKEN_URL"`
	ClientID     string   `json:"client_id,omitempty" env:"HIPERBOOT_OAUTH_CLIENT_ID"`
	ClientSecret string   `json:"client_secret,omitempty" env:"HIPERBOOT_OAUTH_CLIENT_SECRET"`
	Scopes       []string `json:"scopes,omitempty" env:"HIPERBOOT_OAUTH_SCOPES" envSeparator:","`
}

// ReconnectConfig tunes the retry policy after a recoverable disconnect.
// The zero value reconnects immediately and forever.
type ReconnectConfig struct {
	DelayMS     int `json:"delay_ms,omitempty" env:"HIPERBOOT_RECONNECT_DELAY_MS"`
	MaxDelayMS  int `json:"max_delay_ms,omitempty" env:"HIPERBOOT_RECONNECT_MAX_DELAY_MS"`
	MaxAttempts int `json:"max_attempts,omitempty" env:"HIPERBOOT_RECONNECT_MAX_ATTEMPTS"`
}

func (r RelayConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

func (o OAuthConfig) Enabled() bool {
	return strings.TrimSpace(o.TokenURL) != ""
}

func (r ReconnectConfig) Delay() time.Duration {
	return time.Duration(r.DelayMS) * time.Millisecond
}

func (r ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

func DefaultConfig() *Config {
	return &Config{
		WebhookURL: DefaultWebhookURL,
		API: APIConfig{
			Host: "0.0.0.0",
			Port: DefaultAPIPort,
			Path: DefaultActionPath,
		},
		WhatsApp: WhatsAppConfig{
			StoreDir:        DefaultStoreDir,
			PairDisplayName: "Chrome (Linux)",
		},
		LogLevel: "info",
	}
}

// LoadConfig reads path over the defaults and applies HIPERBOOT_* environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// SaveConfig writes cfg to path through a temp file so a crash never leaves
// a half-written config behind.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeFileAtomic(path, data)
}

// SaveWebhookURL rewrites only the "flaskWebhookUrl" key of the file at path.
// Values that came from the environment are never written back.
func SaveWebhookURL(path, webhookURL string) error {
	fields := map[string]json.RawMessage{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	} else if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	encoded, err := json.Marshal(webhookURL)
	if err != nil {
		return err
	}
	fields["flaskWebhookUrl"] = encoded

	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeFileAtomic(path, out)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// ValidateWebhookURL accepts absolute http(s) URLs only.
func ValidateWebhookURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("webhook url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook url has no host")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.WebhookURL) == "" {
		c.WebhookURL = DefaultWebhookURL
	}
	if c.API.Port <= 0 {
		c.API.Port = DefaultAPIPort
	}
	if c.API.Path == "" {
		c.API.Path = DefaultActionPath
	}
	if !strings.HasPrefix(c.API.Path, "/") {
		c.API.Path = "/" + c.API.Path
	}
	if c.WhatsApp.StoreDir == "" {
		c.WhatsApp.StoreDir = DefaultStoreDir
	}
}
