// Package http publishes event envelopes as webhooks.
package http

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edgeflare/inventory/pkg/event"
	"github.com/edgeflare/inventory/pkg/httputil"
	"go.uber.org/zap"
)

// AuthType represents supported authentication methods
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeAPIKey AuthType = "apikey"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Type       AuthType `mapstructure:"type"`
	APIKey     string   `mapstructure:"apiKey"`
	APIKeyName string   `mapstructure:"apiKeyName"` // Header name for API key
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	Token      string   `mapstructure:"token"`
}

// RetryConfig holds retry settings for failed webhook attempts. Retries are
// off unless Enabled is set.
type RetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRetries  int           `mapstructure:"maxRetries"`
	InitialWait time.Duration `mapstructure:"initialWait"`
	MaxWait     time.Duration `mapstructure:"maxWait"`
}

// EndpointConfig represents configuration for a single endpoint
type EndpointConfig struct {
	Headers map[string]string `mapstructure:"headers"`
	URL     string            `mapstructure:"url"`
	Method  string            `mapstructure:"method"`
}

// Config is the webhook connector configuration.
type Config struct {
	Auth      AuthConfig       `mapstructure:"auth"`
	Timeout   time.Duration    `mapstructure:"timeout"`
	Endpoints []EndpointConfig `mapstructure:"endpoints"`
	Retry     RetryConfig      `mapstructure:"retry"`
}

// PeerHTTP implements HTTP webhook functionality
type PeerHTTP struct {
	client    *http.Client
	logger    *zap.Logger
	auth      AuthConfig
	endpoints []EndpointConfig
	retry     RetryConfig
}

// Connect initializes the HTTP client with the provided configuration
func (p *PeerHTTP) Connect(config map[string]any, logger *zap.Logger) error {
	var cfg Config
	if err := event.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if len(cfg.Endpoints) == 0 {
		return errors.New("no endpoints configured")
	}

	setDefaultConfig(&cfg)
	p.logger = logger
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.client = &http.Client{Timeout: cfg.Timeout}
	p.endpoints = cfg.Endpoints
	p.auth = cfg.Auth
	p.retry = cfg.Retry

	if err := p.validateConfig(); err != nil {
		return err
	}

	p.logger.Info("HTTP peer initialized",
		zap.Int("num_endpoints", len(cfg.Endpoints)),
		zap.String("auth_type", string(cfg.Auth.Type)),
		zap.Duration("timeout", cfg.Timeout))
	return nil
}

func setDefaultConfig(cfg *Config) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.InitialWait == 0 {
		cfg.Retry.InitialWait = time.Second
	}
	if cfg.Retry.MaxWait == 0 {
		cfg.Retry.MaxWait = 30 * time.Second
	}
	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].Method == "" {
			cfg.Endpoints[i].Method = http.MethodPost
		}
	}
	if cfg.Auth.Type == "" {
		cfg.Auth.Type = AuthTypeNone
	}
}

func (p *PeerHTTP) validateConfig() error {
	switch p.auth.Type {
	case AuthTypeNone:
	case AuthTypeAPIKey:
		if p.auth.APIKey == "" {
			return errors.New("API key authentication requires an API key")
		}
		if p.auth.APIKeyName == "" {
			p.auth.APIKeyName = "X-API-Key"
		}
	case AuthTypeBasic:
		if p.auth.Username == "" || p.auth.Password == "" {
			return errors.New("basic authentication requires both username and password")
		}
	case AuthTypeBearer:
		if p.auth.Token == "" {
			return errors.New("bearer authentication requires a token")
		}
	default:
		return fmt.Errorf("unsupported auth type %q", p.auth.Type)
	}
	for _, e := range p.endpoints {
		if e.URL == "" {
			return errors.New("endpoint url is required")
		}
	}
	return nil
}

// Pub sends payload to every configured endpoint. The topic is passed in the
// X-Event-Topic header. The last endpoint error is returned.
func (p *PeerHTTP) Pub(ctx context.Context, topic string, payload []byte) error {
	if p.client == nil {
		return event.ErrNotConnected
	}

	var lastErr error
	for _, endpoint := range p.endpoints {
		config := httputil.DefaultRequestConfig(endpoint.Method, endpoint.URL)
		config.Client = p.client
		config.Logger = p.logger
		config.Headers = p.buildHeaders(endpoint)
		config.Headers["X-Event-Topic"] = []string{topic}
		config.RetryEnabled = p.retry.Enabled
		config.MaxRetries = p.retry.MaxRetries
		config.InitialBackoff = p.retry.InitialWait
		config.MaxBackoff = p.retry.MaxWait

		if _, err := httputil.Request(ctx, config, payload); err != nil {
			lastErr = err
			p.logger.Error("failed to send webhook",
				zap.String("endpoint", endpoint.URL),
				zap.Error(err))
		}
	}
	return lastErr
}

func (p *PeerHTTP) buildHeaders(endpoint EndpointConfig) map[string][]string {
	headers := make(map[string][]string)

	for key, value := range endpoint.Headers {
		headers[key] = []string{value}
	}

	switch p.auth.Type {
	case AuthTypeAPIKey:
		headers[p.auth.APIKeyName] = []string{p.auth.APIKey}
	case AuthTypeBasic:
		headers["Authorization"] = []string{"Basic " + basicAuth(p.auth.Username, p.auth.Password)}
	case AuthTypeBearer:
		headers["Authorization"] = []string{"Bearer " + p.auth.Token}
	}

	return headers
}

func basicAuth(username, password string) string {
	auth := username + ":" + password
	return base64.StdEncoding.EncodeToString([]byte(auth))
}

func (p *PeerHTTP) Type() event.ConnectorType {
	return event.ConnectorTypePub
}

func (p *PeerHTTP) Sub(_ context.Context, _ string) (<-chan event.Message, error) {
	return nil, event.ErrConnectorTypeMismatch
}

func (p *PeerHTTP) Disconnect() error {
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
	return nil
}

func init() {
	event.RegisterConnector(event.ConnectorHTTP, func() event.Connector { return &PeerHTTP{} })
}
