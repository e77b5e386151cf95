package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// TLSOptions holds TLS configuration that can be decoded from config files
type TLSOptions struct {
	InsecureSkipVerify bool   `mapstructure:"insecureSkipVerify"`
	ServerName         string `mapstructure:"serverName"`
	CAFile             string `mapstructure:"caFile"`
	CertFile           string `mapstructure:"certFile"`
	KeyFile            string `mapstructure:"keyFile"`
}

// Config is the MQTT connector configuration.
type Config struct {
	Servers        []string      `mapstructure:"servers"`
	ClientID       string        `mapstructure:"clientID"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topicPrefix"`
	QoS            byte          `mapstructure:"qos"`
	Retained       bool          `mapstructure:"retained"`
	CleanSession   bool          `mapstructure:"cleanSession"`
	KeepAlive      time.Duration `mapstructure:"keepAlive"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	TLS            *TLSOptions   `mapstructure:"tls"`
}

func (c *Config) setDefaults() {
	if len(c.Servers) == 0 {
		c.Servers = []string{"tcp://127.0.0.1:1883"}
	}
	if c.ClientID == "" {
		c.ClientID = "inventory-" + uuid.NewString()[:8]
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "inventory"
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	if c.QoS > 2 {
		return fmt.Errorf("invalid qos %d", c.QoS)
	}
	return nil
}

// toPahoOptions converts Config to paho client options. Messages are acked
// explicitly by the consumer.
func toPahoOptions(c Config) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	for _, server := range c.Servers {
		opts.AddBroker(server)
	}

	opts.SetClientID(c.ClientID)
	if c.Username != "" {
		opts.SetUsername(c.Username)
	}
	if c.Password != "" {
		opts.SetPassword(c.Password)
	}
	if c.TLS != nil {
		tlsConfig, err := createTLSConfig(c.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetKeepAlive(c.KeepAlive)
	opts.SetConnectTimeout(c.ConnectTimeout)
	opts.SetCleanSession(c.CleanSession)
	opts.SetOrderMatters(true)
	opts.SetAutoReconnect(true)
	opts.SetResumeSubs(true)
	opts.SetAutoAckDisabled(true)

	return opts, nil
}

func createTLSConfig(tlsOpts *TLSOptions) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify,
		ServerName:         tlsOpts.ServerName,
	}

	if tlsOpts.CAFile != "" {
		caCert, err := os.ReadFile(tlsOpts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	if tlsOpts.CertFile != "" && tlsOpts.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsOpts.CertFile, tlsOpts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
