package shared

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ClientConfig holds the behavior knobs shared by remote HTTP clients.
type ClientConfig struct {
	BaseURL            string        `json:"base_url"`
	HTTPRequestTimeout time.Duration `json:"http_timeout"`
	RequestRateLimit   time.Duration `json:"rate_limit"`
	MaxRetryAttempts   int           `json:"max_retries"`
	EnableMetrics      bool          `json:"enable_metrics"`
}

// NewDefaultClientConfig returns production-ready client defaults.
func NewDefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:            baseURL,
		HTTPRequestTimeout: 30 * time.Second,
		RequestRateLimit:   250 * time.Millisecond,
		MaxRetryAttempts:   3,
		EnableMetrics:      true,
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *ClientConfig) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "ClientConfig")

	if c.HTTPRequestTimeout <= 0 {
		c.HTTPRequestTimeout = 30 * time.Second
		logger.Debug("Applied default HTTPRequestTimeout")
	}

	if c.RequestRateLimit < 0 {
		c.RequestRateLimit = 0
		logger.Debug("Applied default RequestRateLimit")
	}

	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 3
		logger.Debug("Applied default MaxRetryAttempts")
	}
}
