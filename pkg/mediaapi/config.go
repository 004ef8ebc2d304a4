package mediaapi

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/fgp-bot/fgpbot/pkg/retry"
)

// MaxLimit is the largest page size the API accepts.
const MaxLimit = 320

// Config holds the media API credentials and client limits.
type Config struct {
	Username       string
	APIKey         string
	UserAgent      string
	BaseURL        string
	MaxRequests    int
	MaxWorkers     int
	RequestTimeout time.Duration

	// Interval is the minimum spacing between requests once the burst
	// of MaxRequests is spent.
	Interval time.Duration
	Retry    retry.Config
}

// DefaultConfig returns the limits the bot has always used.
func DefaultConfig() Config {
	return Config{
		MaxRequests:    2,
		MaxWorkers:     2,
		RequestTimeout: 10 * time.Second,
		Interval:       3 * time.Second,
		Retry: retry.Config{
			MaxRetries:     2,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
			Multiplier:     2.0,
		},
	}
}

// Validate reports every missing or invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.UserAgent == "" {
		errs = append(errs, errors.New("user agent must be provided"))
	}
	if c.Username == "" || c.APIKey == "" {
		errs = append(errs, errors.New("username and API key must be provided"))
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid base URL %q", c.BaseURL))
		}
	}
	if c.MaxRequests < 1 {
		errs = append(errs, fmt.Errorf("max requests must be positive, got %d", c.MaxRequests))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max workers must be positive, got %d", c.MaxWorkers))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	return errors.Join(errs...)
}
