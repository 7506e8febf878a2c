package store

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	logger      *logrus.Logger
	pingTimeout time.Duration
}

func defaultOptions() openOptions {
	return openOptions{
		logger:      logrus.StandardLogger(),
		pingTimeout: 10 * time.Second,
	}
}

// WithLogger routes gorm's query log through logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(opts *openOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithPingTimeout bounds the connectivity check made by Open.
func WithPingTimeout(d time.Duration) Option {
	return func(opts *openOptions) {
		if d > 0 {
			opts.pingTimeout = d
		}
	}
}
