package main

import (
	"os"
	"time"

	gateway "github.com/adonese/crud/apigateway"
	"github.com/sirupsen/logrus"
)

// configureLogger applies cfg.Log to the process logger and returns the
// access log sampling it asks for. cfg must have been through Defaults.
func configureLogger(cfg Config) gateway.LogSamplingConfig {
	logrusLogger.Out = os.Stderr
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrusLogger.SetLevel(level)
	logrusLogger.SetReportCaller(cfg.Debug)

	switch cfg.Log.Format {
	case "text":
		logrusLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	default:
		logrusLogger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return gateway.LogSamplingConfig{
		Tick:  time.Duration(cfg.Log.SamplingTickMs) * time.Millisecond,
		After: time.Duration(cfg.Log.SamplingAfterMs) * time.Millisecond,
	}
}
