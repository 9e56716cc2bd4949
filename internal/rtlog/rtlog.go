// Package rtlog centralizes the runtime's logging configuration. Every
// component gets a *logrus.Entry tagged with its own "component" field
// so concurrent subsystems stay distinguishable in one log stream.
package rtlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once   sync.Once
	logger *logrus.Logger
)

// base returns the process-wide logrus instance, configuring it from
// RT_DEBUG on first use.
func base() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		if os.Getenv("RT_DEBUG") == "1" {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
	})
	return logger
}

// SetVerbose forces debug-level logging regardless of RT_DEBUG, used by
// the CLI's -v/--verbose flag.
func SetVerbose() {
	base().SetLevel(logrus.DebugLevel)
}

// For returns a component-scoped logger, e.g. rtlog.For("cgroup").
func For(component string) *logrus.Entry {
	return base().WithField("component", component)
}

// WithCorrelation attaches a per-verb correlation ID to a component
// logger so concurrent create/delete calls can be told apart in the
// log stream.
func WithCorrelation(component, correlationID string) *logrus.Entry {
	return For(component).WithField("op", correlationID)
}
