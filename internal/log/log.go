package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// InitLogs builds the process logger. Diagnostics go to stderr so build
// output on stdout stays machine readable.
func InitLogs(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// Discard returns a logger that drops everything. Used as the default when a
// component is constructed without a logger.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// WithDocument scopes a logger to one document being aggregated.
func WithDocument(doc string, inner logrus.FieldLogger) logrus.FieldLogger {
	return inner.WithField("doc", doc)
}
