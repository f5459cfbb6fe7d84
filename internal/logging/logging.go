// Package logging builds the logrus logger used by the command line tools.
// Informational lines go to one writer and errors to another, so that a
// failed run reports on stderr while progress stays on stdout.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

var errorLevels = []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}

var infoLevels = []logrus.Level{logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel, logrus.TraceLevel}

// New returns a logger at the given level that writes warnings and below to
// stdout and errors to stderr.
func New(level string, stdout, stderr io.Writer) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(&writer.Hook{Writer: stdout, LogLevels: infoLevels})
	logger.AddHook(&writer.Hook{Writer: stderr, LogLevels: errorLevels})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)

	return logrus.NewEntry(logger), nil
}
