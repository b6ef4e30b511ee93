package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu   sync.Mutex
	base = newBase(os.Stderr)
)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init configures the shared logger. An empty level keeps the current one.
func Init(w io.Writer, level string) error {
	mu.Lock()
	defer mu.Unlock()

	if w != nil {
		base.SetOutput(w)
	}
	level = strings.TrimSpace(level)
	if level == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}

// SetVerbose switches the shared logger to debug level.
func SetVerbose(verbose bool) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		base.SetLevel(logrus.DebugLevel)
	}
}

// For returns a logger entry tagged with the given module name.
func For(module string) *logrus.Entry {
	return base.WithField("module", module)
}
