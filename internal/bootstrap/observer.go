package bootstrap

import (
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// Observer receives the bootstrap transcript. Every major step logs a titled
// banner first so operators can pinpoint the failing phase from the log
// alone.
type Observer interface {
	Printf(format string, v ...interface{})
	Banner(title string)
}

// logrObserver adapts a logr.Logger to the Observer interface.
type logrObserver struct {
	logger logr.Logger
}

// NewObserver creates an Observer backed by a logr.Logger.
func NewObserver(logger logr.Logger) Observer {
	return &logrObserver{logger: logger}
}

// Printf implements Observer.
func (o *logrObserver) Printf(format string, v ...interface{}) {
	o.logger.Info(fmt.Sprintf(format, v...))
}

// Banner implements Observer.
func (o *logrObserver) Banner(title string) {
	o.logger.Info(fmt.Sprintf("========== %s ==========", title))
}

// NewTeeLogger builds a logr.Logger whose output goes to both the console
// and the persistent log file, so the transcript survives for external log
// collection while staying visible on the system console. The returned
// closer releases the log file.
func NewTeeLogger(logPath string) (logr.Logger, func() error, error) {
	// #nosec G304 - logPath comes from internal config
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return logr.Logger{}, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	writer := io.MultiWriter(os.Stdout, file)
	logger := funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(writer, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(writer, args)
	}, funcr.Options{LogTimestamp: true})

	return logger, file.Close, nil
}
