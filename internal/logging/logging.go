// Package logging provides go-log/log implementations used by the binaries.
package logging

import (
	"fmt"
	stdlog "log"
	"os"

	"github.com/go-log/log"
)

// LogLogger writes through the standard library logger.
type LogLogger struct{}

// Log uses the standard log library log.Output
func (l *LogLogger) Log(v ...interface{}) {
	stdlog.Output(3, fmt.Sprintln(v...))
}

// Logf uses the standard log library log.Output
func (l *LogLogger) Logf(format string, v ...interface{}) {
	stdlog.Output(3, fmt.Sprintf(format, v...))
}

// NopLogger discards everything.
type NopLogger struct{}

// Log does nothing
func (l *NopLogger) Log(v ...interface{}) {}

// Logf does nothing
func (l *NopLogger) Logf(format string, v ...interface{}) {}

// Install makes the standard library logger the go-log default. When file is
// not empty, output is appended to it instead of stderr.
func Install(file string) error {
	stdlog.SetFlags(stdlog.LstdFlags | stdlog.Lshortfile)
	if file != "" {
		f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0640)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		stdlog.SetOutput(f)
	}
	log.DefaultLogger = &LogLogger{}
	return nil
}

// Warnf logs a warning through the go-log default logger.
func Warnf(format string, v ...interface{}) {
	log.Logf("[warn] "+format, v...)
}
