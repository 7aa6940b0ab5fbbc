package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/cpsdecode/cpsdecode/internal/config"
)

// configureLogging sets the global logger's level, output and formatter.
// The "auto" format uses coloured text on a terminal and JSON otherwise.
func configureLogging(cfg config.LogConfig, verbose bool, w io.Writer) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetOutput(w)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		if isTerminal(w) {
			log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
		} else {
			log.SetFormatter(&log.JSONFormatter{})
		}
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
