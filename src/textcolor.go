package pdm

// Logging.  The command line verbosity count maps onto logger levels.

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

type log_level_e int

const (
	LOG_LEVEL_ERROR log_level_e = iota
	LOG_LEVEL_INFO
	LOG_LEVEL_DEBUG
)

var logger = log.NewWithOptions(os.Stderr, log.Options{ //nolint:exhaustruct
	Prefix: "pdm",
})

// text_color_init sets how chatty we are.  0 is errors only, 2 and up is debug.
func text_color_init(level int) {
	switch {
	case level <= int(LOG_LEVEL_ERROR):
		logger.SetLevel(log.ErrorLevel)
	case level == int(LOG_LEVEL_INFO):
		logger.SetLevel(log.InfoLevel)
	default:
		logger.SetLevel(log.DebugLevel)
	}
}

// SetLogOutput redirects the logger, mostly for tests.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}
