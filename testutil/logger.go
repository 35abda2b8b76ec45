package testutil

import (
	"flag"
	"os"

	log "github.com/sirupsen/logrus"
)

var (
	logFile = flag.String("log-file", "", "`file` to use for logging")
	logLevel = flag.String("log-level", "info",
		"log level: trace, debug, info, warn, error, fatal, or panic")
	logStderr = flag.Bool("log-stderr", false, "log to standard error")
)

// SetupLogger returns a logger for engines that take one, writing to file
// unless overridden by the -log-file or -log-stderr test flags.
func SetupLogger(file string) *log.Logger {
	logger := log.New()

	if !*logStderr {
		if *logFile != "" {
			file = *logFile
		}
		w, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			panic(err)
		}
		logger.SetOutput(w)
	}

	ll, err := log.ParseLevel(*logLevel)
	if err != nil {
		panic(err)
	}
	logger.SetLevel(ll)

	logger.WithField("pid", os.Getpid()).Info("tests starting")
	return logger
}
