package countdown

import (
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("component", "countdown")

func info(args ...any) {
	logger.Infoln(args...)
}

func debug(args ...any) {
	logger.Debugln(args...)
}

func warn(args ...any) {
	logger.Warnln(args...)
}
