package darkrecon

import (
	"github.com/sirupsen/logrus"
)

// Log is the package logger. Defaults to the logrus standard logger so
// that the cmd frontend can set the level globally.
var Log = logrus.StandardLogger()

// logger returns a log entry with the fields shared by all attempts of
// one (provider, target) call.
func logger(provider, target string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"provider": provider,
		"target":   target,
	})
}
