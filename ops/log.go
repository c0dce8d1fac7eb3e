// Package ops provides the ambient logging and metrics stack shared by
// every daemon in this repo: structured logrus entries plus a small set
// of Prometheus collectors.
package ops

import (
	log "github.com/sirupsen/logrus"
)

// Component returns a logrus.Entry scoped to a named component (carrier,
// messenger, finder, xrlrouter, bgp.fanout, ...), the way every daemon in
// this repo should log: never log.Info directly from library code, always
// through a Component-scoped entry so fields are consistent across
// packages.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}

// Fatal logs msg with the given fields and aborts the process. Used for
// fatal invariant violations: a programmer error, not peer misbehavior,
// which must not be survived.
func Fatal(entry *log.Entry, msg string, fields log.Fields) {
	entry.WithFields(fields).Fatal(msg)
}

// InitLogging configures the global logrus logger's level and formatter.
// Neither cmd/finder nor cmd/xrld calls it, and package config has no
// log-level flag, so those daemons log with logrus's defaults.
func InitLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	return nil
}
