// Package logging centralizes the logrus setup shared by the partition,
// coordinator, and top-level launcher processes: a text formatter with
// timestamps, a parsed level from configuration, and the per-process
// static fields (partition_id for partition-scope logs, role for the
// coordinator and launcher). No step field is added to any log line.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing to stderr at the given level. An
// unrecognized level falls back to info rather than failing startup.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// ForPartition returns a logger entry tagged with this process's
// partition id, the field every partition-scope log line carries.
func ForPartition(log *logrus.Logger, partitionID int) *logrus.Entry {
	return log.WithField("partition_id", partitionID)
}

// ForCoordinator returns a logger entry tagged with the coordinator's
// role. The coordinator keeps no step count, so its log lines carry no
// step field.
func ForCoordinator(log *logrus.Logger) *logrus.Entry {
	return log.WithField("role", "coordinator")
}

// ForLauncher returns a logger entry tagged with the top-level
// launcher's role.
func ForLauncher(log *logrus.Logger) *logrus.Entry {
	return log.WithField("role", "launcher")
}

// FatalExit logs err at Fatal level (which itself calls os.Exit(1) inside
// logrus) with a consistent message prefix. Callers that need a specific
// non-1 exit code should log at Error level and return the code to
// main's os.Exit directly instead of calling FatalExit.
func FatalExit(entry *logrus.Entry, msg string, err error) {
	entry.WithError(err).Fatal(msg)
}

// ParseLevelOrDefault is a small helper for flag validation: it returns
// level if it is a logrus level string and fallback otherwise, without
// constructing a logger.
func ParseLevelOrDefault(level, fallback string) string {
	if _, err := logrus.ParseLevel(level); err != nil {
		return fallback
	}
	return level
}
