// Package pcelog wraps logrus with the level-threshold, stderr-vs-syslog
// sink selection the reference daemon's logger performs: debug mode logs
// everything to stderr, non-debug mode logs warnings and above to
// syslog.
package pcelog

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

// Logger is the package-wide logger instance used by the emergency
// through debug helper functions below. Applications embedding this
// package directly (rather than through cmd/pce) can use Logger's own
// API for structured fields.
var Logger = logrus.New()

var syslogHook *lsyslog.SyslogHook

// Open configures Logger for either debug or production use. In debug
// mode, all levels are logged to stderr with full timestamps. Otherwise,
// Warning and above are sent to the local syslog daemon under the "PCE"
// facility tag, matching pce_log_open's non-debug LOG_PID/openlog path.
func Open(debug bool) error {
	if debug {
		Logger.SetLevel(logrus.DebugLevel)
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return nil
	}

	Logger.SetLevel(logrus.WarnLevel)
	hook, err := lsyslog.NewSyslogHook("", "", syslog.LOG_USER|syslog.LOG_WARNING, "PCE")
	if err != nil {
		return err
	}
	syslogHook = hook
	Logger.AddHook(hook)
	return nil
}

// Close releases resources Open acquired. It is a no-op in debug mode.
func Close() {
	if syslogHook != nil {
		syslogHook.Writer.Close()
		syslogHook = nil
	}
}

// Emerg, Alert and Crit have no non-exiting logrus equivalent above
// Error; like the reference pce_log, which never terminates the process
// on any log call, none of these calls Fatal or Panic.
func Emerg(args ...interface{})   { Logger.Error(args...) }
func Alert(args ...interface{})   { Logger.Error(args...) }
func Crit(args ...interface{})    { Logger.Error(args...) }
func Err(args ...interface{})     { Logger.Error(args...) }
func Warning(args ...interface{}) { Logger.Warn(args...) }
func Notice(args ...interface{})  { Logger.Info(args...) }
func Info(args ...interface{})    { Logger.Info(args...) }
func Debug(args ...interface{})   { Logger.Debug(args...) }
