package logger

import (
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// Fields aliases logrus.Fields so callers never import logrus directly.
type Fields = logrus.Fields

type Settings struct {
	Format string // "json" or "text"
	Level  string // debug|info|warn|error
	File   string // optional path prefix for rotating log files
}

var std = logrus.New()

// Init configures the shared logger. When File is set, log lines are mirrored
// to daily-rotated files kept for a week.
func Init(s Settings) error {
	std.SetOutput(os.Stdout)

	if strings.ToLower(s.Format) == "json" {
		std.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(strings.TrimSpace(s.Level))
	if err != nil || s.Level == "" {
		lvl = logrus.InfoLevel
	}
	std.SetLevel(lvl)

	if s.File != "" {
		writer, err := rotatelogs.New(
			s.File+".%Y%m%d",
			rotatelogs.WithLinkName(s.File),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithMaxAge(7*24*time.Hour),
		)
		if err != nil {
			return err
		}
		std.AddHook(lfshook.NewHook(lfshook.WriterMap{
			logrus.DebugLevel: writer,
			logrus.InfoLevel:  writer,
			logrus.WarnLevel:  writer,
			logrus.ErrorLevel: writer,
			logrus.FatalLevel: writer,
		}, std.Formatter))
	}
	return nil
}

func WithFields(f Fields) *logrus.Entry { return std.WithFields(f) }

func WithError(err error) *logrus.Entry { return std.WithError(err) }

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }

func Infof(format string, args ...interface{}) { std.Infof(format, args...) }

func Warnf(format string, args ...interface{}) { std.Warnf(format, args...) }

func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

func Fatalf(format string, args ...interface{}) { std.Fatalf(format, args...) }
