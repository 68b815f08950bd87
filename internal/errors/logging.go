package errors

import (
	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with AppError aware helpers
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a JSON logger
func NewLogger() *Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return &Logger{Logger: logger}
}

// Wrapped adapts an existing logrus logger
func Wrapped(l *logrus.Logger) *Logger {
	return &Logger{Logger: l}
}

// LogError logs err at error level with its code and context
func (l *Logger) LogError(err error, message string, fields ...logrus.Fields) {
	l.entry(err, fields).Error(message)
}

// LogWarn logs err at warn level with its code and context
func (l *Logger) LogWarn(err error, message string, fields ...logrus.Fields) {
	l.entry(err, fields).Warn(message)
}

// LogByStatus logs server-side failures as errors and client mistakes as warnings
func (l *Logger) LogByStatus(err error, message string, fields ...logrus.Fields) {
	if HTTPStatusCode(err) >= 500 {
		l.LogError(err, message, fields...)
		return
	}
	l.LogWarn(err, message, fields...)
}

// WithError returns an entry carrying err's structured fields
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry(err, nil)
}

func (l *Logger) entry(err error, fields []logrus.Fields) *logrus.Entry {
	entry := l.Logger.WithError(err)

	if appErr, ok := As(err); ok {
		entry = entry.WithField("error_code", appErr.Code)
		for k, v := range appErr.Context {
			entry = entry.WithField(k, v)
		}
	}

	for _, field := range fields {
		entry = entry.WithFields(field)
	}
	return entry
}
