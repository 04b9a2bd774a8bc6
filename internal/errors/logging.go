package errors

import (
	"github.com/sirupsen/logrus"
)

// Logger adds AppError code, retryability and context to log entries
type Logger struct {
	*logrus.Logger
}

// WrapLogger reuses an existing logrus logger, or a JSON logger when nil
func WrapLogger(logger *logrus.Logger) *Logger {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Logger{Logger: logger}
}

func (l *Logger) LogError(err error, message string, fields ...logrus.Fields) {
	l.entry(err, fields...).Error(message)
}

func (l *Logger) LogWarn(err error, message string, fields ...logrus.Fields) {
	l.entry(err, fields...).Warn(message)
}

// LogRetryableError logs at warn level when the failure is worth retrying
// and at error level otherwise.
func (l *Logger) LogRetryableError(err error, message string, fields ...logrus.Fields) {
	if IsRetryable(err) {
		l.LogWarn(err, message, fields...)
		return
	}
	l.LogError(err, message, fields...)
}

// WithError returns an entry carrying err and its AppError details
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry(err)
}

func (l *Logger) entry(err error, fields ...logrus.Fields) *logrus.Entry {
	entry := l.Logger.WithError(err)

	if appErr, ok := As(err); ok {
		entry = entry.WithFields(logrus.Fields{
			"error_code": appErr.Code,
			"retryable":  appErr.Retryable,
		})
		for k, v := range appErr.Context {
			entry = entry.WithField(k, v)
		}
	}

	for _, f := range fields {
		entry = entry.WithFields(f)
	}
	return entry
}
