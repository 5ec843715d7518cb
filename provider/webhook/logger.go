package webhook

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// leveledLogger lets retryablehttp write through logrus.
type leveledLogger struct {
	logger logrus.FieldLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Error(msg)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Info(msg)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Debug(msg)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Warn(msg)
}

func (l *leveledLogger) entry(keysAndValues []interface{}) logrus.FieldLogger {
	fields := logrus.Fields{}

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}

	return l.logger.WithFields(fields)
}
