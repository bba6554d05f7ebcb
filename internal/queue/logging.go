package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// asynqLogger routes asynq's internal logging into slog. Error lines are
// also surfaced as worker error events.
type asynqLogger struct {
	log     *slog.Logger
	onError func(error)
}

func newAsynqLogger(log *slog.Logger, onError func(error)) *asynqLogger {
	return &asynqLogger{log: log.With("component", "asynq"), onError: onError}
}

func (l *asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }

func (l *asynqLogger) Error(args ...any) {
	msg := fmt.Sprint(args...)
	l.log.Error(msg)
	if l.onError != nil {
		l.onError(errors.New(msg))
	}
}

func (l *asynqLogger) Fatal(args ...any) {
	l.log.Error(fmt.Sprint(args...), "fatal", true)
	os.Exit(1)
}
