package scheduler

import (
	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
)

// cronLogger routes gocron's internal logging through the application logger.
type cronLogger struct {
	log *log.Logger
}

var _ gocron.Logger = (*cronLogger)(nil)

func newCronLogger() *cronLogger {
	return &cronLogger{
		log: log.Default().WithPrefix("scheduler"),
	}
}

func (c *cronLogger) Debug(msg string, args ...any) { c.log.Debug(msg, args...) }
func (c *cronLogger) Error(msg string, args ...any) { c.log.Error(msg, args...) }
func (c *cronLogger) Info(msg string, args ...any)  { c.log.Info(msg, args...) }
func (c *cronLogger) Warn(msg string, args ...any)  { c.log.Warn(msg, args...) }
