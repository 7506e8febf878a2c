package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowThreshold = 200 * time.Millisecond

// Logger adapts logrus to gorm's logger interface. Queries are logged at
// debug, slow queries at warn and failures at error. Missing rows are
// ordinary lookups and stay at debug.
type Logger struct {
	log   *logrus.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewLogger(log *logrus.Logger, slow time.Duration) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if slow <= 0 {
		slow = defaultSlowThreshold
	}
	return &Logger{log: log, level: gormlogger.Info, slow: slow}
}

func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *Logger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.WithContext(ctx).Infof(msg, data...)
	}
}

func (l *Logger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.WithContext(ctx).Warnf(msg, data...)
	}
}

func (l *Logger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.WithContext(ctx).Errorf(msg, data...)
	}
}

func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	entry := l.log.WithContext(ctx).WithFields(logrus.Fields{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": float64(elapsed.Microseconds()) / 1000,
	})
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		entry.WithError(err).Error("db_query_failed")
	case elapsed > l.slow && l.level >= gormlogger.Warn:
		entry.Warn(fmt.Sprintf("db_query_slow >= %v", l.slow))
	case l.level >= gormlogger.Info:
		entry.Debug("db_query")
	}
}
