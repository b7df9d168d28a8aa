// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"fmt"
	"log"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileEnv names a file that receives a JSON copy of every log line.
const LogFileEnv = "CORESIGHT_LOG_FILE"

var (
	LogContainer     = logContainer{level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}
	loggerInit       sync.Once
	simpleLoggerInit sync.Once
)

type logContainer struct {
	level        zap.AtomicLevel
	logger       *zap.Logger
	simpleLogger *zap.SugaredLogger
}

// GetLogger returns the pointer to the logger and creates one if none exists
func (l *logContainer) GetLogger() *zap.Logger {
	loggerInit.Do(func() {
		l.logger = zap.New(l.getCombinedCore())
	})
	return l.logger
}

// GetSimpleLogger returns the pointer to the sugared logger and creates one
// if none exists
func (l *logContainer) GetSimpleLogger() *zap.SugaredLogger {
	simpleLoggerInit.Do(func() {
		l.simpleLogger = l.GetLogger().Sugar()
	})
	return l.simpleLogger
}

// SetLevel changes the level of all loggers handed out so far
func (l *logContainer) SetLevel(lvl zapcore.Level) {
	l.level.SetLevel(lvl)
}

// Level returns the current log level
func (l *logContainer) Level() zapcore.Level {
	return l.level.Level()
}

// String mirrors zap.String
func (l *logContainer) String(key string, val string) zap.Field {
	return zap.String(key, val)
}

// Int mirrors zap.Int
func (l *logContainer) Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

// Hex formats val as a zero padded 32-bit hexadecimal string
func (l *logContainer) Hex(key string, val uint32) zap.Field {
	return zap.Stringer(key, hex32(val))
}

type hex32 uint32

func (h hex32) String() string {
	return fmt.Sprintf("%#010x", uint32(h))
}

func getConsoleEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getJsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.EpochTimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func getLogWriter(path string) zapcore.WriteSyncer {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("unable to open logfile: %v", err)
	}
	return zapcore.AddSync(f)
}

func (l *logContainer) getConsoleCore() zapcore.Core {
	return zapcore.NewCore(getConsoleEncoder(), zapcore.Lock(os.Stderr), l.level)
}

func (l *logContainer) getCombinedCore() zapcore.Core {
	path := os.Getenv(LogFileEnv)
	if path == "" {
		return l.getConsoleCore()
	}
	return zapcore.NewTee(l.getConsoleCore(), zapcore.NewCore(getJsonEncoder(), getLogWriter(path), l.level))
}
