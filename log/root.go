// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.
//
// The ledgerstore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ledgerstore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ledgerstore library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/sirupsen/logrus"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	root = &logger{ctx: []interface{}{}, mapPool: sync.Pool{
		New: func() any {
			return map[string]interface{}{}
		},
	}}
	terminal = logrus.New()

	logManager *LogManager
)

type Lvl int

const skipLevel = 3

const (
	LvlCrit Lvl = iota
	LvlFatal
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

// LoggerConfig controls console/file output, rotation, and retention.
type LoggerConfig struct {
	LogFile      string `json:"name" yaml:"name"`
	Level        string `json:"level" yaml:"level"`
	MaxSize      int    `json:"max_size" yaml:"max_size"`
	MaxBackups   int    `json:"max_count" yaml:"max_count"`
	MaxAge       int    `json:"max_day" yaml:"max_day"`
	Compress     bool   `json:"compress" yaml:"compress"`
	TotalSizeCap int    `json:"total_size_cap" yaml:"total_size_cap"`
	LocalTime    bool   `json:"local_time" yaml:"local_time"`
	Console      bool   `json:"console" yaml:"console"`
	JSONFormat   bool   `json:"json_format" yaml:"json_format"`
}

// DefaultLoggerConfig returns console-only, text-formatted, info-level logging.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		LogFile:    "",
		Level:      "info",
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
		LocalTime:  true,
		Console:    true,
		JSONFormat: true,
	}
}

// Validate fills in sane defaults for a non-positive MaxSize and for a
// negative MaxBackups or MaxAge; zero MaxBackups and MaxAge are kept.
func (c *LoggerConfig) Validate() error {
	if c.MaxSize <= 0 {
		c.MaxSize = 100
	}
	if c.MaxBackups < 0 {
		c.MaxBackups = 10
	}
	if c.MaxAge < 0 {
		c.MaxAge = 30
	}
	return nil
}

// LogManager prunes rotated log files once their combined size exceeds a cap.
type LogManager struct {
	logDir        string
	totalSizeCap  int64
	checkInterval time.Duration
	cancel        context.CancelFunc
	mu            sync.Mutex
}

// NewLogManager builds a manager that caps logDir's *.log/*.gz files at
// totalSizeCapMB megabytes, checking hourly.
func NewLogManager(logDir string, totalSizeCapMB int) *LogManager {
	return &LogManager{
		logDir:        logDir,
		totalSizeCap:  int64(totalSizeCapMB) * 1024 * 1024,
		checkInterval: time.Hour,
	}
}

// Start launches the background cleanup loop. A non-positive cap disables it.
func (m *LogManager) Start() {
	if m.totalSizeCap <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	go func() {
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()

		m.cleanup()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.cleanup()
			}
		}
	}()
}

// Stop cancels the background cleanup loop.
func (m *LogManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *LogManager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := m.getLogFiles()
	if err != nil {
		return
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.size
	}

	for totalSize > m.totalSizeCap && len(files) > 1 {
		oldest := files[0]
		if err := os.Remove(oldest.path); err == nil {
			totalSize -= oldest.size
			files = files[1:]
			Info("Log cleanup: removed old file", "file", filepath.Base(oldest.path), "size_mb", oldest.size/1024/1024)
		}
	}
}

type logFileInfo struct {
	path    string
	size    int64
	modTime time.Time
}

func (m *LogManager) getLogFiles() ([]logFileInfo, error) {
	var files []logFileInfo

	err := filepath.Walk(m.logDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext == ".log" || ext == ".gz" {
			files = append(files, logFileInfo{path: path, size: info.Size(), modTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	return files, nil
}

// Init wires up console and/or rotating-file logging under dataDir/log.
// When config.LogFile is empty, only the console formatter is configured.
func Init(dataDir string, config LoggerConfig) {
	_ = config.Validate()

	formatter := new(prefixed.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	formatter.DisableColors = false

	lvl, _ := logrus.ParseLevel(config.Level)

	if config.LogFile == "" {
		terminal.SetFormatter(formatter)
		terminal.SetLevel(lvl)
		terminal.SetOutput(os.Stdout)
		return
	}

	logDir := filepath.Join(dataDir, "log")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		return
	}

	logPath := filepath.Join(logDir, config.LogFile)

	lj := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
		LocalTime:  config.LocalTime,
	}

	var fileFormatter logrus.Formatter
	if config.JSONFormat {
		jsonFormatter := new(logrus.JSONFormatter)
		jsonFormatter.TimestampFormat = "2006-01-02 15:04:05"
		fileFormatter = jsonFormatter
	} else {
		textFormatter := new(prefixed.TextFormatter)
		textFormatter.TimestampFormat = "2006-01-02 15:04:05"
		textFormatter.FullTimestamp = true
		textFormatter.DisableColors = true
		fileFormatter = textFormatter
	}

	terminal.SetFormatter(fileFormatter)
	terminal.SetLevel(lvl)

	if config.Console {
		terminal.SetOutput(io.MultiWriter(lj, os.Stdout))
	} else {
		terminal.SetOutput(lj)
	}

	if config.TotalSizeCap > 0 {
		logManager = NewLogManager(logDir, config.TotalSizeCap)
		logManager.Start()
	}

	Info("Logger initialized",
		"file", logPath,
		"level", config.Level,
		"max_size_mb", config.MaxSize,
		"max_backups", config.MaxBackups,
		"max_age_days", config.MaxAge,
		"compress", config.Compress,
		"total_size_cap_mb", config.TotalSizeCap,
	)
}

// Close stops any background log-management goroutine.
func Close() {
	if logManager != nil {
		logManager.Stop()
	}
}

// New returns a new logger with the given context.
func New(ctx ...interface{}) Logger {
	return root.New(ctx...)
}

// Root returns the root logger.
func Root() Logger {
	return root
}

func Trace(msg string, ctx ...interface{}) { root.write(msg, LvlTrace, ctx, skipLevel) }
func Debug(msg string, ctx ...interface{}) { root.write(msg, LvlDebug, ctx, skipLevel) }
func Info(msg string, ctx ...interface{})  { root.write(msg, LvlInfo, ctx, skipLevel) }
func Warn(msg string, ctx ...interface{})  { root.write(msg, LvlWarn, ctx, skipLevel) }
func Error(msg string, ctx ...interface{}) { root.write(msg, LvlError, ctx, skipLevel) }

func Crit(msg string, ctx ...interface{}) {
	root.write(msg, LvlCrit, ctx, skipLevel)
	os.Exit(1)
}

// A Logger writes messages with key/value context through the shared
// logrus instance.
type Logger interface {
	New(ctx ...interface{}) Logger

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

// TerminalStringer lets a type supply its own shortened, terminal-friendly
// serialization, analogous to the stdlib Stringer.
type TerminalStringer interface {
	TerminalString() string
}
