// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.

package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level Lvl
		name  string
	}{
		{LvlCrit, "Crit"},
		{LvlFatal, "Fatal"},
		{LvlError, "Error"},
		{LvlWarn, "Warn"},
		{LvlInfo, "Info"},
		{LvlDebug, "Debug"},
		{LvlTrace, "Trace"},
	}

	for i, tt := range tests {
		if int(tt.level) != i {
			t.Errorf("Level %s expected value %d, got %d", tt.name, i, tt.level)
		}
	}
}

func TestLoggerInterface(t *testing.T) {
	var _ Logger = &logger{}
}

func TestRootLogger(t *testing.T) {
	if Root() == nil {
		t.Fatal("Root logger should not be nil")
	}
}

func TestNewLogger(t *testing.T) {
	l := New("module", "test")
	if l == nil {
		t.Fatal("New logger should not be nil")
	}
}

func TestLogManagerCreation(t *testing.T) {
	manager := NewLogManager("/tmp/test_logs", 100)
	if manager.logDir != "/tmp/test_logs" {
		t.Errorf("expected logDir /tmp/test_logs, got %s", manager.logDir)
	}
	if manager.totalSizeCap != 100*1024*1024 {
		t.Errorf("expected totalSizeCap %d, got %d", 100*1024*1024, manager.totalSizeCap)
	}
}

func TestLogManagerStartStop(t *testing.T) {
	manager := NewLogManager("/tmp/test_logs", 100)
	manager.Start()
	time.Sleep(10 * time.Millisecond)
	manager.Stop()
}

func TestLogManagerNoSizeCap(t *testing.T) {
	manager := NewLogManager("/tmp/test_logs", 0)
	manager.Start() // no background task, cap is zero
	manager.Stop()
}

func TestInitConsoleOnly(t *testing.T) {
	Init(t.TempDir(), LoggerConfig{LogFile: "", Level: "info", Console: true})
	Info("test console output")
}

func TestInitWithFile(t *testing.T) {
	tmpDir := t.TempDir()
	Init(tmpDir, LoggerConfig{
		LogFile:    "test.log",
		Level:      "debug",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     1,
		Console:    true,
		JSONFormat: true,
		LocalTime:  true,
	})
	Info("test file output")

	logDir := filepath.Join(tmpDir, "log")
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Errorf("log directory was not created: %s", logDir)
	}
	Close()
}

func TestLogOutputLevels(t *testing.T) {
	tmpDir := t.TempDir()
	Init(tmpDir, LoggerConfig{LogFile: "test.log", Level: "trace", MaxSize: 10, JSONFormat: true})

	Trace("trace message")
	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")
	Info("with context", "key1", "value1", "key2", 123)

	Close()
}

func TestLoggerWithContext(t *testing.T) {
	l := New("module", "test", "version", "1.0")
	l.Info("test message", "extra", "data")
}

func TestLogFileInfo(t *testing.T) {
	info := logFileInfo{path: "/tmp/test.log", size: 1024, modTime: time.Now()}
	if info.path != "/tmp/test.log" {
		t.Errorf("expected path /tmp/test.log, got %s", info.path)
	}
	if info.size != 1024 {
		t.Errorf("expected size 1024, got %d", info.size)
	}
}

func BenchmarkLogInfo(b *testing.B) {
	tmpDir := b.TempDir()
	Init(tmpDir, LoggerConfig{LogFile: "bench.log", Level: "info", MaxSize: 100, JSONFormat: true})
	defer Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info("benchmark message", "iteration", i)
	}
}
