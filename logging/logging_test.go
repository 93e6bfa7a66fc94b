package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	dir := t.TempDir()

	// a regular file cannot be used as a log directory
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatalf("Failed to create blocker file: %v", err)
	}

	tests := []struct {
		name          string
		logLevel      string
		logFilePath   string
		expectedError bool
		expectedDebug bool
	}{
		{
			name:          "Debug level writes debug lines",
			logLevel:      "debug",
			logFilePath:   filepath.Join(dir, "debug", "llmem.log"),
			expectedDebug: true,
		},
		{
			name:        "Info level drops debug lines",
			logLevel:    "info",
			logFilePath: filepath.Join(dir, "info.log"),
		},
		{
			name:        "Empty level defaults to info",
			logLevel:    "",
			logFilePath: filepath.Join(dir, "default.log"),
		},
		{
			name:          "Unknown level",
			logLevel:      "loud",
			logFilePath:   filepath.Join(dir, "loud.log"),
			expectedError: true,
		},
		{
			name:          "Unwritable log directory",
			logLevel:      "debug",
			logFilePath:   filepath.Join(blocker, "llmem.log"),
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Init(Options{Level: tt.logLevel, FilePath: tt.logFilePath})
			if (err != nil) != tt.expectedError {
				t.Fatalf("Init() error = %v, expectedError %v", err, tt.expectedError)
			}
			if tt.expectedError {
				return
			}

			InfoLogger.Info().Msg("This is an info message")
			ErrorLogger.Error().Msg("This is an error message")
			DebugLogger.Debug().Msg("This is a debug message")

			data, err := os.ReadFile(tt.logFilePath)
			if err != nil {
				t.Fatalf("Failed to read log file: %v", err)
			}
			logContent := string(data)

			if !strings.Contains(logContent, "This is an info message") {
				t.Errorf("Info log message not found in log file: %s", logContent)
			}
			if !strings.Contains(logContent, "This is an error message") {
				t.Errorf("Error log message not found in log file: %s", logContent)
			}
			if tt.expectedDebug && !strings.Contains(logContent, "This is a debug message") {
				t.Errorf("Expected debug log message not found in log file: %s", logContent)
			}
			if !tt.expectedDebug && strings.Contains(logContent, "This is a debug message") {
				t.Errorf("Unexpected debug log message found in log file: %s", logContent)
			}
		})
	}
}

func TestDefaultLogFilePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	got, err := DefaultLogFilePath()
	if err != nil {
		t.Fatalf("DefaultLogFilePath() error = %v", err)
	}
	if expected := filepath.Join(home, ".config", "llmem", "llmem.log"); got != expected {
		t.Errorf("DefaultLogFilePath() = %v, want %v", got, expected)
	}
}
