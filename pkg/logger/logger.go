// Package logger provides the process-wide session log.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	globalLogger *log.Logger
	logFile      *os.File
	console      io.Writer
	mu           sync.Mutex
)

// Init opens (or appends to) the session log at logPath.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	globalLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)

	return nil
}

// SetConsole mirrors every log line to w. Pass nil to stop mirroring.
func SetConsole(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	console = w
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
		globalLogger = nil
	}
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	write("[INFO] ", format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	write("[DEBUG] ", format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	write("[ERROR] ", format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	write("[WARN] ", format, v...)
}

func write(level, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Printf(level+format, v...)
	}
	if console != nil {
		fmt.Fprintf(console, level+format+"\n", v...)
	}
}

// GetWriter returns the underlying log file, or io.Discard before Init.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
