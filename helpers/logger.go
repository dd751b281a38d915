package helpers

import (
	"fmt"
	"os"
	"sync"
	"time"

	"pokequant/priceworker/logger"
)

// LoggerInterface defines the interface for logger implementations
type LoggerInterface interface {
	LogError(jobName string, err error)
}

// Logger appends job failures to a file
type Logger struct {
	mu        sync.Mutex
	errorFile string
}

// NewLogger creates a new logger instance
func NewLogger(errorFile string) *Logger {
	return &Logger{
		errorFile: errorFile,
	}
}

// LogError logs an error to a file with job name and timestamp
func (l *Logger) LogError(jobName string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, fileErr := os.OpenFile(l.errorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if fileErr != nil {
		logger.ForWorker().Error().Err(fileErr).Str("file", l.errorFile).Str("job", jobName).
			Msg("Failed to open error log")
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f, "[%s] [%s] %s\n", timestamp, jobName, err.Error())
}
