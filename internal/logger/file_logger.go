// Package logger writes the per-account activity log. The standard log
// package handles process output; this file keeps a dated on-disk record
// of signals, orders and realized trades for later review.
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends timestamped entries to a per-account, per-day log file.
type Logger struct {
	account string
	logDir  string
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
}

// LogLevel tags the kind of entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelSignal  LogLevel = "SIGNAL"
	LogLevelTrade   LogLevel = "TRADE"
)

// NewLogger opens (or creates) today's log file for the account.
func NewLogger(account string) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath(logDir, account), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		account: account,
		logDir:  logDir,
		logFile: file,
		logger:  log.New(file, "", 0),
	}
	l.writeSessionHeader()
	return l, nil
}

func logPath(dir, account string) string {
	filename := fmt.Sprintf("%s_%s.log", account, time.Now().Format("2006-01-02"))
	return filepath.Join(dir, filename)
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
🚀 REVERSAL SCANNER SESSION STARTED
================================================================================
Account: %s
Started: %s
================================================================================
`, l.account, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes one formatted entry with the given level.
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s", timestamp, level, message)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Signal records a detected setup before any filter has run.
func (l *Logger) Signal(symbol, timeframe, side, pattern string, trigger, stop float64) {
	l.Log(LogLevelSignal, "%s %s %s %s | entry %.6g stop %.6g",
		symbol, timeframe, side, pattern, trigger, stop)
}

// Trade records an order placement or fill.
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// LogRealized records one closed order with its attribution.
func (l *Logger) LogRealized(symbol, timeframe, tradeID string, pnl float64, numFills int) {
	l.Trade("realized %s %s %s: %.2f USD across %d fills", symbol, timeframe, tradeID, pnl, numFills)
}

// LogError logs an error with context.
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// Close writes the session footer and closes the file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return nil
	}
	footer := fmt.Sprintf(`
================================================================================
🛑 REVERSAL SCANNER SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, time.Now().Format("2006-01-02 15:04:05"))
	l.logger.Print(footer)
	return l.logFile.Close()
}

// GetLogPath returns today's log file path for the account.
func (l *Logger) GetLogPath() string {
	return logPath(l.logDir, l.account)
}
