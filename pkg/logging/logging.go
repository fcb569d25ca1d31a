// pkg/logging/logging.go - Timestamped logging package for DeployWrap
//
// Each run writes into its own timestamped subdirectory
// (YYYY-MM-DD-HHMMss format) under the base log directory:
// - deploy.log      traditional line-oriented log
// - events.jsonl    structured entries for external monitoring tools
// - session.yaml    session metadata
// Old run directories are cleaned up according to a retention policy.

package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/windowsadmins/deploywrap/pkg/config"
	"gopkg.in/yaml.v3"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	// Define log levels.
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

func parseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// LogEntry represents a structured log entry compatible with external monitoring tools
type LogEntry struct {
	Time       int64                  `json:"time" yaml:"time"`
	Timestamp  string                 `json:"timestamp" yaml:"timestamp"`
	Level      string                 `json:"level" yaml:"level"`
	Message    string                 `json:"message" yaml:"message"`
	Component  string                 `json:"component" yaml:"component"`
	PID        int64                  `json:"pid" yaml:"pid"`
	Hostname   string                 `json:"hostname" yaml:"hostname"`
	SessionID  string                 `json:"session_id" yaml:"session_id"`
	Properties map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// RetentionPolicy defines log retention rules
type RetentionPolicy struct {
	MaxRuns    int // Keep last N run directories (default: 20)
	MaxAgeDays int // Maximum age in days before deletion (default: 30)
}

// DefaultRetentionPolicy returns sensible defaults for log retention
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		MaxRuns:    20,
		MaxAgeDays: 30,
	}
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	BaseDir       string
	Component     string
	SessionID     string
	Retention     RetentionPolicy
	EnableJSON    bool
	EnableConsole bool
	FileLogging   bool
}

// Logger encapsulates the logging functionality with timestamped directories.
type Logger struct {
	mu           sync.RWMutex
	logger       *log.Logger
	logLevel     LogLevel
	logFile      *os.File
	jsonFile     *os.File
	config       LoggerConfig
	sessionStart time.Time
	logDir       string
	hostname     string
}

// singleton instance and sync.Once for thread-safe initialization
var (
	instance *Logger
	once     sync.Once
)

// Init initializes the singleton Logger based on the provided configuration.
// It must be called before any logging functions are used.
func Init(cfg *config.Configuration) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(cfg)
	})
	return initErr
}

// generateSessionID creates a unique session identifier
func generateSessionID() string {
	return fmt.Sprintf("deploywrap-%d-%s", time.Now().Unix(),
		time.Now().Format("2006-01-02-150405"))
}

// newLogger creates a new Logger instance based on the configuration.
func newLogger(cfg *config.Configuration) (*Logger, error) {
	logCfg := LoggerConfig{
		BaseDir:       filepath.Join(`C:\ProgramData\DeployWrap`, `logs`),
		Component:     "deploywrap",
		SessionID:     generateSessionID(),
		Retention:     DefaultRetentionPolicy(),
		EnableJSON:    true,
		EnableConsole: true,
		FileLogging:   cfg.LoggingEnabled,
	}

	sessionStart := time.Now()
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	logger := &Logger{
		config:       logCfg,
		sessionStart: sessionStart,
		logLevel:     parseLevel(cfg.LogLevel),
		hostname:     hostname,
	}
	if cfg.Debug {
		logger.logLevel = LevelDebug
	}

	if !logCfg.FileLogging {
		// Logging disabled on the command line: console only.
		logger.logger = log.New(os.Stdout, "", 0)
		return logger, nil
	}

	// Create timestamped log directory. Format: YYYY-MM-DD-HHMMss
	logDir := filepath.Join(logCfg.BaseDir, sessionStart.Format("2006-01-02-150405"))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}
	logger.logDir = logDir

	if err := logger.initializeLogFiles(); err != nil {
		return nil, err
	}

	if logCfg.EnableConsole {
		multiWriter := io.MultiWriter(os.Stdout, logger.logFile)
		logger.logger = log.New(multiWriter, "", 0)
	} else {
		logger.logger = log.New(logger.logFile, "", 0)
	}

	logger.writeSessionFile(cfg)
	logger.performCleanup()

	return logger, nil
}

// initializeLogFiles creates and opens all log files
func (l *Logger) initializeLogFiles() error {
	var err error

	logFilePath := filepath.Join(l.logDir, "deploy.log")
	l.logFile, err = os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open main log file: %w", err)
	}

	if l.config.EnableJSON {
		jsonPath := filepath.Join(l.logDir, "events.jsonl")
		l.jsonFile, err = os.OpenFile(jsonPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open JSON log file: %w", err)
		}
	}

	return nil
}

// sessionInfo is the YAML session metadata written once per run.
type sessionInfo struct {
	SessionID      string `yaml:"session_id"`
	Started        string `yaml:"started"`
	Hostname       string `yaml:"hostname"`
	AppName        string `yaml:"app_name"`
	AppVersion     string `yaml:"app_version"`
	DeploymentType string `yaml:"deployment_type"`
	DeployMode     string `yaml:"deploy_mode"`
}

// writeSessionFile records session metadata alongside the logs.
func (l *Logger) writeSessionFile(cfg *config.Configuration) {
	info := sessionInfo{
		SessionID:      l.config.SessionID,
		Started:        l.sessionStart.Format(time.RFC3339),
		Hostname:       l.hostname,
		AppName:        cfg.AppName,
		AppVersion:     cfg.AppVersion,
		DeploymentType: string(cfg.DeploymentType),
		DeployMode:     string(cfg.DeployMode),
	}
	data, err := yaml.Marshal(info)
	if err != nil {
		return
	}
	// Best effort, the run continues without session metadata.
	_ = os.WriteFile(filepath.Join(l.logDir, "session.yaml"), data, 0644)
}

// performCleanup removes old log directories based on retention policy
func (l *Logger) performCleanup() {
	baseDir := l.config.BaseDir
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return // Silently fail cleanup
	}

	var logDirs []os.DirEntry
	now := time.Now()

	// Filter for log directories (timestamped format YYYY-MM-DD-HHMMss)
	for _, entry := range entries {
		if entry.IsDir() {
			if len(entry.Name()) == 17 && strings.Count(entry.Name(), "-") == 3 {
				logDirs = append(logDirs, entry)
			}
		}
	}

	// Sort directories by name (which sorts by timestamp due to format)
	sort.Slice(logDirs, func(i, j int) bool {
		return logDirs[i].Name() > logDirs[j].Name() // Newest first
	})

	retention := l.config.Retention
	toDelete := []string{}

	if len(logDirs) > retention.MaxRuns {
		for i := retention.MaxRuns; i < len(logDirs); i++ {
			toDelete = append(toDelete, logDirs[i].Name())
		}
	}

	maxAge := time.Duration(retention.MaxAgeDays) * 24 * time.Hour
	for _, dir := range logDirs {
		dirPath := filepath.Join(baseDir, dir.Name())
		if info, err := os.Stat(dirPath); err == nil {
			if now.Sub(info.ModTime()) > maxAge {
				toDelete = append(toDelete, dir.Name())
			}
		}
	}

	deletedDirs := make(map[string]bool)
	for _, dirName := range toDelete {
		if !deletedDirs[dirName] {
			dirPath := filepath.Join(baseDir, dirName)
			os.RemoveAll(dirPath) // Best effort, ignore errors
			deletedDirs[dirName] = true
		}
	}
}

// createLogEntry creates a structured log entry
func (l *Logger) createLogEntry(level LogLevel, message string, properties map[string]interface{}) LogEntry {
	now := time.Now()

	return LogEntry{
		Time:       now.Unix(),
		Timestamp:  now.Format(time.RFC3339),
		Level:      level.String(),
		Message:    message,
		Component:  l.config.Component,
		PID:        int64(os.Getpid()),
		Hostname:   l.hostname,
		SessionID:  l.config.SessionID,
		Properties: properties,
	}
}

// CloseLogger closes all log files if they're open.
func CloseLogger() {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()

	if instance.logFile != nil {
		if err := instance.logFile.Close(); err != nil {
			fmt.Printf("Failed to close main log file: %v\n", err)
		}
		instance.logFile = nil
	}

	if instance.jsonFile != nil {
		if err := instance.jsonFile.Close(); err != nil {
			fmt.Printf("Failed to close JSON log file: %v\n", err)
		}
		instance.jsonFile = nil
	}
}

// logMessage is the core logging method that writes to all configured outputs
func (l *Logger) logMessage(level LogLevel, message string, keyValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logger == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: %s %s %v\n", level.String(), message, keyValues)
		return
	}

	if level > l.logLevel {
		return
	}

	// Convert keyValues to properties map
	properties := make(map[string]interface{})
	for i := 0; i < len(keyValues); i += 2 {
		if i+1 < len(keyValues) {
			key := fmt.Sprintf("%v", keyValues[i])
			properties[key] = keyValues[i+1]
		}
	}

	entry := l.createLogEntry(level, message, properties)

	l.writeMainLog(entry, keyValues)

	if l.config.EnableJSON && l.jsonFile != nil {
		l.writeJSONLog(entry)
	}

	l.syncFiles()
}

// writeMainLog writes to the main deploy.log file in traditional format
func (l *Logger) writeMainLog(entry LogEntry, keyValues []interface{}) {
	ts := time.Unix(entry.Time, 0).Format("2006-01-02 15:04:05")
	baseLine := fmt.Sprintf("[%s] %-5s %s", ts, entry.Level, entry.Message)

	for i := 0; i < len(keyValues); i += 2 {
		if i+1 < len(keyValues) {
			key := fmt.Sprintf("%v", keyValues[i])
			val := keyValues[i+1]
			baseLine += fmt.Sprintf(" %s=%v", key, val)
		}
	}

	// Add error separator
	if entry.Level == "ERROR" {
		baseLine = "\n----------------------------------------\n" + baseLine
	}

	l.logger.Println(baseLine)
}

// writeJSONLog writes structured JSON log entry
func (l *Logger) writeJSONLog(entry LogEntry) {
	if data, err := json.Marshal(entry); err == nil {
		l.jsonFile.WriteString(string(data) + "\n")
	}
}

// syncFiles forces sync on all open log files
func (l *Logger) syncFiles() {
	if l.logFile != nil {
		l.logFile.Sync()
	}
	if l.jsonFile != nil {
		l.jsonFile.Sync()
	}
}

// Info logs informational messages.
func Info(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: INFO %s %v\n", message, keyValues)
		return
	}
	instance.logMessage(LevelInfo, message, keyValues...)
}

// Debug logs debug messages.
func Debug(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: DEBUG %s %v\n", message, keyValues)
		return
	}
	instance.logMessage(LevelDebug, message, keyValues...)
}

// Warn logs warning messages.
func Warn(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: WARN %s %v\n", message, keyValues)
		return
	}
	instance.logMessage(LevelWarn, message, keyValues...)
}

// Error logs error messages.
func Error(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: ERROR %s %v\n", message, keyValues)
		return
	}
	instance.logMessage(LevelError, message, keyValues...)
}

// GetCurrentLogDir returns the current timestamped log directory
func GetCurrentLogDir() string {
	if instance == nil {
		return ""
	}
	instance.mu.RLock()
	defer instance.mu.RUnlock()
	return instance.logDir
}

// GetSessionID returns the current session ID
func GetSessionID() string {
	if instance == nil {
		return ""
	}
	instance.mu.RLock()
	defer instance.mu.RUnlock()
	return instance.config.SessionID
}
