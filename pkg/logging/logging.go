package logging

import (
	"log"
	"log/slog"
	"os"
	"runtime"
	"time"
)

var (
	logger    *slog.Logger
	startTime time.Time
)

// InitLogger initializes the structured logging system
func InitLogger() {
	startTime = time.Now()

	// Configure JSON logging for production
	opts := &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
	}

	// Use JSON handler for structured logging
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger = slog.New(handler)

	// Set as default logger
	slog.SetDefault(logger)

	LogInfo("Logger initialized successfully",
		"handler", "json",
		"level", "info",
		"source_enabled", true)
}

// LogInfo logs an informational message
func LogInfo(msg string, args ...any) {
	logger.Info(msg, args...)
}

// LogError logs an error message with error details
func LogError(msg string, err error, args ...any) {
	allArgs := append([]any{"error", err}, args...)
	logger.Error(msg, allArgs...)
}

// LogWarn logs a warning message
func LogWarn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// LogDebug logs a debug message
func LogDebug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// LogCritical logs a critical error and also writes to stderr
func LogCritical(msg string, err error, args ...any) {
	allArgs := append([]any{"error", err, "severity", "critical"}, args...)
	logger.Error(msg, allArgs...)
	log.Printf("CRITICAL: %s: %v", msg, err)
}

// LogSecurityEvent logs security-related events
func LogSecurityEvent(event string, severity string, args ...any) {
	allArgs := append([]any{
		"event_type", "security",
		"security_event", event,
		"severity", severity,
	}, args...)
	logger.Warn("Security event", allArgs...)
}

// LogAuthEvent logs authentication lifecycle events (login, logout, denial)
func LogAuthEvent(event, username, role string, success bool, args ...any) {
	allArgs := append([]any{
		"event_type", "auth",
		"auth_event", event,
		"username", username,
		"role", role,
		"success", success,
	}, args...)
	if success {
		logger.Info("Auth event", allArgs...)
	} else {
		logger.Warn("Auth event", allArgs...)
	}
}

// LogHTTPRequest logs HTTP request details
func LogHTTPRequest(method, path, userAgent, ip string, statusCode int, duration time.Duration) {
	LogInfo("HTTP request",
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"user_agent", userAgent,
		"client_ip", ip)
}

// LogCollaboratorCall logs an outbound call to the prediction/auth API
func LogCollaboratorCall(method, path string, statusCode int, duration time.Duration, err error) {
	args := []any{
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	}
	if err != nil {
		LogError("Collaborator call failed", err, args...)
		return
	}
	LogInfo("Collaborator call", args...)
}

// LogPollCycle logs one admin poller refresh cycle
func LogPollCycle(seq uint64, logins, predictions int, duration time.Duration, success bool, args ...any) {
	allArgs := append([]any{
		"poll_seq", seq,
		"login_records", logins,
		"prediction_records", predictions,
		"duration_ms", duration.Milliseconds(),
		"success", success,
	}, args...)
	LogInfo("Admin poll cycle", allArgs...)
}

// LogSystemStats logs system statistics and resource usage
func LogSystemStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	LogInfo("System statistics",
		"uptime_seconds", int(uptime.Seconds()),
		"uptime_str", uptime.String(),
		"goroutines", runtime.NumGoroutine(),
		"memory_alloc_mb", bToMb(m.Alloc),
		"memory_total_alloc_mb", bToMb(m.TotalAlloc),
		"memory_sys_mb", bToMb(m.Sys),
		"gc_runs", m.NumGC,
		"next_gc_mb", bToMb(m.NextGC))
}

// Helper function to convert bytes to megabytes
func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
