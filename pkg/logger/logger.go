package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	InfoLogger  *log.Logger
	ErrorLogger *log.Logger
	DebugLogger *log.Logger
	WarnLogger  *log.Logger
)

const flags = log.Ldate | log.Ltime | log.Lshortfile

func init() {
	InfoLogger = log.New(os.Stdout, "INFO: ", flags)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", flags)
	DebugLogger = log.New(os.Stdout, "DEBUG: ", flags)
	WarnLogger = log.New(os.Stdout, "WARN: ", flags)
}

// SetOutput redirects every level to w. Tests use it to capture log lines.
func SetOutput(w io.Writer) {
	InfoLogger.SetOutput(w)
	ErrorLogger.SetOutput(w)
	DebugLogger.SetOutput(w)
	WarnLogger.SetOutput(w)
}

func Info(format string, v ...interface{}) {
	InfoLogger.Output(2, fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	ErrorLogger.Output(2, fmt.Sprintf(format, v...))
}

func Debug(format string, v ...interface{}) {
	if os.Getenv("ENVIRONMENT") == "development" {
		DebugLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

func Warn(format string, v ...interface{}) {
	WarnLogger.Output(2, fmt.Sprintf(format, v...))
}

// LogChatError records a failed realtime action without interrupting the connection.
func LogChatError(action, userID, target string, err error) {
	ErrorLogger.Output(2, fmt.Sprintf("Chat error: action=%s, user=%s, target=%s, error=%v", action, userID, target, err))
}
