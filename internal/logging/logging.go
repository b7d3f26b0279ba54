// Package logging provides the process-wide line logger used across the
// broker. It mirrors the teacher's plain, prefixed stdout logger rather
// than pulling in a structured logging library, since nothing in the
// example corpus uses one for a server of this shape.
package logging

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

var mutex sync.Mutex

var debugEnabled = os.Getenv("LOG_DEBUG") == "YES"
var requestsEnabled = os.Getenv("LOG_REQUESTS") != "NO"

func line(s string) {
	tm := time.Now()
	mutex.Lock()
	defer mutex.Unlock()
	fmt.Printf("[%s] %s\n", tm.Format("2006-01-02 15:04:05"), s)
}

// Info logs an informational line.
func Info(s string) { line("[INFO] " + s) }

// Warning logs a warning line.
func Warning(s string) { line("[WARNING] " + s) }

// Error logs an error.
func Error(err error) {
	if err == nil {
		return
	}
	line("[ERROR] " + err.Error())
}

// Debug logs a debug line, only when LOG_DEBUG=YES.
func Debug(s string) {
	if debugEnabled {
		line("[DEBUG] " + s)
	}
}

// Request logs a per-connection request line, unless LOG_REQUESTS=NO.
func Request(connID uint64, remoteAddr string, s string) {
	if requestsEnabled {
		line("[REQUEST] #" + strconv.FormatUint(connID, 10) + " (" + remoteAddr + ") " + s)
	}
}

// DebugSession logs a per-connection debug line, only when LOG_DEBUG=YES.
func DebugSession(connID uint64, remoteAddr string, s string) {
	if debugEnabled {
		line("[DEBUG] #" + strconv.FormatUint(connID, 10) + " (" + remoteAddr + ") " + s)
	}
}

// Logger is the small interface core packages depend on so they stay
// testable without capturing stdout. The package-level functions above
// satisfy it trivially via StdLogger.
type Logger interface {
	Info(s string)
	Warning(s string)
	Error(err error)
	Debug(s string)
	DebugSession(connID uint64, remoteAddr, s string)
}

// StdLogger forwards to the package-level functions.
type StdLogger struct{}

func (StdLogger) Info(s string)    { Info(s) }
func (StdLogger) Warning(s string) { Warning(s) }
func (StdLogger) Error(err error)  { Error(err) }
func (StdLogger) Debug(s string)   { Debug(s) }
func (StdLogger) DebugSession(connID uint64, remoteAddr, s string) {
	DebugSession(connID, remoteAddr, s)
}
