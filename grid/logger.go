package grid

import (
	"log"
	"sync"
)

var (
	logMu sync.RWMutex
	logf  = log.Printf
)

// SetLogger replaces the package logger. Passing nil silences it.
func SetLogger(fn func(format string, v ...interface{})) {
	logMu.Lock()
	defer logMu.Unlock()
	if fn == nil {
		fn = func(string, ...interface{}) {}
	}
	logf = fn
}

// Logf logs through the package logger
func Logf(format string, v ...interface{}) {
	logMu.RLock()
	fn := logf
	logMu.RUnlock()
	fn(format, v...)
}
