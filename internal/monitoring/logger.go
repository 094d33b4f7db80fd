package monitoring

import "log"

// Logf is the logger used by sinks and commands. It defaults to log.Printf;
// tests mute or capture it with SetLogger.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces Logf. A nil f installs a no-op.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
