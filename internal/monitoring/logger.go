package monitoring

import "log"

// Logf receives scan and rotation diagnostics. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger redirects diagnostics. nil silences them.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}

// Prefixed returns a printf that tags each line with "[component] " and
// writes through whatever Logf is current at call time.
func Prefixed(component string) func(format string, v ...interface{}) {
	prefix := "[" + component + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
