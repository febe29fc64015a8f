// -----------------------------------------------------------------------
// Crash Protection - Fatal error handling and crash file generation
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

var (
	crashMu  sync.Mutex
	crashDir = "logs"
)

// secretFlags never appear in a crash report
var secretFlags = []string{"--password", "-password"}

// InstallCrashHandler points crash reports at dir, normally the log
// directory. Pair it with a deferred RecoverWithCrashFile in main.
func InstallCrashHandler(dir string) {
	crashMu.Lock()
	defer crashMu.Unlock()
	if dir != "" {
		crashDir = dir
	}
}

// WriteCrashFile writes a crash report and returns its path, or "" if it could not be written
func WriteCrashFile(panicVal interface{}, stack []byte) string {
	crashMu.Lock()
	dir := crashDir
	crashMu.Unlock()

	now := time.Now()
	report := strings.Join([]string{
		"leadwatch crash report",
		"time:       " + now.Format(time.RFC3339),
		"version:    " + GetFullVersion(),
		"command:    " + strings.Join(RedactArgs(os.Args), " "),
		fmt.Sprintf("goroutines: %d (%d via SafeGo)", runtime.NumGoroutine(), GetGoroutineCount()),
		fmt.Sprintf("platform:   %s/%s", runtime.GOOS, runtime.GOARCH),
		"",
		fmt.Sprintf("panic: %v", panicVal),
		"",
		string(stack),
	}, "\n")

	path := filepath.Join(dir, "crash-"+now.Format("20060102-150405")+".log")
	if err := os.MkdirAll(dir, 0700); err == nil {
		err = os.WriteFile(path, []byte(report), 0600)
		if err == nil {
			fmt.Fprintf(os.Stderr, "leadwatch crashed: %v\nreport: %s\n", panicVal, path)
			return path
		}
	}
	fmt.Fprintln(os.Stderr, report)
	return ""
}

// RecoverWithCrashFile writes a crash report for a panic in the calling
// goroutine and exits 1. Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, debug.Stack())
		os.Exit(1)
	}
}

// RedactArgs masks the values of password flags, both "--password x" and
// "--password=x"
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out); i++ {
		name, _, inline := strings.Cut(out[i], "=")
		if !isSecretFlag(name) {
			continue
		}
		if inline {
			out[i] = name + "=***"
		} else if i+1 < len(out) {
			out[i+1] = "***"
			i++
		}
	}
	return out
}

func isSecretFlag(name string) bool {
	for _, flag := range secretFlags {
		if name == flag {
			return true
		}
	}
	return false
}
