//go:build unix

package interrupt

import (
	"os"
	"syscall"
)

// UserSignal is the user-defined signal that drives the scenario.
var UserSignal os.Signal = syscall.SIGUSR1

var names = map[string]os.Signal{
	"SIGUSR1": syscall.SIGUSR1,
	"SIGUSR2": syscall.SIGUSR2,
	"SIGHUP":  syscall.SIGHUP,
	"SIGINT":  syscall.SIGINT,
	"SIGTERM": syscall.SIGTERM,
	"SIGALRM": syscall.SIGALRM,
}
