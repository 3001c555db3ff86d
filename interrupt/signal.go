package interrupt

import (
	"os"
	"strings"
)

// Lookup resolves a signal name such as "SIGUSR1" or "usr1".
func Lookup(name string) (os.Signal, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig, ok := names[name]
	return sig, ok
}

// Name returns the conventional name of sig, e.g. "SIGUSR1", falling back to
// the runtime's description for signals outside the table.
func Name(sig os.Signal) string {
	for name, s := range names {
		if s == sig {
			return name
		}
	}
	if sig == nil {
		return "<nil>"
	}
	return sig.String()
}
