//go:build !unix

package interrupt

import "os"

// UserSignal is the closest thing to a user-defined signal available here.
var UserSignal os.Signal = os.Interrupt

var names = map[string]os.Signal{
	"SIGINT": os.Interrupt,
}
