/*package error contains simple funcitons for reporting halox errors and
exiting.
*/
package error

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
)

var (
	// exit and output are replaced in tests.
	exit             = os.Exit
	output io.Writer = os.Stderr
)

// External reports an error to stderr and kills the program. It should be
// used when an error is something a user could reasonbly be expected to fix
// through changes in configuration/data/environement, like an impossible
// process grid. It has the same signature at the standard fmt.*printf()
// functions.
func External(format string, a ...interface{}) {
	log.New(output, "", log.LstdFlags).Printf(
		"halox exited early with the following error:\n"+format, a...,
	)
	exit(1)
}

// Internal reports an error to stderr along with a stack trace and kills the
// program. It should be used when the error requires a code dive to fix, like
// a particle which escaped its owner or a secondary particle which lost its
// primary. It has the same signature at the standard fmt.*printf()
// functions.
func Internal(format string, a ...interface{}) {
	log.New(output, "", log.LstdFlags).Println(
		"halox exited early with the following internal error:",
	)
	fmt.Fprintf(output, format, a...)
	fmt.Fprintf(output, "\n\n")
	output.Write(debug.Stack())
	exit(1)
}
