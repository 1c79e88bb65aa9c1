package lib

/* thread.go contains functions useful for multi-threading. */

import (
	"fmt"
	"runtime"
)

// SetThreads sets the number of OS threads which may run Go code at once and
// returns the number used. n = -1 uses every core.
func SetThreads(n int) (int, error) {
	if n == -1 {
		n = runtime.NumCPU()
	}

	if n < 1 {
		return 0, fmt.Errorf("%d threads requested, but at least one is "+
			"needed. If you want halox to use the maximum number of threads "+
			"per node, set Threads = -1.", n)
	} else if n > runtime.NumCPU() {
		return 0, fmt.Errorf("%d threads requested, but your system only "+
			"has %d cores per node. If you want halox to use the maximum "+
			"number of threads per node, set Threads = -1.",
			n, runtime.NumCPU())
	}

	runtime.GOMAXPROCS(n)
	return n, nil
}
