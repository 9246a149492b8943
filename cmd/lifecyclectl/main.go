// Command lifecyclectl administers the lifecycle store: it validates
// catalogs, seeds the employee directory and verifies workflow histories.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
