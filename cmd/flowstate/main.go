// Command flowstate inspects and operates on a flowstate database: listing
// workflows and tasks, waking suspended tasks, and requeueing tasks left
// RUNNING by crashed workers.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
