// Command akashica is the CLI front end for the content repository engine
// in internal/engine: repository init, workspace edit/publish, branch
// inspection, and content scrubbing, all peripheral to the engine itself
// (§1, §6) and built on github.com/spf13/cobra the way the rest of the
// example corpus builds its command trees.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
