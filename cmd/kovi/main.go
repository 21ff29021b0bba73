// Command kovi is the reference CLI for the Kovi bot framework: it
// serves a bot wired with the built-in echoplugin, and manages the
// persisted plugin-enabled/admin-list state independent of a running
// bot process.
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
