// Command librarian is the operator tool for the library backend: it repairs
// the admin account and produces password hashes for manual inserts.
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
