// tpdd-server emulates a Tandy Portable Disk Drive (TPDD1/TPDD2) on a
// serial port, serving either a shared host directory or a raw disk
// image file to the client machine.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
