// Package main implements the go-trace-slicer CLI (gts).
// It provides commands for slicing call sites into def-use traces and
// labelling the ones that carry too little data flow.
package main

import (
	"os"

	"github.com/l3aro/go-trace-slicer/cmd/gts/commands"
)

var version = "dev"

func main() {
	commands.RootCmd.Flags().BoolP("version", "v", false, "Print version information")
	commands.RootCmd.SetVersionTemplate(`gts version {{.Version}}
`)
	commands.RootCmd.Version = version

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
