package main

import (
	"github.com/antonkk/formpilot/cmd"
)

// main is the entry point for the formpilot CLI.
func main() {
	cmd.Execute()
}
