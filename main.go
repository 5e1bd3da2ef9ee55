// The main package for the minuteswatch executable.
package main

import (
	"github.com/JakeFAU/minuteswatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
