// ./main.go
package main

import (
	"github.com/luyichou/webtech-autopost/cmd"
)

// main is the entry point for the autopost application. All
// command-line parsing, configuration, and execution happens in cmd.
func main() {
	cmd.Execute()
}
