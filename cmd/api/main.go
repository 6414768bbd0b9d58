// Command board-hub is the real-time collaborative whiteboard server.
package main

import (
	"fmt"
	"os"

	"github.com/arc-self/board-hub/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
