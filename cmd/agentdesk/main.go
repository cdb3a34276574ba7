package main

import (
	"fmt"
	"os"

	"github.com/tillberg/autorestart"

	"github.com/aihub/agentdesk/internal/cli"
)

func main() {
	// Restart on binary change during development.
	if os.Getenv("AGENTDESK_AUTORESTART") == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
