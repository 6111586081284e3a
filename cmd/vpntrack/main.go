package main

import (
	"vpntrack/internal/app"

	"github.com/charmbracelet/log"
)

func main() {
	// Failures are reported through logs only; the process exits 0 either way.
	if err := app.Run(); err != nil {
		log.Error("run terminated", "error", err)
	}
}
