package main

import (
	"os"

	// Provider and feed timezones must resolve on minimal hosts.
	_ "time/tzdata"

	"eventscout/internal/cli"
	appLog "eventscout/internal/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

func main() {
	if err := cli.Run(version); err != nil {
		appLog.Error("eventscout failed", err)
		appLog.Sync()
		os.Exit(1)
	}
}
